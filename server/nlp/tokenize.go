package nlp

import "unicode"

// Tokenize splits normalized text into matching units. Latin/digit runs are
// kept whole; a run of Han characters yields its character bigrams (the run
// itself when it is a single character). Bigrams approximate Chinese words
// well enough for overlap scoring without a segmentation dependency.
func Tokenize(s string) []string {
	var tokens []string
	runes := []rune(s)

	flushLatin := func(start, end int) {
		if end > start {
			tokens = append(tokens, string(runes[start:end]))
		}
	}

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.Is(unicode.Han, r):
			j := i
			for j < len(runes) && unicode.Is(unicode.Han, runes[j]) {
				j++
			}
			tokens = append(tokens, hanGrams(runes[i:j])...)
			i = j
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) && !unicode.Is(unicode.Han, runes[j]) {
				j++
			}
			flushLatin(i, j)
			i = j
		default:
			i++
		}
	}
	return tokens
}

// TokenSet returns the deduplicated token set of s.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

// hanGrams returns character bigrams for a Han run, plus single characters
// so that one-character queries ("梨") still overlap multi-character names.
func hanGrams(run []rune) []string {
	if len(run) == 1 {
		return []string{string(run)}
	}
	grams := make([]string, 0, 2*len(run)-1)
	for i := 0; i < len(run); i++ {
		grams = append(grams, string(run[i]))
	}
	for i := 0; i+1 < len(run); i++ {
		grams = append(grams, string(run[i:i+2]))
	}
	return grams
}

// Jaccard computes token-set overlap between two token sets.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// EditDistance returns the Levenshtein distance between two strings in runes.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
