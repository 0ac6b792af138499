// Package resolver maps utterance fragments onto ranked catalog
// candidates: affix stripping first, then containment, token overlap
// and edit-distance scoring against every product.
package resolver

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/freshcoop/coopchat/server/nlp"
	"github.com/freshcoop/coopchat/store"
)

// DefaultThreshold 相似度下限，低于它的候选直接丢弃
const DefaultThreshold = 0.60

// MaxClarificationOptions 澄清选项上限
const MaxClarificationOptions = 5

// 编辑距离仅对短片段生效，长句里的错字交给词元重叠处理
const editDistanceMaxRunes = 6

// Candidate 候选商品及其匹配得分，区间 [0,1]
type Candidate struct {
	Product *store.Product
	Score   float64
}

// affixPatterns 填充词缀剥离表，逐条顺序执行
// 顺序本身是正确性不变量：长而具体的模式必须排在短模式前面，
// "有没有"要整体剥掉，先剥"有"会留下悬空的"没有"，
// "卖不卖草莓"先剥"卖不"就变成"不草莓"。调整顺序会改变解析结果。
var affixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(卖不卖|有没有|有不有)`),
	regexp.MustCompile(`(卖不卖|有没有|有不有)$`),
	regexp.MustCompile(`^(卖不|有不)`),
	regexp.MustCompile(`(卖不|有不|卖吗|有吗)$`),
	regexp.MustCompile(`(多少钱|怎么卖|一斤多少|售价|价格)`),
	regexp.MustCompile(`^(我要|你们|请问)`),
	regexp.MustCompile(`^有`),
	regexp.MustCompile(`(还有|有)$`),
	regexp.MustCompile(`(吗|呢|啊|嘛|么)$`),
}

// Resolver 模糊实体解析器，目录只读，可并发使用
type Resolver struct {
	catalog   *store.Catalog
	threshold float64
	logger    *slog.Logger
}

// Option configures the resolver.
type Option func(*Resolver)

// WithThreshold overrides the similarity threshold.
func WithThreshold(v float64) Option {
	return func(r *Resolver) { r.threshold = v }
}

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver over the catalog.
func New(catalog *store.Catalog, opts ...Option) *Resolver {
	r := &Resolver{catalog: catalog, threshold: DefaultThreshold, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExtractFragment pulls the likely product reference out of a
// normalized utterance. Known product names win outright; otherwise the
// affix table strips the interrogative padding.
func (r *Resolver) ExtractFragment(normalized string) string {
	if normalized == "" {
		return ""
	}

	// 目录名直接命中，正反两个方向都查：
	// "有没有草莓" 里含商品名，"梨有" 剥缀后是商品名的子串
	for _, p := range r.catalog.Products() {
		if strings.Contains(normalized, strings.ToLower(p.Name)) {
			return strings.ToLower(p.Name)
		}
	}
	stripped := stripAffixes(normalized)
	if stripped != "" {
		for _, p := range r.catalog.Products() {
			if strings.Contains(strings.ToLower(p.Name), stripped) {
				return stripped
			}
		}
	}

	if stripped == "" || len([]rune(stripped)) < 1 {
		return normalized
	}
	return stripped
}

func stripAffixes(s string) string {
	for _, re := range affixPatterns {
		s = strings.TrimSpace(re.ReplaceAllString(s, ""))
	}
	return s
}

// Resolve scores the fragment against every catalog product and
// returns candidates at or above the threshold, descending by score,
// ties broken by catalog insertion order. Deterministic for an
// unchanged catalog.
func (r *Resolver) Resolve(fragment string) []Candidate {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return nil
	}

	// 第一档：包含关系，视为确定匹配
	var direct []Candidate
	for _, p := range r.catalog.Products() {
		name := strings.ToLower(p.Name)
		if fragment == p.Key || fragment == name ||
			strings.Contains(p.Key, fragment) || strings.Contains(name, fragment) ||
			strings.Contains(fragment, p.Key) || strings.Contains(fragment, name) {
			direct = append(direct, Candidate{Product: p, Score: 1.0})
		}
	}
	if len(direct) > 0 {
		return direct // 目录插入序即遍历序
	}

	// 第二档：词元重叠 + 短串编辑距离容错
	fragTokens := nlp.TokenSet(fragment)
	fragRunes := len([]rune(fragment))
	var out []Candidate
	for _, p := range r.catalog.Products() {
		score := r.similarity(fragment, fragTokens, fragRunes, p)
		if score >= r.threshold {
			out = append(out, Candidate{Product: p, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// similarity takes the best of name/key/alias token overlap, with an
// edit-distance floor for short fragments.
func (r *Resolver) similarity(fragment string, fragTokens map[string]struct{}, fragRunes int, p *store.Product) float64 {
	best := nlp.Jaccard(fragTokens, nlp.TokenSet(strings.ToLower(p.Name)))
	if s := nlp.Jaccard(fragTokens, nlp.TokenSet(p.Key)); s > best {
		best = s
	}
	for _, kw := range p.Keywords {
		if s := nlp.Jaccard(fragTokens, nlp.TokenSet(kw)); s > best {
			best = s
		}
	}

	if fragRunes > 0 && fragRunes <= editDistanceMaxRunes {
		name := strings.ToLower(p.Name)
		nameRunes := len([]rune(name))
		if nameRunes > 0 {
			max := fragRunes
			if nameRunes > max {
				max = nameRunes
			}
			if s := 1 - float64(nlp.EditDistance(fragment, name))/float64(max); s > best {
				best = s
			}
		}
	}
	return best
}

// ClarificationOptions truncates candidates to the presentation cap.
func ClarificationOptions(cands []Candidate) []Candidate {
	if len(cands) > MaxClarificationOptions {
		return cands[:MaxClarificationOptions]
	}
	return cands
}
