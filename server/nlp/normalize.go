// Package nlp provides utterance normalization and CJK-aware tokenization
// shared by the intent classifier, the entity resolver and policy retrieval.
package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Utterance 用户话语：原文 + 规范化文本
// 每次请求创建一次，响应后即丢弃
type Utterance struct {
	Raw        string
	Normalized string
}

// NewUtterance creates an utterance with its normalized form computed once.
func NewUtterance(raw string) Utterance {
	return Utterance{Raw: raw, Normalized: Normalize(raw)}
}

// Normalize folds an utterance into its canonical matching form:
// full-width characters narrowed, letters lowercased, punctuation dropped,
// whitespace collapsed to single ASCII spaces.
//
// All rule patterns, similarity scoring and cache keys operate on this form,
// so changing it silently changes classification results.
func Normalize(s string) string {
	// 全角转半角，统一宽度
	s = width.Narrow.String(s)
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// 标点直接折叠，不留空格（中文无词界，留空格反而破坏匹配）
			continue
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}
