// Package retrieval implements tiered search over the policy corpus:
// substring match, category keyword overlap with decisive-fact
// promotion, then TF-IDF cosine similarity over the whole corpus.
package retrieval

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/freshcoop/coopchat/server/nlp"
	"github.com/freshcoop/coopchat/store"
)

// DefaultTopK 默认返回条数
const DefaultTopK = 3

// cosineFloor TF-IDF 层的相似度下限
const cosineFloor = 0.10

// SearchTier identifies which tier produced a result, surfaced for
// observability and tests.
type SearchTier string

const (
	TierSubstring SearchTier = "substring"
	TierCategory  SearchTier = "category"
	TierTFIDF     SearchTier = "tfidf"
)

// Result is one ranked policy sentence.
type Result struct {
	Sentence *store.PolicySentence
	Score    float64
	Tier     SearchTier
}

// Engine 政策检索引擎，语料与向量索引构造后只读
type Engine struct {
	corpus *store.PolicyCorpus
	topK   int
	logger *slog.Logger

	idf     map[string]float64
	vectors []map[string]float64 // 与 corpus.Sentences() 同序
}

// Option configures the engine.
type Option func(*Engine)

// WithTopK overrides the default result count.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds the TF-IDF index over the corpus.
func NewEngine(corpus *store.PolicyCorpus, opts ...Option) *Engine {
	e := &Engine{corpus: corpus, topK: DefaultTopK, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.buildIndex()
	return e
}

func (e *Engine) buildIndex() {
	sentences := e.corpus.Sentences()
	df := make(map[string]int)
	counts := make([]map[string]int, len(sentences))
	for i, s := range sentences {
		tf := make(map[string]int)
		for _, tok := range nlp.Tokenize(s.Normalized) {
			tf[tok]++
		}
		counts[i] = tf
		for tok := range tf {
			df[tok]++
		}
	}

	n := float64(len(sentences))
	e.idf = make(map[string]float64, len(df))
	for tok, d := range df {
		e.idf[tok] = math.Log((n+1)/float64(d+1)) + 1
	}

	e.vectors = make([]map[string]float64, len(sentences))
	for i, tf := range counts {
		e.vectors[i] = e.vectorize(tf)
	}
}

// vectorize 构建 L2 归一化的 TF-IDF 向量
func (e *Engine) vectorize(tf map[string]int) map[string]float64 {
	vec := make(map[string]float64, len(tf))
	var norm float64
	for tok, c := range tf {
		idf, ok := e.idf[tok]
		if !ok {
			continue // 语料外词元对余弦没有贡献
		}
		w := float64(c) * idf
		vec[tok] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for tok := range vec {
			vec[tok] /= norm
		}
	}
	return vec
}

// Search runs the tiers in order and stops at the first tier that
// produces any result: a substring-matched query never falls through to
// the statistical tier, even when the match count is below topK.
// Results are truncated to topK. An empty return means every tier came
// up dry and the caller should fall back to the generative model.
func (e *Engine) Search(normalized string, topK int) []Result {
	if topK <= 0 {
		topK = e.topK
	}
	if normalized == "" {
		return nil
	}

	results := e.substringTier(normalized)
	if len(results) == 0 {
		results = e.categoryTier(normalized)
	}
	if len(results) == 0 {
		results = e.tfidfTier(normalized)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// substringTier 第一层：整句子串匹配
func (e *Engine) substringTier(query string) []Result {
	var out []Result
	for _, s := range e.corpus.Sentences() {
		if strings.Contains(s.Normalized, query) {
			out = append(out, Result{Sentence: s, Score: 1.0, Tier: TierSubstring})
		}
	}
	return out
}

// categoryTier 第二层：按查询的类别猜测做关键词重叠匹配
// payment/pickup 这类查询只有一个"唯一正确答案"句（收款账号、取货
// 地址），普通关键词打分会把它埋没，所以命中决定性特征的句子前置。
func (e *Engine) categoryTier(query string) []Result {
	catName := e.corpus.GuessCategory(query)
	if catName == store.GenericCategory {
		return nil
	}
	cat, ok := e.corpus.Category(catName)
	if !ok {
		return nil
	}

	// 查询命中类别即召回整类句子：类别内句子数很小，
	// 与查询的词元重叠只用来排序，不做准入门槛
	queryTokens := nlp.TokenSet(query)
	var out []Result
	for _, s := range e.corpus.ByCategory(catName) {
		r := Result{Sentence: s, Score: nlp.Jaccard(queryTokens, s.Tokens), Tier: TierCategory}
		if cat.Decisive != nil && cat.Decisive.MatchString(s.Normalized) {
			r.Score += 1.0 // 决定性句子抬到本层最前
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// tfidfTier 第三层：全语料 TF-IDF 余弦
func (e *Engine) tfidfTier(query string) []Result {
	tf := make(map[string]int)
	for _, tok := range nlp.Tokenize(query) {
		tf[tok]++
	}
	qvec := e.vectorize(tf)
	if len(qvec) == 0 {
		return nil
	}

	sentences := e.corpus.Sentences()
	var out []Result
	for i, svec := range e.vectors {
		score := dot(qvec, svec)
		if score >= cosineFloor {
			out = append(out, Result{Sentence: sentences[i], Score: score, Tier: TierTFIDF})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for tok, w := range a {
		sum += w * b[tok]
	}
	return sum
}
