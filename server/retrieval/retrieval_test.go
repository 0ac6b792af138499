package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshcoop/coopchat/server/nlp"
	"github.com/freshcoop/coopchat/store"
)

func testEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	corpus, err := store.NewPolicyCorpus([]string{
		"付款方式支持微信和Venmo。",
		"付款请使用Venmo，账号 @freshcoop-pay。",
		"付款后请保留截图以便对账。",
		"配送费为每单5元，周三晚8点截单。",
		"取货地址：明德路88号社区活动中心。",
		"商品有质量问题可在48小时内申请退款。",
		"本须知最终解释权归合作社所有。",
	}, store.DefaultPolicyCategories())
	require.NoError(t, err)
	return NewEngine(corpus, opts...)
}

func TestSubstringTierWins(t *testing.T) {
	e := testEngine(t)

	got := e.Search(nlp.Normalize("截单"), 3)
	require.NotEmpty(t, got)
	assert.Equal(t, TierSubstring, got[0].Tier)
	assert.Contains(t, got[0].Sentence.Content, "截单")
}

func TestSubstringMatchNeverReachesTFIDF(t *testing.T) {
	e := testEngine(t)

	// 语料里只有一句含"质量问题"，即便不足 topK 也不得
	// 从向量层补位（"配送运费"等句子会因词元重叠混进来）
	got := e.Search(nlp.Normalize("质量问题"), 0)
	require.NotEmpty(t, got)
	for _, r := range got {
		assert.Equal(t, TierSubstring, r.Tier)
	}
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Sentence.Content, "质量问题")
}

func TestPaymentDecisiveFactPromotion(t *testing.T) {
	e := testEngine(t)

	// "怎么付款"没有整句子串命中，落到类别层；
	// 含账号的句子必须排第一，领先普通付款句
	got := e.Search(nlp.Normalize("怎么付款"), 3)
	require.NotEmpty(t, got)
	assert.Equal(t, TierCategory, got[0].Tier)
	assert.Contains(t, got[0].Sentence.Content, "账号")
}

func TestPickupDecisiveFactPromotion(t *testing.T) {
	e := testEngine(t)

	got := e.Search(nlp.Normalize("在哪自提"), 3)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0].Sentence.Content, "地址")
}

func TestTFIDFTierCatchesLooseWording(t *testing.T) {
	e := testEngine(t)

	// 不含类别关键词的措辞只能靠向量层兜住
	got := e.Search(nlp.Normalize("合作社解释权"), 3)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0].Sentence.Content, "解释权")
}

func TestSearchDeduplicatesAndTruncates(t *testing.T) {
	e := testEngine(t)

	got := e.Search(nlp.Normalize("付款"), 2)
	assert.LessOrEqual(t, len(got), 2)
	seen := map[*store.PolicySentence]struct{}{}
	for _, r := range got {
		_, dup := seen[r.Sentence]
		assert.False(t, dup, "duplicate sentence in results")
		seen[r.Sentence] = struct{}{}
	}
}

func TestSearchEmptyQueryAndMiss(t *testing.T) {
	e := testEngine(t)
	assert.Empty(t, e.Search("", 3))
	assert.Empty(t, e.Search(nlp.Normalize("天文望远镜"), 3))
}

func TestSearchIsDeterministic(t *testing.T) {
	e := testEngine(t)
	first := e.Search(nlp.Normalize("付款"), 3)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Search(nlp.Normalize("付款"), 3))
	}
}
