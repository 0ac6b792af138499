package queryengine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshcoop/coopchat/server/nlp"
)

// fakeModel 可编程的统计层桩
type fakeModel struct {
	intent Intent
	prob   float64
	err    error
}

func (f *fakeModel) Predict(string) (Intent, float64, error) { return f.intent, f.prob, f.err }
func (f *fakeModel) Version() string                         { return "fake-1" }

func mustClassifier(t *testing.T, opts ...Option) *Classifier {
	t.Helper()
	c, err := NewClassifier(opts...)
	require.NoError(t, err)
	return c
}

func TestRuleTierClassification(t *testing.T) {
	c := mustClassifier(t)

	tests := []struct {
		input string
		want  Intent
	}{
		{"草莓卖不？", IntentAvailability},
		{"有苹果吗", IntentAvailability},
		{"有没有猕猴桃", IntentAvailability},
		{"草莓有？", IntentAvailability},
		{"我要退货", IntentRefundRequest},
		{"芒果烂了怎么退", IntentRefundRequest},
		{"申请退款", IntentRefundRequest},
		{"售后服务", IntentRefundRequest},
		{"你们的退货政策是什么", IntentPolicyInquiry},
		{"怎么付款", IntentPolicyInquiry},
		{"运费多少", IntentPolicyInquiry},
		{"你好", IntentGreeting},
		{"你是谁", IntentIdentityQuery},
		{"你们卖什么东西", IntentCatalogOverview},
		{"草莓多少钱", IntentPriceOrBuy},
		{"推荐点好吃的", IntentRecommendation},
		{"当季有什么好的", IntentRecommendation},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := c.Classify(nlp.NewUtterance(tt.input))
			assert.Equal(t, tt.want, got.Intent)
			assert.Equal(t, 1.0, got.Confidence, "rule hits are treated as certain")
			assert.Equal(t, TierRule, got.Tier)
		})
	}
}

func TestPriorityRuleBeatsStatisticalModel(t *testing.T) {
	// 即使模型坚信是政策类，高优先规则仍然短路
	c := mustClassifier(t, WithModel(&fakeModel{intent: IntentPolicyInquiry, prob: 0.99}))

	got := c.Classify(nlp.NewUtterance("我要退货"))
	assert.Equal(t, IntentRefundRequest, got.Intent)
	assert.Equal(t, TierRule, got.Tier)
}

func TestRefundBeatsPolicyOrdering(t *testing.T) {
	c := mustClassifier(t)

	// 两类共享"退"字词汇，窄规则在前必须赢
	got := c.Classify(nlp.NewUtterance("怎么退货"))
	assert.Equal(t, IntentRefundRequest, got.Intent)

	// 明确问政策的表达不被退货规则吸走
	got = c.Classify(nlp.NewUtterance("退货政策"))
	assert.Equal(t, IntentPolicyInquiry, got.Intent)
}

func TestStatisticalFallback(t *testing.T) {
	t.Run("高于阈值返回统计结果", func(t *testing.T) {
		c := mustClassifier(t, WithModel(&fakeModel{intent: IntentRecommendation, prob: 0.8}))
		got := c.Classify(nlp.NewUtterance("整点新鲜玩意尝尝"))
		assert.Equal(t, IntentRecommendation, got.Intent)
		assert.Equal(t, TierStatistical, got.Tier)
		assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	})

	t.Run("低于阈值返回unknown", func(t *testing.T) {
		c := mustClassifier(t, WithModel(&fakeModel{intent: IntentRecommendation, prob: 0.2}))
		got := c.Classify(nlp.NewUtterance("整点新鲜玩意尝尝"))
		assert.Equal(t, IntentUnknown, got.Intent)
		assert.Equal(t, TierNone, got.Tier)
	})

	t.Run("无模型降级为纯规则", func(t *testing.T) {
		c := mustClassifier(t)
		assert.False(t, c.HasModel())
		got := c.Classify(nlp.NewUtterance("整点新鲜玩意尝尝"))
		assert.Equal(t, IntentUnknown, got.Intent)
	})
}

func TestClassifyEmptyInput(t *testing.T) {
	c := mustClassifier(t)
	got := c.Classify(nlp.NewUtterance("   "))
	assert.Equal(t, IntentUnknown, got.Intent)
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := mustClassifier(t)
	first := c.Classify(nlp.NewUtterance("有没有葡萄"))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(nlp.NewUtterance("有没有葡萄")))
	}
}

func testArtifact(t *testing.T) []byte {
	t.Helper()
	art := map[string]any{
		"version":          "test-1",
		"labels":           []string{string(IntentAvailability), string(IntentPolicyInquiry)},
		"vocabulary":       map[string]int{"草莓": 0, "配送": 1},
		"class_log_prior":  []float64{-0.69, -0.69},
		"feature_log_prob": [][]float64{{-0.5, -3.0}, {-3.0, -0.5}},
		"unseen_log_prob":  []float64{-4.0, -4.0},
	}
	data, err := json.Marshal(art)
	require.NoError(t, err)
	return data
}

func TestBayesModelPredict(t *testing.T) {
	m, err := ParseBayesModel(testArtifact(t))
	require.NoError(t, err)
	assert.Equal(t, "test-1", m.Version())

	intent, prob, err := m.Predict("草莓")
	require.NoError(t, err)
	assert.Equal(t, IntentAvailability, intent)
	assert.Greater(t, prob, 0.5)

	intent, _, err = m.Predict("配送")
	require.NoError(t, err)
	assert.Equal(t, IntentPolicyInquiry, intent)

	_, _, err = m.Predict("")
	assert.Error(t, err)
}

func TestParseBayesModelValidation(t *testing.T) {
	_, err := ParseBayesModel([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseBayesModel([]byte(`{"version":"x","labels":[]}`))
	assert.Error(t, err)

	_, err = ParseBayesModel([]byte(`{"version":"x","labels":["a"],"class_log_prior":[0,0],"feature_log_prob":[[]],"unseen_log_prob":[0]}`))
	assert.Error(t, err, "shape mismatch must fail")
}
