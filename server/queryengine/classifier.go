package queryengine

import (
	"log/slog"

	"github.com/freshcoop/coopchat/server/nlp"
)

// DefaultStatisticalThreshold 统计层最低置信度，低于它返回 unknown
const DefaultStatisticalThreshold = 0.30

// Classifier 三层意图分类器
// 规则层视为确定（置信度 1.0），统计层返回模型概率，
// 两层都不命中时返回 unknown 交由路由兜底
type Classifier struct {
	priority []compiledRule
	general  []compiledRule
	model    Model
	minProb  float64
	logger   *slog.Logger
}

// Option configures the classifier.
type Option func(*Classifier)

// WithModel installs the statistical fallback model.
func WithModel(m Model) Option {
	return func(c *Classifier) { c.model = m }
}

// WithStatisticalThreshold overrides the minimum statistical confidence.
func WithStatisticalThreshold(p float64) Option {
	return func(c *Classifier) { c.minProb = p }
}

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// NewClassifier compiles the built-in rule tables. A compile failure is
// returned to the caller and must fail startup. A missing model is not
// an error: classification degrades to rule-only with a warning.
func NewClassifier(opts ...Option) (*Classifier, error) {
	c := &Classifier{minProb: DefaultStatisticalThreshold, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.priority, err = compileRules(priorityRuleSpecs); err != nil {
		return nil, err
	}
	if c.general, err = compileRules(generalRuleSpecs); err != nil {
		return nil, err
	}

	if c.model == nil {
		c.logger.Warn("统计模型不可用，分类降级为纯规则模式")
	} else {
		c.logger.Info("统计模型已加载", "version", c.model.Version())
	}
	return c, nil
}

// HasModel reports whether the statistical tier is available.
func (c *Classifier) HasModel() bool { return c.model != nil }

// Classify runs the tiers in strict order over the normalized form.
// Pure function over the loaded tables, no side effects.
func (c *Classifier) Classify(u nlp.Utterance) Result {
	if u.Normalized == "" {
		return Result{Intent: IntentUnknown, Tier: TierNone}
	}

	if intent, ok := matchRules(c.priority, u.Normalized); ok {
		return Result{Intent: intent, Confidence: 1.0, Tier: TierRule}
	}
	if intent, ok := matchRules(c.general, u.Normalized); ok {
		return Result{Intent: intent, Confidence: 1.0, Tier: TierRule}
	}

	if c.model != nil {
		intent, prob, err := c.model.Predict(u.Normalized)
		if err != nil {
			c.logger.Debug("统计预测失败", "error", err)
		} else if prob >= c.minProb && intent != IntentUnknown {
			return Result{Intent: intent, Confidence: prob, Tier: TierStatistical}
		}
	}
	return Result{Intent: IntentUnknown, Tier: TierNone}
}
