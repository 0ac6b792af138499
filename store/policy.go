package store

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/freshcoop/coopchat/server/nlp"
)

// PolicyCategory 政策类别定义
// 优先关键词每命中一个计 3 分，普通关键词计 1 分
// Decisive 标记该类别的"唯一正确答案"特征（如收款账号、取货地址），
// 检索层对命中该特征的句子做前置提权
type PolicyCategory struct {
	Name             string
	Label            string // 给用户看的中文名，空则退回 Name
	PriorityKeywords []string
	Keywords         []string
	Decisive         *regexp.Regexp
}

// DisplayLabel returns the user-facing category name.
func (c *PolicyCategory) DisplayLabel() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// PolicySentence 政策语料句
// 分类在加载期一次完成：每句只归入得分最高的一个类别，
// 平分按类别声明序取先，0 分归入 generic。
// 这个一句一类的设计是刻意的，避免同一句在多个类别里重复召回。
type PolicySentence struct {
	Content    string
	Normalized string
	Category   string
	Tokens     map[string]struct{}

	order int
}

// GenericCategory is where zero-scoring sentences land.
const GenericCategory = "generic"

// GeneralCategory holds policy talk that names no concrete topic
// ("政策"/"条款" without delivery, refund, payment or pickup words).
// A query landing here asks about the rules in general, not about any
// one category.
const GeneralCategory = "general"

// PolicyCorpus 政策语料：构造后只读
type PolicyCorpus struct {
	sentences  []*PolicySentence
	categories []*PolicyCategory // 声明序
	byName     map[string]*PolicyCategory
	byCategory map[string][]*PolicySentence
}

// NewPolicyCorpus categorizes the parsed sentences against the category
// definitions. An empty corpus or a malformed category table fails
// construction.
func NewPolicyCorpus(sentences []string, categories []*PolicyCategory) (*PolicyCorpus, error) {
	if len(sentences) == 0 {
		return nil, errors.New("policy: no corpus sentences")
	}
	if len(categories) == 0 {
		return nil, errors.New("policy: no category definitions")
	}

	c := &PolicyCorpus{
		categories: categories,
		byName:     make(map[string]*PolicyCategory, len(categories)),
		byCategory: make(map[string][]*PolicySentence),
	}
	for _, cat := range categories {
		if cat.Name == "" || cat.Name == GenericCategory {
			return nil, errors.Errorf("policy: invalid category name %q", cat.Name)
		}
		if _, dup := c.byName[cat.Name]; dup {
			return nil, errors.Errorf("policy: duplicate category %q", cat.Name)
		}
		if len(cat.PriorityKeywords) == 0 && len(cat.Keywords) == 0 {
			return nil, errors.Errorf("policy: category %q has no keywords", cat.Name)
		}
		c.byName[cat.Name] = cat
	}

	for i, raw := range sentences {
		content := strings.TrimSpace(raw)
		if content == "" {
			continue
		}
		s := &PolicySentence{
			Content:    content,
			Normalized: nlp.Normalize(content),
			order:      i,
		}
		s.Tokens = nlp.TokenSet(s.Normalized)
		s.Category = c.bestCategory(s.Normalized)
		c.sentences = append(c.sentences, s)
		c.byCategory[s.Category] = append(c.byCategory[s.Category], s)
	}
	if len(c.sentences) == 0 {
		return nil, errors.New("policy: corpus is blank")
	}
	return c, nil
}

// bestCategory 对一段规范化文本按加权关键词打分，返回最佳类别
// 声明序在前的类别赢得平分，0 分返回 generic
func (c *PolicyCorpus) bestCategory(normalized string) string {
	best, bestScore := GenericCategory, 0
	for _, cat := range c.categories {
		score := CategoryScore(normalized, cat)
		if score > bestScore {
			best, bestScore = cat.Name, score
		}
	}
	return best
}

// CategoryScore scores normalized text against one category definition:
// 3 points per priority keyword hit, 1 per ordinary keyword hit.
func CategoryScore(normalized string, cat *PolicyCategory) int {
	score := 0
	for _, kw := range cat.PriorityKeywords {
		if strings.Contains(normalized, kw) {
			score += 3
		}
	}
	for _, kw := range cat.Keywords {
		if strings.Contains(normalized, kw) {
			score++
		}
	}
	return score
}

// GuessCategory classifies a normalized query the same way corpus
// sentences are classified at load time.
func (c *PolicyCorpus) GuessCategory(normalized string) string {
	return c.bestCategory(normalized)
}

// Sentences returns the whole corpus in declaration order.
func (c *PolicyCorpus) Sentences() []*PolicySentence { return c.sentences }

// ByCategory returns one category's sentences in declaration order.
func (c *PolicyCorpus) ByCategory(name string) []*PolicySentence { return c.byCategory[name] }

// Category looks a category definition up by name.
func (c *PolicyCorpus) Category(name string) (*PolicyCategory, bool) {
	cat, ok := c.byName[name]
	return cat, ok
}

// Categories returns the category definitions in declaration order.
func (c *PolicyCorpus) Categories() []*PolicyCategory { return c.categories }

// Contents returns the raw sentence texts, used as generative-model
// context when every retrieval tier comes up empty.
func (c *PolicyCorpus) Contents() []string {
	out := make([]string, len(c.sentences))
	for i, s := range c.sentences {
		out[i] = s.Content
	}
	return out
}

// DefaultPolicyCategories 默认类别表，声明序即平分裁决序
func DefaultPolicyCategories() []*PolicyCategory {
	return []*PolicyCategory{
		{
			Name:             "delivery",
			Label:            "配送政策",
			PriorityKeywords: []string{"配送", "送货", "运费"},
			Keywords:         []string{"截单", "送达", "快递", "物流"},
		},
		{
			Name:             "refund",
			Label:            "退换货政策",
			PriorityKeywords: []string{"退款", "退货"},
			Keywords:         []string{"质量", "credit", "退钱", "赔偿", "问题"},
		},
		{
			Name:             "payment",
			Label:            "付款方式",
			PriorityKeywords: []string{"付款", "支付", "venmo"},
			Keywords:         []string{"汇款", "转账", "收费", "费用"},
			Decisive:         regexp.MustCompile(`(账号|账户)`),
		},
		{
			Name:             "pickup",
			Label:            "取货信息",
			PriorityKeywords: []string{"取货", "自取", "自提"},
			Keywords:         []string{"取货点", "地址", "位置"},
			Decisive:         regexp.MustCompile(`(地址|取货点)`),
		},
		{
			Name:             GeneralCategory,
			Label:            "其他须知",
			PriorityKeywords: []string{"政策", "条款"},
			Keywords:         []string{"规定", "须知", "说明"},
		},
	}
}
