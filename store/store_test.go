package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRows() []ProductRow {
	return []ProductRow{
		{Name: "草莓", Specification: "500g/盒", Price: 25, Unit: "盒", Category: "水果", Seasonal: true, Keywords: []string{"strawberry"}},
		{Name: "有机草莓", Specification: "250g/盒", Price: 35, Unit: "盒", Category: "水果"},
		{Name: "土豆", Specification: "斤", Price: 3, Unit: "斤", Category: "蔬菜"},
		{Name: "鸡蛋", Specification: "30枚/板", Price: 28, Unit: "板", Category: "蛋奶"},
	}
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog(testRows())
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, []string{"水果", "蔬菜", "蛋奶"}, c.Categories())

	p, ok := c.Get("草莓 (500g/盒)")
	require.True(t, ok)
	assert.Equal(t, "草莓", p.Name)
	assert.True(t, p.Seasonal)

	// 规格与单位一致时展示名不带规格
	p, ok = c.Get("土豆")
	require.True(t, ok)
	assert.Equal(t, "土豆", p.DisplayName())

	assert.Len(t, c.Seasonal(), 1)
}

func TestNewCatalogValidation(t *testing.T) {
	_, err := NewCatalog(nil)
	assert.Error(t, err)

	rows := testRows()
	rows[1].Name = ""
	_, err = NewCatalog(rows)
	assert.Error(t, err)

	rows = testRows()
	rows[2].Price = -1
	_, err = NewCatalog(rows)
	assert.Error(t, err)

	rows = append(testRows(), testRows()[0])
	_, err = NewCatalog(rows)
	assert.Error(t, err, "duplicate key must fail construction")
}

func TestCatalogPopular(t *testing.T) {
	c, err := NewCatalog(testRows())
	require.NoError(t, err)

	egg, _ := c.Get("鸡蛋 (30枚/板)")
	egg.BumpPopularity()
	egg.BumpPopularity()
	potato, _ := c.Get("土豆")
	potato.BumpPopularity()

	top := c.Popular(2)
	require.Len(t, top, 2)
	assert.Equal(t, "鸡蛋", top[0].Name)
	assert.Equal(t, "土豆", top[1].Name)
}

func TestNewPolicyCorpusCategorization(t *testing.T) {
	sentences := []string{
		"付款请使用Venmo，账号 @freshcoop-pay。",
		"配送费为每单5元，周三截单。",
		"取货地址：明德路88号社区活动中心。",
		"商品有质量问题可申请退款或等值credit。",
		"本须知最终解释权归合作社所有。",
		"欢迎大家多提宝贵意见。",
	}
	c, err := NewPolicyCorpus(sentences, DefaultPolicyCategories())
	require.NoError(t, err)

	byCat := map[string]string{}
	for _, s := range c.Sentences() {
		byCat[s.Content] = s.Category
	}
	assert.Equal(t, "payment", byCat[sentences[0]])
	assert.Equal(t, "delivery", byCat[sentences[1]])
	assert.Equal(t, "pickup", byCat[sentences[2]])
	assert.Equal(t, "refund", byCat[sentences[3]])
	assert.Equal(t, "general", byCat[sentences[4]])
	assert.Equal(t, GenericCategory, byCat[sentences[5]])
}

func TestCategoryTieBrokenByDeclarationOrder(t *testing.T) {
	cats := []*PolicyCategory{
		{Name: "first", Keywords: []string{"共享"}},
		{Name: "second", Keywords: []string{"共享"}},
	}
	c, err := NewPolicyCorpus([]string{"这是共享关键词的句子"}, cats)
	require.NoError(t, err)
	assert.Equal(t, "first", c.Sentences()[0].Category)
}

func TestGuessCategoryMatchesLoadTimeRule(t *testing.T) {
	c, err := NewPolicyCorpus([]string{"占位句"}, DefaultPolicyCategories())
	require.NoError(t, err)
	assert.Equal(t, "payment", c.GuessCategory("怎么付款"))
	assert.Equal(t, "pickup", c.GuessCategory("在哪取货"))
	assert.Equal(t, GenericCategory, c.GuessCategory("今天天气不错"))
}

func TestNewPolicyCorpusValidation(t *testing.T) {
	_, err := NewPolicyCorpus(nil, DefaultPolicyCategories())
	assert.Error(t, err)

	_, err = NewPolicyCorpus([]string{"x"}, nil)
	assert.Error(t, err)

	_, err = NewPolicyCorpus([]string{"x"}, []*PolicyCategory{{Name: "bad"}})
	assert.Error(t, err, "category without keywords must fail")
}
