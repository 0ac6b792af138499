// Package store holds the immutable startup tables of the engine:
// the product catalog and the policy corpus. Tables are validated once
// at construction and never mutated afterwards, so all lookups are safe
// for unsynchronized concurrent reads. The only mutable state is the
// per-product popularity counter, which is atomic.
package store

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/freshcoop/coopchat/server/nlp"
)

// Product 商品目录行
// Key 是稳定的目录键（规范化展示名），解析器与选择回传均以它为准
type Product struct {
	Key           string   // 稳定目录键，小写
	Name          string   // 商品名
	Specification string   // 规格，如 "500g/盒"
	Price         float64  // 单价
	Unit          string   // 计价单位，如 "斤"
	Category      string   // 类别
	Description   string   // 可选描述
	Seasonal      bool     // 是否当季
	Keywords      []string // 可选别名关键词，已小写

	order      int
	popularity atomic.Int64
}

// DisplayName returns the user-facing name, carrying the specification
// when it disambiguates (same rule the catalog key is derived from).
func (p *Product) DisplayName() string {
	if p.Specification != "" &&
		!strings.EqualFold(p.Specification, p.Unit) &&
		!strings.Contains(p.Name, p.Specification) {
		return p.Name + " (" + p.Specification + ")"
	}
	return p.Name
}

// Popularity returns the current access count.
func (p *Product) Popularity() int64 { return p.popularity.Load() }

// BumpPopularity 累加热度计数，推荐排序使用
func (p *Product) BumpPopularity() { p.popularity.Add(1) }

// Catalog 商品目录：构造后只读
type Catalog struct {
	products   []*Product          // 插入序
	byKey      map[string]*Product // 目录键 → 商品
	categories []string            // 类别声明序
	byCategory map[string][]*Product
	seasonal   []*Product
}

// ProductRow is the already-parsed input row a Catalog is built from.
type ProductRow struct {
	Name          string
	Specification string
	Price         float64
	Unit          string
	Category      string
	Description   string
	Seasonal      bool
	Keywords      []string
}

// NewCatalog builds the catalog from parsed rows. Malformed rows are a
// construction error, not a skip: serving with a corrupt table is worse
// than not serving.
func NewCatalog(rows []ProductRow) (*Catalog, error) {
	if len(rows) == 0 {
		return nil, errors.New("catalog: no product rows")
	}

	c := &Catalog{
		byKey:      make(map[string]*Product, len(rows)),
		byCategory: make(map[string][]*Product),
	}
	for i, row := range rows {
		if row.Name == "" || row.Specification == "" || row.Unit == "" || row.Category == "" {
			return nil, errors.Errorf("catalog: row %d incomplete (name=%q)", i+1, row.Name)
		}
		if row.Price < 0 {
			return nil, errors.Errorf("catalog: row %d negative price for %q", i+1, row.Name)
		}

		p := &Product{
			Name:          row.Name,
			Specification: row.Specification,
			Price:         row.Price,
			Unit:          row.Unit,
			Category:      row.Category,
			Description:   row.Description,
			Seasonal:      row.Seasonal,
			order:         i,
		}
		for _, kw := range row.Keywords {
			if kw = nlp.Normalize(kw); kw != "" {
				p.Keywords = append(p.Keywords, kw)
			}
		}
		p.Key = strings.ToLower(p.DisplayName())

		if _, dup := c.byKey[p.Key]; dup {
			return nil, errors.Errorf("catalog: duplicate product key %q", p.Key)
		}
		c.byKey[p.Key] = p
		c.products = append(c.products, p)

		if _, ok := c.byCategory[p.Category]; !ok {
			c.categories = append(c.categories, p.Category)
		}
		c.byCategory[p.Category] = append(c.byCategory[p.Category], p)
		if p.Seasonal {
			c.seasonal = append(c.seasonal, p)
		}
	}
	return c, nil
}

// Get looks a product up by its catalog key.
func (c *Catalog) Get(key string) (*Product, bool) {
	p, ok := c.byKey[strings.ToLower(key)]
	return p, ok
}

// Products returns all products in insertion order.
func (c *Catalog) Products() []*Product { return c.products }

// Categories returns category names in declaration order.
func (c *Catalog) Categories() []string { return c.categories }

// ByCategory returns the products of one category in insertion order.
func (c *Catalog) ByCategory(category string) []*Product { return c.byCategory[category] }

// Seasonal returns the seasonal products in insertion order.
func (c *Catalog) Seasonal() []*Product { return c.seasonal }

// Popular 按热度降序返回至多 n 个商品，热度相同按插入序
func (c *Catalog) Popular(n int) []*Product {
	ranked := make([]*Product, len(c.products))
	copy(ranked, c.products)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Popularity() > ranked[j].Popularity()
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }
