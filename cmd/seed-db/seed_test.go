package main

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dernounimk/volty/db"
)

func TestLoadCatalog_Embedded(t *testing.T) {
	seed, err := fs.Sub(db.Seed, "seed")
	require.NoError(t, err)

	c, err := loadCatalog(seed)
	require.NoError(t, err)
	require.NotEmpty(t, c.Categories)
	require.NotEmpty(t, c.Products)
	require.NotEmpty(t, c.Delivery)

	for _, p := range c.Products {
		assert.NotEmpty(t, p.Images, p.ID)
		if p.PriceAfterDiscount.Valid {
			assert.True(t, p.PriceAfterDiscount.Decimal.LessThanOrEqual(p.PriceBeforeDiscount), p.ID)
		}
		if !p.Category.IsZero() {
			cat, ok := p.Category.Get()
			require.True(t, ok, p.ID)
			assert.NotEmpty(t, cat.Name, p.ID)
		}
	}
}

func TestLoadCatalog_Errors(t *testing.T) {
	base := fstest.MapFS{
		"categories.json": {Data: []byte(`[{"id": "audio", "name": "Audio"}]`)},
		"products.json":   {Data: []byte(`[{"id": "p1", "name": "Buds", "priceBeforeDiscount": "100", "category": "audio"}]`)},
		"delivery.json":   {Data: []byte(`[{"state": "16", "officePrice": "400", "homePrice": "600", "deliveryDays": 2}]`)},
	}
	c, err := loadCatalog(base)
	require.NoError(t, err)
	assert.False(t, c.Products[0].PriceAfterDiscount.Valid)
	assert.Equal(t, "audio", c.Products[0].Category.ID())

	for _, tt := range []struct {
		name string
		file string
		data string
		want string
	}{
		{"UnknownCategory", "products.json", `[{"id": "p1", "name": "Buds", "priceBeforeDiscount": "1", "category": "tv"}]`, `unknown category "tv"`},
		{"NegativePrice", "products.json", `[{"id": "p1", "name": "Buds", "priceBeforeDiscount": "-1"}]`, "negative price"},
		{"MissingName", "products.json", `[{"id": "p1", "priceBeforeDiscount": "1"}]`, "id and name are required"},
		{"BadSetting", "delivery.json", `[{"state": "16", "officePrice": "400", "homePrice": "600", "deliveryDays": 0}]`, "invalid delivery setting"},
		{"Malformed", "categories.json", `{`, "parse categories.json"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for k, v := range base {
				fsys[k] = v
			}
			fsys[tt.file] = &fstest.MapFile{Data: []byte(tt.data)}

			_, err := loadCatalog(fsys)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
