package main

import (
	"encoding/json"
	"io/fs"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/product"
	"github.com/dernounimk/volty/internal/domain/ref"
)

type colorJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

type productJSON struct {
	ID                  string              `json:"id"`
	Name                string              `json:"name"`
	Description         string              `json:"description"`
	PriceBeforeDiscount decimal.Decimal     `json:"priceBeforeDiscount"`
	PriceAfterDiscount  decimal.NullDecimal `json:"priceAfterDiscount"`
	Category            string              `json:"category"`
	Colors              []colorJSON         `json:"colors"`
	Sizes               []string            `json:"sizes"`
	Images              []string            `json:"images"`
}

type categoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type settingJSON struct {
	State        string          `json:"state"`
	OfficePrice  decimal.Decimal `json:"officePrice"`
	HomePrice    decimal.Decimal `json:"homePrice"`
	DeliveryDays int             `json:"deliveryDays"`
}

// catalog is the decoded content of the seed directory.
type catalog struct {
	Categories []product.Category
	Products   []product.Product
	Delivery   []delivery.Setting
}

func readJSON(fsys fs.FS, name string, v any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", name)
	}
	return nil
}

// loadCatalog reads categories.json, products.json and delivery.json from
// fsys and checks their references.
func loadCatalog(fsys fs.FS) (*catalog, error) {
	var (
		categories []categoryJSON
		products   []productJSON
		settings   []settingJSON
	)
	if err := readJSON(fsys, "categories.json", &categories); err != nil {
		return nil, err
	}
	if err := readJSON(fsys, "products.json", &products); err != nil {
		return nil, err
	}
	if err := readJSON(fsys, "delivery.json", &settings); err != nil {
		return nil, err
	}

	c := &catalog{}
	known := make(map[string]product.Category, len(categories))
	for _, cat := range categories {
		pc := product.Category{ID: cat.ID, Name: cat.Name}
		known[cat.ID] = pc
		c.Categories = append(c.Categories, pc)
	}
	for _, p := range products {
		if p.ID == "" || p.Name == "" {
			return nil, errors.Errorf("product %q: id and name are required", p.ID)
		}
		if p.PriceBeforeDiscount.IsNegative() ||
			(p.PriceAfterDiscount.Valid && p.PriceAfterDiscount.Decimal.IsNegative()) {
			return nil, errors.Errorf("product %q: negative price", p.ID)
		}
		item := product.Product{
			ID:                  p.ID,
			Name:                p.Name,
			Description:         p.Description,
			PriceBeforeDiscount: p.PriceBeforeDiscount,
			PriceAfterDiscount:  p.PriceAfterDiscount,
			Sizes:               p.Sizes,
			Images:              p.Images,
		}
		if p.Category != "" {
			cat, ok := known[p.Category]
			if !ok {
				return nil, errors.Errorf("product %q: unknown category %q", p.ID, p.Category)
			}
			item.Category = ref.Resolved(cat)
		}
		for _, col := range p.Colors {
			item.Colors = append(item.Colors, product.Color(col))
		}
		c.Products = append(c.Products, item)
	}
	for _, s := range settings {
		ds := delivery.Setting(s)
		if err := ds.Validate(); err != nil {
			return nil, errors.Wrapf(err, "delivery %q", s.State)
		}
		c.Delivery = append(c.Delivery, ds)
	}
	return c, nil
}
