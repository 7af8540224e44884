package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dernounimk/volty/internal/domain/ref"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrCategoryNotFound is returned when a category reference does not resolve.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrUnknownColor is returned when a selected color is not offered.
	ErrUnknownColor = errors.New("color is not offered for this product")
	// ErrUnknownSize is returned when a selected size is not offered.
	ErrUnknownSize = errors.New("size is not offered for this product")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID                  string
	Name                string
	Description         string
	PriceBeforeDiscount decimal.Decimal
	PriceAfterDiscount  decimal.NullDecimal
	Category            ref.Ref[Category]
	Colors              []Color
	Sizes               []string
	Images              []string
}

// UnitPrice is the price a customer pays for one unit: the discounted price
// when set, the regular price otherwise.
func (p Product) UnitPrice() decimal.Decimal {
	if p.PriceAfterDiscount.Valid {
		return p.PriceAfterDiscount.Decimal
	}
	return p.PriceBeforeDiscount
}

// Color returns the product color with the given id.
func (p Product) Color(id string) (Color, bool) {
	for _, c := range p.Colors {
		if c.ID == id {
			return c, true
		}
	}
	return Color{}, false
}

// HasSize reports whether the product is offered in the given size.
func (p Product) HasSize(size string) bool {
	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// Variant checks that p is offered in color and size and returns the color
// resolved. Empty values select nothing.
func (p Product) Variant(color, size string) (ref.Ref[Color], error) {
	var sel ref.Ref[Color]
	if color != "" {
		c, ok := p.Color(color)
		if !ok {
			return sel, ErrUnknownColor
		}
		sel = ref.Resolved(c)
	}
	if size != "" && !p.HasSize(size) {
		return sel, ErrUnknownSize
	}
	return sel, nil
}

// Category groups products in the catalog.
type Category struct {
	ID   string
	Name string
}

// RefID implements ref.Identifiable.
func (c Category) RefID() string { return c.ID }

// Color is a selectable color variant of a product.
type Color struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// RefID implements ref.Identifiable.
func (c Color) RefID() string { return c.ID }

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products matching ids. Unknown ids are absent from
	// the result rather than reported as an error.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	GetCategory(ctx context.Context, id string) (Category, error)
}

// Index maps product ids to products for repeated lookups within a request.
type Index map[string]Product

// NewIndex builds an Index from a product slice.
func NewIndex(products []Product) Index {
	idx := make(Index, len(products))
	for _, p := range products {
		idx[p.ID] = p
	}
	return idx
}

// Get returns the product with the given id.
func (idx Index) Get(id string) (Product, bool) {
	p, ok := idx[id]
	return p, ok
}
