// Package cart keeps shopping cart sessions and prices them against the
// live catalog.
//
// A Session is a plain value passed to every operation. It stores product
// references, quantities and the applied coupon code only; unit prices and
// the coupon amount are looked up again whenever the cart is priced.
package cart

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/pricing"
	"github.com/dernounimk/volty/internal/domain/product"
)

var (
	// ErrSessionNotFound is returned when a cart session does not exist or
	// has expired.
	ErrSessionNotFound = errors.New("cart session not found")
	// ErrItemNotFound is returned when updating a line that is not in the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned for quantities below one or above
	// pricing.MaxQuantity.
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 999")
)

// Key identifies a cart line. Lines with equal keys are merged.
type Key struct {
	ProductID string
	// Color is the selected color id, empty when none was chosen.
	Color string
	// Size is the selected size, empty when none was chosen.
	Size string
}

// Item is one line of the cart.
type Item struct {
	Key
	Quantity int
}

// Session is the state of one shopper's cart.
type Session struct {
	ID         string
	Items      []Item
	CouponCode string
	Wilaya     string
	Place      delivery.Place
	UpdatedAt  time.Time
}

func (s *Session) index(k Key) int {
	for i, it := range s.Items {
		if it.Key == k {
			return i
		}
	}
	return -1
}

func validQuantity(qty int) bool {
	return qty >= 1 && qty <= pricing.MaxQuantity
}

// AddItem adds qty units of the keyed line, merging with an existing line.
// The merged quantity is bounded like any other.
func (s *Session) AddItem(k Key, qty int) error {
	if !validQuantity(qty) {
		return ErrInvalidQuantity
	}
	if i := s.index(k); i >= 0 {
		if !validQuantity(s.Items[i].Quantity + qty) {
			return ErrInvalidQuantity
		}
		s.Items[i].Quantity += qty
		return nil
	}
	s.Items = append(s.Items, Item{Key: k, Quantity: qty})
	return nil
}

// UpdateQuantity replaces the quantity of an existing line.
func (s *Session) UpdateQuantity(k Key, qty int) error {
	if !validQuantity(qty) {
		return ErrInvalidQuantity
	}
	i := s.index(k)
	if i < 0 {
		return ErrItemNotFound
	}
	s.Items[i].Quantity = qty
	return nil
}

// RemoveItem drops the keyed line. Removing an absent line is a no-op.
func (s *Session) RemoveItem(k Key) {
	if i := s.index(k); i >= 0 {
		s.Items = append(s.Items[:i], s.Items[i+1:]...)
	}
}

// Prune drops lines whose product is missing from idx and returns their keys.
func (s *Session) Prune(idx product.Index) []Key {
	var (
		kept   = s.Items[:0]
		pruned []Key
	)
	for _, it := range s.Items {
		if _, ok := idx.Get(it.ProductID); ok {
			kept = append(kept, it)
			continue
		}
		pruned = append(pruned, it.Key)
	}
	s.Items = kept
	return pruned
}

// ProductIDs returns the distinct product ids in the cart.
func (s *Session) ProductIDs() []string {
	seen := make(map[string]struct{}, len(s.Items))
	ids := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

// Lines prices every line with the current unit price from idx. Lines whose
// product is missing are skipped.
func (s *Session) Lines(idx product.Index) []pricing.Line {
	lines := make([]pricing.Line, 0, len(s.Items))
	for _, it := range s.Items {
		p, ok := idx.Get(it.ProductID)
		if !ok {
			continue
		}
		lines = append(lines, pricing.Line{UnitPrice: p.UnitPrice(), Quantity: it.Quantity})
	}
	return lines
}

// Subtotal returns the sum of unit price times quantity using prices from idx.
func (s *Session) Subtotal(idx product.Index) decimal.Decimal {
	return pricing.Subtotal(s.Lines(idx))
}

// ApplyCoupon records code as the applied coupon, replacing any previous one.
func (s *Session) ApplyCoupon(code string) {
	s.CouponCode = code
}

// RemoveCoupon clears the applied coupon.
func (s *Session) RemoveCoupon() {
	s.CouponCode = ""
}

// SetDelivery records the destination region and place.
func (s *Session) SetDelivery(wilaya string, place delivery.Place) error {
	if !place.Valid() {
		return delivery.ErrInvalidPlace
	}
	s.Wilaya = wilaya
	s.Place = place
	return nil
}

// HasDelivery reports whether a destination has been chosen.
func (s *Session) HasDelivery() bool {
	return s.Wilaya != "" && s.Place.Valid()
}
