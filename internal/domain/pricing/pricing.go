// Package pricing composes an order total from line items, a flat coupon
// discount and a delivery fee.
//
//	total = max(0, subtotal - discount) + delivery
//
// Compute is a pure function: the same inputs always give the same
// Breakdown, so totals may be recomputed freely on every cart change.
package pricing

import "github.com/shopspring/decimal"

// MaxQuantity is the largest quantity a single line may carry.
const MaxQuantity = 999

// Line is a priced line item.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Amount returns UnitPrice * Quantity.
func (l Line) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Breakdown holds every component of a computed total.
type Breakdown struct {
	Subtotal decimal.Decimal
	// Discount is the coupon amount as configured, not capped.
	Discount decimal.Decimal
	// DiscountedSubtotal is Subtotal - Discount floored at zero.
	DiscountedSubtotal decimal.Decimal
	Delivery           decimal.Decimal
	Total              decimal.Decimal
}

// Subtotal returns the sum of all line amounts.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Amount())
	}
	return sum
}

// ApplyDiscount subtracts a flat discount from subtotal, never going below zero.
func ApplyDiscount(subtotal, discount decimal.Decimal) decimal.Decimal {
	return floorAtZero(subtotal.Sub(discount))
}

// Compute returns the full breakdown for the given lines, discount and
// delivery fee. Negative discount or delivery inputs are treated as zero.
func Compute(lines []Line, discount, delivery decimal.Decimal) Breakdown {
	subtotal := Subtotal(lines)
	discount = floorAtZero(discount)
	delivery = floorAtZero(delivery)

	discounted := ApplyDiscount(subtotal, discount)

	return Breakdown{
		Subtotal:           subtotal.Round(2),
		Discount:           discount.Round(2),
		DiscountedSubtotal: discounted.Round(2),
		Delivery:           delivery.Round(2),
		Total:              discounted.Add(delivery).Round(2),
	}
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
