package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no coupon has the requested code or id.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when a coupon exists but has been disabled.
	ErrInactive = errors.New("coupon is not active")
	// ErrCodeTaken is returned by Repository.Create when the code already exists.
	ErrCodeTaken = errors.New("coupon code already exists")
	// ErrInvalidAmount is returned when a discount amount is negative.
	ErrInvalidAmount = errors.New("discount amount must not be negative")
)

// Coupon is a flat-amount discount that a customer can apply to one cart.
type Coupon struct {
	ID             string
	Code           string
	DiscountAmount decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	// Toggle flips IsActive and returns the updated coupon.
	Toggle(ctx context.Context, id string) (*Coupon, error)
	Delete(ctx context.Context, id string) error
}
