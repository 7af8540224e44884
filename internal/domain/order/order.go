package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/product"
	"github.com/dernounimk/volty/internal/domain/ref"
)

var (
	// ErrEmptyItems is returned when an order has no purchasable items.
	ErrEmptyItems = errors.New("order has no items")
	// ErrNotFound is returned when a referenced order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrMixedStatus is returned when a confirmation batch mixes confirmed and
	// pending orders.
	ErrMixedStatus = errors.New("batch mixes confirmed and pending orders")
	// ErrDuplicateOrderNumber is returned by Repository.Create when the order
	// number is already taken.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
)

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Status is the confirmation state of an order.
type Status string

const (
	StatusAll       Status = "all"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Item is a line of an order. Price is the unit price at the time the order
// was placed, SelectedColor the color as the catalog described it then.
// Snapshots stored before colors were resolved carry the color id only.
type Item struct {
	ProductID     string                 `json:"productId"`
	Name          string                 `json:"name"`
	Quantity      int                    `json:"quantity"`
	Price         decimal.Decimal        `json:"price"`
	SelectedColor ref.Ref[product.Color] `json:"selectedColor,omitzero"`
	SelectedSize  string                 `json:"selectedSize,omitempty"`
}

// Amount returns Price * Quantity.
func (i Item) Amount() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is an immutable financial record of a checkout. Only the contact
// fields and the confirmation state change after creation.
type Order struct {
	ID            string
	OrderNumber   string
	FullName      string
	PhoneNumber   string
	Wilaya        string
	Baladia       string
	DeliveryPlace delivery.Place
	Items         []Item
	Subtotal      decimal.Decimal
	// Discount is the amount actually taken off the subtotal.
	Discount      decimal.Decimal
	DeliveryPrice decimal.Decimal
	TotalAmount   decimal.Decimal
	CouponCode    string
	IsConfirmed   bool
	ConfirmedAt   *time.Time
	CreatedAt     time.Time
}

// Status returns the confirmation state of o.
func (o *Order) Status() Status {
	if o.IsConfirmed {
		return StatusConfirmed
	}
	return StatusPending
}

// SortField names a column orders can be sorted by.
type SortField string

const (
	SortCreatedAt   SortField = "created_at"
	SortTotalAmount SortField = "total_amount"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Filter selects and orders a page of orders.
type Filter struct {
	Status Status
	// Search matches the order number, full name or phone number.
	Search string
	Wilaya string
	SortBy SortField
	Asc    bool
	Limit  int
	Offset int
}

// Normalize fills defaults and clamps the page size.
func (f Filter) Normalize() (Filter, error) {
	switch f.Status {
	case "":
		f.Status = StatusAll
	case StatusAll, StatusPending, StatusConfirmed:
	default:
		return f, &ValidationError{Field: "status", Message: "must be one of all, pending, confirmed"}
	}
	switch f.SortBy {
	case "":
		f.SortBy = SortCreatedAt
	case SortCreatedAt, SortTotalAmount:
	default:
		return f, &ValidationError{Field: "sort", Message: "must be created_at or total_amount"}
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f, nil
}

// Page is one page of a filtered order listing.
type Page struct {
	Orders []Order
	// Total counts all orders matching the filter, ignoring Limit and Offset.
	Total int
}

// Patch holds the fields an administrator may edit. Nil fields are left as is.
type Patch struct {
	FullName    *string `json:"fullName" validate:"omitnil,min=1"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitnil,phone"`
	Wilaya      *string `json:"wilaya" validate:"omitnil,min=1"`
	Baladia     *string `json:"baladia" validate:"omitnil,min=1"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.FullName == nil && p.PhoneNumber == nil && p.Wilaya == nil && p.Baladia == nil
}

// WilayaRevenue aggregates confirmed orders of one region.
type WilayaRevenue struct {
	Wilaya  string
	Orders  int
	Revenue decimal.Decimal
}

// Stats summarises the order book.
type Stats struct {
	Total     int
	Confirmed int
	Pending   int
	// Revenue sums TotalAmount over confirmed orders.
	Revenue  decimal.Decimal
	ByWilaya []WilayaRevenue
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts o. It returns ErrDuplicateOrderNumber when o.OrderNumber
	// is already used.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetByIDs returns the orders matching ids. Unknown ids are absent.
	GetByIDs(ctx context.Context, ids []string) ([]Order, error)
	List(ctx context.Context, f Filter) (*Page, error)
	// Update applies p to the contact fields of the order and returns it.
	Update(ctx context.Context, id string, p Patch) (*Order, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	// SetConfirmation moves every order in ids to confirmed. All of them must
	// currently be in the opposite state; otherwise nothing is written and
	// ErrMixedStatus is returned.
	SetConfirmation(ctx context.Context, ids []string, confirmed bool, at *time.Time) error
	Stats(ctx context.Context) (*Stats, error)
}
