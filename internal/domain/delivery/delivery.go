package delivery

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Place is where the customer collects the parcel.
type Place string

const (
	// PlaceOffice is pickup at the carrier's office in the wilaya.
	PlaceOffice Place = "office"
	// PlaceHome is delivery to the customer's address.
	PlaceHome Place = "home"
)

// Valid reports whether p is one of the known places.
func (p Place) Valid() bool {
	return p == PlaceOffice || p == PlaceHome
}

var (
	// ErrNotFound is returned when no setting exists for a region.
	ErrNotFound = errors.New("delivery setting not found")
	// ErrInvalidPlace is returned for a delivery place other than office or home.
	ErrInvalidPlace = errors.New("delivery place must be office or home")
	// ErrInvalidSetting is returned when a setting has negative prices or no days.
	ErrInvalidSetting = errors.New("invalid delivery setting")
)

// Setting holds the delivery fees for one region (wilaya).
type Setting struct {
	State        string
	OfficePrice  decimal.Decimal
	HomePrice    decimal.Decimal
	DeliveryDays int
}

// Price returns the fee for the given place.
func (s Setting) Price(place Place) decimal.Decimal {
	if place == PlaceOffice {
		return s.OfficePrice
	}
	return s.HomePrice
}

// Validate checks that prices are non-negative and days positive.
func (s Setting) Validate() error {
	switch {
	case s.State == "":
		return errors.Wrap(ErrInvalidSetting, "state is required")
	case s.OfficePrice.IsNegative(), s.HomePrice.IsNegative():
		return errors.Wrap(ErrInvalidSetting, "prices must not be negative")
	case s.DeliveryDays < 1:
		return errors.Wrap(ErrInvalidSetting, "delivery days must be at least 1")
	}
	return nil
}

// Repository provides access to the delivery settings table.
type Repository interface {
	Get(ctx context.Context, state string) (*Setting, error)
	List(ctx context.Context) ([]Setting, error)
	Upsert(ctx context.Context, s Setting) error
	Delete(ctx context.Context, state string) error
}

// Quote is a resolved delivery fee.
type Quote struct {
	State string
	Place Place
	Price decimal.Decimal
	// Days is zero when the region has no setting.
	Days int
	// Missing is set when the region has no setting and Price fell back to zero.
	Missing bool
}

// Resolver computes delivery fees from the settings table.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by repo.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the fee for delivering to state at place. A region with no
// setting yields a zero fee and a warning log instead of an error.
func (r *Resolver) Resolve(ctx context.Context, state string, place Place) (Quote, error) {
	if !place.Valid() {
		return Quote{}, ErrInvalidPlace
	}

	s, err := r.repo.Get(ctx, state)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			zctx.From(ctx).Warn("Delivery setting missing, using zero fee",
				zap.String("state", state),
				zap.String("place", string(place)),
			)
			return Quote{State: state, Place: place, Price: decimal.Zero, Missing: true}, nil
		}
		return Quote{}, errors.Wrap(err, "get delivery setting")
	}

	return Quote{
		State: state,
		Place: place,
		Price: s.Price(place),
		Days:  s.DeliveryDays,
	}, nil
}

// List returns all settings ordered by state.
func (r *Resolver) List(ctx context.Context) ([]Setting, error) {
	return r.repo.List(ctx)
}

// Get returns the setting for state.
func (r *Resolver) Get(ctx context.Context, state string) (*Setting, error) {
	return r.repo.Get(ctx, state)
}

// Upsert validates and stores a setting.
func (r *Resolver) Upsert(ctx context.Context, s Setting) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := r.repo.Upsert(ctx, s); err != nil {
		return errors.Wrap(err, "upsert delivery setting")
	}
	zctx.From(ctx).Info("Delivery setting saved",
		zap.String("state", s.State),
		zap.Stringer("office_price", s.OfficePrice),
		zap.Stringer("home_price", s.HomePrice),
		zap.Int("days", s.DeliveryDays),
	)
	return nil
}

// Delete removes the setting for state.
func (r *Resolver) Delete(ctx context.Context, state string) error {
	return r.repo.Delete(ctx, state)
}
