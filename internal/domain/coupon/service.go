package coupon

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 10
	// maxCreateAttempts bounds retries when a generated code collides.
	maxCreateAttempts = 5
)

// CreateRequest holds the admin input for a new coupon.
type CreateRequest struct {
	DiscountAmount decimal.Decimal
	Active         bool
}

// Service implements the administrator side of the coupon lifecycle.
type Service struct {
	repo    Repository
	now     func() time.Time
	newCode func() (string, error)
}

// NewService creates a coupon Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo:    repo,
		now:     time.Now,
		newCode: GenerateCode,
	}
}

// Create issues a coupon with a server-generated code.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	if req.DiscountAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, errors.Wrap(err, "generate code")
		}

		c := &Coupon{
			ID:             uuid.New().String(),
			Code:           code,
			DiscountAmount: req.DiscountAmount.Round(2),
			IsActive:       req.Active,
			CreatedAt:      s.now().UTC(),
		}
		err = s.repo.Create(ctx, c)
		if err == nil {
			zctx.From(ctx).Info("Coupon created",
				zap.String("coupon_id", c.ID),
				zap.String("code", c.Code),
				zap.Stringer("amount", c.DiscountAmount),
			)
			return c, nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return nil, errors.Wrap(err, "create coupon")
		}
		zctx.From(ctx).Debug("Coupon code collision", zap.Int("attempt", attempt))
	}

	return nil, errors.Wrapf(ErrCodeTaken, "after %d attempts", maxCreateAttempts)
}

// List returns all coupons, newest first.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Toggle flips the active flag of the coupon. Orders that already captured
// the code are not affected.
func (s *Service) Toggle(ctx context.Context, id string) (*Coupon, error) {
	c, err := s.repo.Toggle(ctx, id)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Coupon toggled",
		zap.String("coupon_id", c.ID),
		zap.Bool("active", c.IsActive),
	)
	return c, nil
}

// Delete removes the coupon. Carts still holding its code fail re-validation
// on their next use.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	zctx.From(ctx).Info("Coupon deleted", zap.String("coupon_id", id))
	return nil
}

// GenerateCode returns a random coupon code drawn from an alphabet without
// ambiguous characters.
func GenerateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
