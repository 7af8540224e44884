package coupon

import (
	"context"

	"github.com/go-faster/errors"
)

// Validator resolves a coupon code to a coupon that may be applied right now.
type Validator interface {
	Resolve(ctx context.Context, code string) (*Coupon, error)
}

// RepoValidator implements Validator on top of a Repository. It always reads
// through to the repository so that a coupon disabled or deleted after a cart
// was loaded is rejected at use time.
type RepoValidator struct {
	repo Repository
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo}
}

// Resolve looks up the coupon by exact code and checks that it is active.
// It returns ErrNotFound or ErrInactive for the two rejection cases.
func (v *RepoValidator) Resolve(ctx context.Context, code string) (*Coupon, error) {
	if code == "" {
		return nil, ErrNotFound
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.IsActive {
		return nil, ErrInactive
	}

	return c, nil
}
