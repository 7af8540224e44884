package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dernounimk/volty/internal/domain/delivery"
)

const (
	getDeliverySQL = `SELECT state, office_price, home_price, delivery_days
		FROM delivery_settings WHERE state = $1`

	listDeliverySQL = `SELECT state, office_price, home_price, delivery_days
		FROM delivery_settings ORDER BY state`

	upsertDeliverySQL = `INSERT INTO delivery_settings (state, office_price, home_price, delivery_days)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (state) DO UPDATE SET
			office_price = EXCLUDED.office_price,
			home_price = EXCLUDED.home_price,
			delivery_days = EXCLUDED.delivery_days`

	deleteDeliverySQL = `DELETE FROM delivery_settings WHERE state = $1`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Repository backed by PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// Get returns the setting for state.
func (r *DeliveryRepository) Get(ctx context.Context, state string) (*delivery.Setting, error) {
	rows, err := r.pool.Query(ctx, getDeliverySQL, state)
	if err != nil {
		return nil, fmt.Errorf("getting delivery setting %q: %w", state, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSetting)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("getting delivery setting %q: %w", state, err)
	}
	return &s, nil
}

// List returns every setting ordered by state.
func (r *DeliveryRepository) List(ctx context.Context) ([]delivery.Setting, error) {
	rows, err := r.pool.Query(ctx, listDeliverySQL)
	if err != nil {
		return nil, fmt.Errorf("listing delivery settings: %w", err)
	}
	return pgx.CollectRows(rows, scanSetting)
}

// Upsert inserts or replaces the setting for s.State.
func (r *DeliveryRepository) Upsert(ctx context.Context, s delivery.Setting) error {
	_, err := r.pool.Exec(ctx, upsertDeliverySQL, s.State, s.OfficePrice, s.HomePrice, s.DeliveryDays)
	if err != nil {
		return fmt.Errorf("upserting delivery setting %q: %w", s.State, err)
	}
	return nil
}

// Delete removes the setting for state.
func (r *DeliveryRepository) Delete(ctx context.Context, state string) error {
	tag, err := r.pool.Exec(ctx, deleteDeliverySQL, state)
	if err != nil {
		return fmt.Errorf("deleting delivery setting %q: %w", state, err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

func scanSetting(row pgx.CollectableRow) (delivery.Setting, error) {
	var s delivery.Setting
	err := row.Scan(&s.State, &s.OfficePrice, &s.HomePrice, &s.DeliveryDays)
	return s, err
}
