package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/order"
)

const (
	orderColumns = `id, order_number, full_name, phone_number, wilaya, baladia, delivery_place,
		items, subtotal, discount, delivery_price, total_amount, coupon_code,
		is_confirmed, confirmed_at, created_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrdersByIDsSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = ANY($1) ORDER BY created_at`

	// orderFilterSQL selects by status ($1), search ($2) and wilaya ($3).
	orderFilterSQL = `WHERE ($1 = 'all' OR is_confirmed = ($1 = 'confirmed'))
		AND ($2 = '' OR order_number ILIKE $2 OR full_name ILIKE $2 OR phone_number ILIKE $2)
		AND ($3 = '' OR wilaya = $3)`

	countOrdersSQL = `SELECT count(*) FROM orders ` + orderFilterSQL

	updateOrderSQL = `UPDATE orders SET
			full_name = COALESCE($2, full_name),
			phone_number = COALESCE($3, phone_number),
			wilaya = COALESCE($4, wilaya),
			baladia = COALESCE($5, baladia)
		WHERE id = $1
		RETURNING ` + orderColumns

	deleteOrdersSQL = `DELETE FROM orders WHERE id = ANY($1)`

	countOrdersByIDsSQL = `SELECT count(*) FROM orders WHERE id = ANY($1)`

	setConfirmationSQL = `UPDATE orders SET is_confirmed = $2, confirmed_at = $3
		WHERE id = ANY($1) AND is_confirmed <> $2`

	orderTotalsSQL = `SELECT count(*),
			count(*) FILTER (WHERE is_confirmed),
			COALESCE(sum(total_amount) FILTER (WHERE is_confirmed), 0)
		FROM orders`

	revenueByWilayaSQL = `SELECT wilaya, count(*), sum(total_amount)
		FROM orders WHERE is_confirmed
		GROUP BY wilaya ORDER BY sum(total_amount) DESC, wilaya`
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, o.FullName, o.PhoneNumber, o.Wilaya, o.Baladia, string(o.DeliveryPlace),
		itemsJSON, o.Subtotal, o.Discount, o.DeliveryPrice, o.TotalAmount, o.CouponCode,
		o.IsConfirmed, o.ConfirmedAt, o.CreatedAt,
	)
	if err != nil {
		if uniqueViolationOn(err, "orders_order_number_key") {
			return order.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// GetByIDs returns the orders matching ids.
func (r *OrderRepository) GetByIDs(ctx context.Context, ids []string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrdersByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting orders by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns one page of orders matching f. f must be normalized.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) (*order.Page, error) {
	search := ""
	if f.Search != "" {
		search = "%" + likeEscaper.Replace(f.Search) + "%"
	}
	args := []any{string(f.Status), search, f.Wilaya}

	var total int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}

	column := "created_at"
	if f.SortBy == order.SortTotalAmount {
		column = "total_amount"
	}
	dir := "DESC"
	if f.Asc {
		dir = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY %s %s, id LIMIT $4 OFFSET $5`,
		orderColumns, orderFilterSQL, column, dir)

	rows, err := r.pool.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return &order.Page{Orders: orders, Total: total}, nil
}

// Update applies p to the contact fields of the order.
func (r *OrderRepository) Update(ctx context.Context, id string, p order.Patch) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderSQL, id, p.FullName, p.PhoneNumber, p.Wilaya, p.Baladia)
	if err != nil {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	return &o, nil
}

// Delete removes the orders in ids.
func (r *OrderRepository) Delete(ctx context.Context, ids []string) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteOrdersSQL, ids)
	if err != nil {
		return 0, fmt.Errorf("deleting orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetConfirmation updates every order in ids inside one transaction. If any
// of them is already in the target state the transaction is rolled back with
// order.ErrMixedStatus, or with order.ErrNotFound when some of them no longer
// exist. ids must not repeat.
func (r *OrderRepository) SetConfirmation(ctx context.Context, ids []string, confirmed bool, at *time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, setConfirmationSQL, ids, confirmed, at)
		if err != nil {
			return fmt.Errorf("setting confirmation: %w", err)
		}
		if tag.RowsAffected() == int64(len(ids)) {
			return nil
		}
		var found int64
		if err := tx.QueryRow(ctx, countOrdersByIDsSQL, ids).Scan(&found); err != nil {
			return fmt.Errorf("counting orders: %w", err)
		}
		if found < int64(len(ids)) {
			return order.ErrNotFound
		}
		return order.ErrMixedStatus
	})
}

// Stats aggregates order counts and confirmed revenue.
func (r *OrderRepository) Stats(ctx context.Context) (*order.Stats, error) {
	var st order.Stats
	if err := r.pool.QueryRow(ctx, orderTotalsSQL).Scan(&st.Total, &st.Confirmed, &st.Revenue); err != nil {
		return nil, fmt.Errorf("order totals: %w", err)
	}
	st.Pending = st.Total - st.Confirmed

	rows, err := r.pool.Query(ctx, revenueByWilayaSQL)
	if err != nil {
		return nil, fmt.Errorf("revenue by wilaya: %w", err)
	}
	st.ByWilaya, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.WilayaRevenue, error) {
		var w order.WilayaRevenue
		err := row.Scan(&w.Wilaya, &w.Orders, &w.Revenue)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("revenue by wilaya: %w", err)
	}
	return &st, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		place     string
		itemsJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.FullName, &o.PhoneNumber, &o.Wilaya, &o.Baladia, &place,
		&itemsJSON, &o.Subtotal, &o.Discount, &o.DeliveryPrice, &o.TotalAmount, &o.CouponCode,
		&o.IsConfirmed, &o.ConfirmedAt, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.DeliveryPlace = delivery.Place(place)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	return o, nil
}
