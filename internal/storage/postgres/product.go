package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dernounimk/volty/internal/domain/product"
	"github.com/dernounimk/volty/internal/domain/ref"
)

const (
	productColumns = `p.id, p.name, p.description, p.price_before_discount, p.price_after_discount,
		p.category_id, c.name, p.colors, p.sizes, p.images`

	productFrom = `FROM products p LEFT JOIN categories c ON c.id = p.category_id`

	listProductsSQL = `SELECT ` + productColumns + ` ` + productFrom + ` ORDER BY p.created_at, p.id`

	getProductByIDSQL = `SELECT ` + productColumns + ` ` + productFrom + ` WHERE p.id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` ` + productFrom + ` WHERE p.id = ANY($1)`

	getCategorySQL = `SELECT id, name FROM categories WHERE id = $1`

	upsertCategorySQL = `INSERT INTO categories (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertProductSQL = `INSERT INTO products
		(id, name, description, price_before_discount, price_after_discount, category_id, colors, sizes, images)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price_before_discount = EXCLUDED.price_before_discount,
			price_after_discount = EXCLUDED.price_after_discount,
			category_id = EXCLUDED.category_id,
			colors = EXCLUDED.colors,
			sizes = EXCLUDED.sizes,
			images = EXCLUDED.images`
)

var _ product.Repository = (*ProductRepository)(nil)

// colorJSON is the JSONB shape of a product color.
type colorJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetCategory returns a category by id.
func (r *ProductRepository) GetCategory(ctx context.Context, id string) (product.Category, error) {
	var c product.Category
	err := r.pool.QueryRow(ctx, getCategorySQL, id).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, product.ErrCategoryNotFound
		}
		return c, fmt.Errorf("getting category %q: %w", id, err)
	}
	return c, nil
}

// UpsertCategory inserts or renames a category.
func (r *ProductRepository) UpsertCategory(ctx context.Context, c product.Category) error {
	if _, err := r.pool.Exec(ctx, upsertCategorySQL, c.ID, c.Name); err != nil {
		return fmt.Errorf("upserting category %q: %w", c.ID, err)
	}
	return nil
}

// Upsert inserts or replaces a product.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	colors := make([]colorJSON, len(p.Colors))
	for i, c := range p.Colors {
		colors[i] = colorJSON(c)
	}
	sizes := p.Sizes
	if sizes == nil {
		sizes = []string{}
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}

	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Description, p.PriceBeforeDiscount, p.PriceAfterDiscount,
		p.Category.ID(), colors, sizes, images,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p            product.Product
		categoryID   *string
		categoryName *string
		colors       []colorJSON
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.PriceBeforeDiscount, &p.PriceAfterDiscount,
		&categoryID, &categoryName, &colors, &p.Sizes, &p.Images,
	)
	if err != nil {
		return p, err
	}

	switch {
	case categoryID != nil && categoryName != nil:
		p.Category = ref.Resolved(product.Category{ID: *categoryID, Name: *categoryName})
	case categoryID != nil:
		p.Category = ref.ID[product.Category](*categoryID)
	}
	p.Colors = make([]product.Color, len(colors))
	for i, c := range colors {
		p.Colors[i] = product.Color(c)
	}
	return p, nil
}
