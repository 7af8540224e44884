// Command seed-db applies the schema and loads the sample catalog, delivery
// fees, coupons and an admin API key.
package main

import (
	"context"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dernounimk/volty/db"
	"github.com/dernounimk/volty/internal/domain/auth"
	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/storage/postgres"
)

// sampleCoupons are flat-amount coupons for local testing.
var sampleCoupons = []coupon.Coupon{
	{ID: "seed-welcome", Code: "WELCOME300", DiscountAmount: decimal.NewFromInt(300), IsActive: true},
	{ID: "seed-volty", Code: "VOLTY500", DiscountAmount: decimal.NewFromInt(500), IsActive: true},
	{ID: "seed-expired", Code: "SUMMER1000", DiscountAmount: decimal.NewFromInt(1000), IsActive: false},
}

func main() {
	_ = godotenv.Load()

	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or VOLTY_DATABASE_URL / DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or VOLTY_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or VOLTY_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	databaseURL = firstNonEmpty(databaseURL, os.Getenv("VOLTY_DATABASE_URL"), os.Getenv("DATABASE_URL"))
	apiKey = firstNonEmpty(apiKey, os.Getenv("VOLTY_SEED_API_KEY"))
	apiKeyPepper = firstNonEmpty(apiKeyPepper, os.Getenv("VOLTY_API_KEY_PEPPER"))
	switch {
	case databaseURL == "":
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	case apiKey == "":
		lg.Fatal("API key is required: set --api-key or VOLTY_SEED_API_KEY")
	case apiKeyPepper == "":
		lg.Fatal("API key pepper is required: set --api-key-pepper or VOLTY_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, apiKey, apiKeyPepper); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, apiKey, pepper string) error {
	seed, err := fs.Sub(db.Seed, "seed")
	if err != nil {
		return errors.Wrap(err, "open seed dir")
	}
	c, err := loadCatalog(seed)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	for _, cat := range c.Categories {
		if err := products.UpsertCategory(ctx, cat); err != nil {
			return err
		}
	}
	for _, p := range c.Products {
		if err := products.Upsert(ctx, p); err != nil {
			return err
		}
	}
	lg.Info("Catalog seeded",
		zap.Int("categories", len(c.Categories)),
		zap.Int("products", len(c.Products)),
	)

	deliveries := postgres.NewDeliveryRepository(pool)
	for _, s := range c.Delivery {
		if err := deliveries.Upsert(ctx, s); err != nil {
			return err
		}
	}
	lg.Info("Delivery settings seeded", zap.Int("states", len(c.Delivery)))

	now := time.Now().UTC()
	coupons := make([]coupon.Coupon, len(sampleCoupons))
	for i, cp := range sampleCoupons {
		cp.CreatedAt = now
		coupons[i] = cp
	}
	if err := postgres.NewCouponRepository(pool).UpsertMany(ctx, coupons); err != nil {
		return err
	}
	lg.Info("Coupons seeded", zap.Int("count", len(coupons)))

	key := auth.APIKey{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return err
	}
	lg.Info("API key seeded", zap.String("id", key.ID), zap.String("name", key.Name))
	return nil
}
