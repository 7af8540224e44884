// Command coupon-import loads flat-amount coupons from gzip-compressed lists.
//
// Each line holds CODE or CODE,AMOUNT. Codes found in more than one file are
// reported and skipped; all other codes are upserted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/storage/postgres"
)

const batchSize = 1000

func main() {
	_ = godotenv.Load()

	var (
		pattern     string
		databaseURL string
		amount      string
		inactive    bool
		dryRun      bool
	)
	flag.StringVar(&pattern, "files", "data/coupons*.gz", "glob of gzip-compressed coupon lists")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or VOLTY_DATABASE_URL / DATABASE_URL env)")
	flag.StringVar(&amount, "amount", "0", "discount amount for lines without one")
	flag.BoolVar(&inactive, "inactive", false, "import coupons as inactive")
	flag.BoolVar(&dryRun, "dry-run", false, "scan files without writing to the database")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("VOLTY_DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	defaultAmount, err := decimal.NewFromString(amount)
	if err != nil || defaultAmount.IsNegative() {
		lg.Fatal("Invalid --amount", zap.String("amount", amount))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files, err := filepath.Glob(pattern)
	if err != nil || len(files) == 0 {
		lg.Fatal("No input files", zap.String("files", pattern), zap.Error(err))
	}
	slices.Sort(files)

	im := &importer{
		lg:            lg,
		files:         files,
		defaultAmount: defaultAmount,
		capacity:      10_000_000,
		fpRate:        0.001,
	}
	res, err := im.run(ctx)
	if err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Files scanned",
		zap.Int("files", len(files)),
		zap.Int("coupons", len(res.Records)),
		zap.Int("conflicts", len(res.Conflicts)),
		zap.Int("invalid_lines", res.Invalid),
	)
	if len(res.Conflicts) > 0 {
		lg.Warn("Skipped codes listed in several files", zap.Strings("codes", firstN(res.Conflicts, 20)))
	}
	if dryRun || len(res.Records) == 0 {
		return
	}

	if err := write(ctx, lg, databaseURL, res.Records, !inactive); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Coupon import completed", zap.Int("coupons", len(res.Records)))
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// toCoupons converts records into coupons created at now.
func toCoupons(records []record, active bool, now time.Time) []coupon.Coupon {
	out := make([]coupon.Coupon, len(records))
	for i, r := range records {
		out[i] = coupon.Coupon{
			ID:             uuid.New().String(),
			Code:           r.Code,
			DiscountAmount: r.Amount.Round(2),
			IsActive:       active,
			CreatedAt:      now,
		}
	}
	return out
}

func write(ctx context.Context, lg *zap.Logger, databaseURL string, records []record, active bool) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewCouponRepository(pool)
	coupons := toCoupons(records, active, time.Now().UTC())
	for batch := range slices.Chunk(coupons, batchSize) {
		if err := repo.UpsertMany(ctx, batch); err != nil {
			return err
		}
		lg.Debug("Batch written", zap.Int("size", len(batch)))
	}
	return nil
}
