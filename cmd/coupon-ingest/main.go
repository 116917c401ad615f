// Command coupon-ingest bulk-imports coupons from gzip compressed CSV files
// into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/internal/domain/coupon"
	"github.com/xenking/coupon-service/internal/ingest"
	"github.com/xenking/coupon-service/internal/storage/postgres"
)

func main() {
	var (
		dataDir       string
		databaseURL   string
		expectedCodes uint
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expectedCodes, "expected-codes", 1_000_000, "expected codes per file, sizes the bloom filters")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}

		files := flag.Args()
		if len(files) == 0 {
			matches, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
			if err != nil {
				return errors.Wrap(err, "list data dir")
			}
			files = matches
		}
		if len(files) == 0 {
			lg.Info("No files to ingest", zap.String("data_dir", dataDir))
			return nil
		}

		lg = lg.With(zap.String("run_id", uuid.NewString()))
		return run(ctx, lg, m, databaseURL, files, expectedCodes)
	})
}

func run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, databaseURL string, files []string, expectedCodes uint) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.WaitReady(ctx, lg, pool, time.Minute); err != nil {
		return err
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewCouponStore(pool)
	manager, err := coupon.NewManager(store,
		coupon.NewLookup(store, coupon.WithLookupTracer(m.TracerProvider())),
		m.MeterProvider().Meter("github.com/xenking/coupon-service/cmd/coupon-ingest"),
	)
	if err != nil {
		return errors.Wrap(err, "create lifecycle manager")
	}

	start := time.Now()
	im := ingest.New(manager, lg, ingest.Options{
		ExpectedCodes: expectedCodes,
		ProgressEvery: 100_000,
	})
	st, err := im.Import(ctx, files)
	lg.Info("Ingest finished",
		zap.Int("files", len(files)),
		zap.Int64("rows", st.Rows),
		zap.Int64("created", st.Created),
		zap.Int64("duplicate", st.Duplicate),
		zap.Int64("cross_file", st.CrossFile),
		zap.Int64("invalid", st.Invalid),
		zap.Duration("took", time.Since(start)),
	)
	if err != nil {
		return errors.Wrap(err, "ingest")
	}
	return nil
}
