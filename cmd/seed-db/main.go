// Command seed-db loads the sample coupons and an optional API key.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/db"
	"github.com/xenking/coupon-service/internal/domain/coupon"
	"github.com/xenking/coupon-service/internal/handler"
	"github.com/xenking/coupon-service/internal/seed"
	"github.com/xenking/coupon-service/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		couponsFile  string
		apiKey       string
		apiKeyPepper string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponsFile, "coupons-file", "", "JSON coupons file, defaults to the embedded sample set")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or COUPON_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COUPON_AUTH_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("COUPON_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COUPON_AUTH_PEPPER")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}

		data := db.SeedCoupons
		if couponsFile != "" {
			b, err := os.ReadFile(couponsFile)
			if err != nil {
				return errors.Wrap(err, "read coupons file")
			}
			data = b
		}
		return run(ctx, lg, databaseURL, data, apiKey, apiKeyPepper)
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, coupons []byte, apiKey, pepper string) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewCouponStore(pool)
	manager, err := coupon.NewManager(store, coupon.NewLookup(store), nil)
	if err != nil {
		return errors.Wrap(err, "create lifecycle manager")
	}

	created, err := seed.Coupons(ctx, lg, manager, coupons)
	if err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	lg.Info("Coupons seeded", zap.Int("created", created))

	if apiKey == "" {
		lg.Info("No API key given, skipping")
		return nil
	}
	if err := seed.APIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, []byte(pepper), handler.ScopeCreateCoupon); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("API key seeded", zap.String("id", seed.DefaultKeyID))
	return nil
}
