// Package app wires the coupon API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/internal/domain/auth"
	"github.com/xenking/coupon-service/internal/domain/coupon"
	"github.com/xenking/coupon-service/internal/handler"
	"github.com/xenking/coupon-service/internal/storage/cache"
	"github.com/xenking/coupon-service/internal/storage/memory"
	"github.com/xenking/coupon-service/internal/storage/postgres"
	"github.com/xenking/coupon-service/pkg/health"
	"github.com/xenking/coupon-service/pkg/httpmiddleware"
)

const meterName = "github.com/xenking/coupon-service"

// backend is the storage selected by Config.Storage.
type backend struct {
	coupons coupon.Store
	apikeys auth.Repository
	pinger  health.Pinger
	close   func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, coupons are lost on restart")
		s := memory.NewCouponStore()
		return &backend{coupons: s, pinger: s, close: func() {}}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.WaitReady(ctx, lg, pool, time.Minute); err != nil {
		pool.Close()
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &backend{
		coupons: postgres.NewCouponStore(pool),
		apikeys: postgres.NewAPIKeyRepository(pool),
		pinger:  pool,
		close:   pool.Close,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	be, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	store := be.coupons
	if cfg.Cache.Enabled {
		store = cache.New(store, cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	}

	// Domain services.
	meter := m.MeterProvider().Meter(meterName)
	lookup := coupon.NewLookup(store,
		coupon.WithConcurrency(cfg.Lookup.Concurrency),
		coupon.WithLookupTracer(m.TracerProvider()),
	)
	engine, err := coupon.NewEngine(lookup, meter)
	if err != nil {
		return errors.Wrap(err, "create discount engine")
	}
	manager, err := coupon.NewManager(store, lookup, meter)
	if err != nil {
		return errors.Wrap(err, "create lifecycle manager")
	}

	var opts []handler.Option
	if cfg.Auth.Enabled {
		opts = append(opts, handler.WithAuthenticator(auth.NewAuthenticator(be.apikeys, []byte(cfg.Auth.Pepper))))
		lg.Info("API key required for coupon creation")
	}
	h := handler.New(engine, manager, lookup, opts...)

	// Health checks.
	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadinessCheck("store", 5*time.Second, health.PingCheck(be.pinger))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes())
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, "X-API-Key"},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				RPS:   cfg.RateLimit.RPS,
				Burst: cfg.RateLimit.Burst,
			}),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("coupon-api", routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
