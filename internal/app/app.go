package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dernounimk/volty/internal/domain/auth"
	"github.com/dernounimk/volty/internal/domain/cart"
	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/order"
	"github.com/dernounimk/volty/internal/events"
	"github.com/dernounimk/volty/internal/handler"
	"github.com/dernounimk/volty/internal/storage/postgres"
	"github.com/dernounimk/volty/internal/storage/redis"
	"github.com/dernounimk/volty/pkg/health"
	"github.com/dernounimk/volty/pkg/httpmiddleware"
)

const serviceName = "volty-api"

// Server is the assembled HTTP service with the resources it owns.
type Server struct {
	Handler http.Handler
	Health  *health.Health

	lg      *zap.Logger
	closers []func() error
}

// Close releases the resources in reverse order of acquisition.
func (s *Server) Close() {
	s.Health.Stop()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.lg.Warn("Close resource", zap.Error(err))
		}
	}
}

// NewServer connects to every backing service and builds the HTTP handler.
// Health checks are started with ctx.
func NewServer(ctx context.Context, lg *zap.Logger, t httpmiddleware.Telemetry, cfg *Config) (_ *Server, rerr error) {
	s := &Server{lg: lg, Health: health.New()}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	s.closers = append(s.closers, func() error { pool.Close(); return nil })

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	// Redis holds cart sessions.
	rdb, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "create redis client")
	}
	s.closers = append(s.closers, rdb.Close)

	publisher, err := events.Open(cfg.Events)
	if err != nil {
		return nil, errors.Wrap(err, "open events publisher")
	}
	s.closers = append(s.closers, publisher.Close)

	// Health check service.
	s.Health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	s.Health.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	s.Health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	s.Health.Start(ctx, 10*time.Second)
	s.Health.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	deliveryRepo := postgres.NewDeliveryRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	cartStore := redis.NewCartStore(rdb, cfg.Cart.TTL)

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	deliveryResolver := delivery.NewResolver(deliveryRepo)
	orderService, err := order.NewService(productRepo, couponValidator, deliveryResolver, orderRepo,
		order.WithPublisher(publisher),
		order.WithTracerProvider(t.TracerProvider()),
		order.WithMeterProvider(t.MeterProvider()),
		order.WithOrderNumber(cfg.Order.NumberDigits, cfg.Order.NumberAttempts),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	cartService := cart.NewService(cartStore, productRepo, couponValidator, deliveryResolver, orderService)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		productRepo,
		coupon.NewService(couponRepo),
		deliveryResolver,
		cartService,
		orderService,
	)
	requireAdmin := handler.RequireAPIKey(
		auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
		auth.ScopeAdmin,
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", s.Health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", s.Health.ReadyEndpoint)
	h.Register(mux, requireAdmin)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	s.Handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Content-Disposition"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Rules: []httpmiddleware.RateLimitRule{
				{Name: "orders", Max: cfg.RateLimit.OrderMax, Window: cfg.RateLimit.OrderWindow, Match: isOrderPlacement},
				{Name: "api", Max: cfg.RateLimit.Max, Window: cfg.RateLimit.Window},
			},
			Limiter: newLimiter(ctx, cfg.RateLimit, rdb),
			Skip:    isProbe,
		}),
		httpmiddleware.Instrument(serviceName, routeFinder, t),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
	return s, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	s, err := NewServer(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           s.Handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.Health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func newLimiter(ctx context.Context, cfg RateLimitConfig, rdb goredis.Cmdable) httpmiddleware.Limiter {
	if cfg.Store == "memory" {
		l := httpmiddleware.NewMemoryLimiter()
		go l.Run(ctx, 2*max(cfg.Window, cfg.OrderWindow))
		return l
	}
	return redis.NewRateLimiter(rdb)
}

// isOrderPlacement matches the requests that create orders.
func isOrderPlacement(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	return r.URL.Path == "/api/orders" ||
		(strings.HasPrefix(r.URL.Path, "/api/cart/") && strings.HasSuffix(r.URL.Path, "/checkout"))
}

// isProbe reports whether r is a health probe, exempt from rate limiting.
func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}
