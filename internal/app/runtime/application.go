package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/mongo"

	app "github.com/muraguri00/zalora-luxury/internal/app"
	"github.com/muraguri00/zalora-luxury/internal/app/events"
	"github.com/muraguri00/zalora-luxury/internal/app/httpapi"
	"github.com/muraguri00/zalora-luxury/internal/app/idempotency"
	"github.com/muraguri00/zalora-luxury/internal/app/metrics"
	"github.com/muraguri00/zalora-luxury/internal/app/services/wallets"
	"github.com/muraguri00/zalora-luxury/internal/app/storage/memory"
	mongostore "github.com/muraguri00/zalora-luxury/internal/app/storage/mongo"
	"github.com/muraguri00/zalora-luxury/internal/app/storage/postgres"
	supabasestore "github.com/muraguri00/zalora-luxury/internal/app/storage/supabase"
	"github.com/muraguri00/zalora-luxury/internal/config"
	"github.com/muraguri00/zalora-luxury/internal/middleware"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

// Application wires the configured backends and manages the HTTP server
// lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	limiter    *middleware.RateLimiter

	db    *sqlx.DB
	redis *redis.Client
	mongo *mongo.Client

	cancelCleanup context.CancelFunc
}

// NewApplication loads configuration from the environment and builds the
// application.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewFromConfig(ctx, cfg, logger.New(cfg.Logging))
}

// NewFromConfig builds the application from an already loaded configuration.
func NewFromConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("storefront")
	}
	a := &Application{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.closeBackends()
		}
	}()

	stores, opts, sb, err := a.buildBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("configure %s backend: %w", cfg.Store.Backend, err)
	}

	if cfg.Mongo.URI != "" {
		mc, mirror, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout)
		if err != nil {
			return nil, fmt.Errorf("configure audit mirror: %w", err)
		}
		a.mongo = mc
		stores.AuditMirrors = append(stores.AuditMirrors, mirror)
		log.WithField("database", cfg.Mongo.Database).Info("mongo audit mirror enabled")
	}

	opts.RecoverySchedule = cfg.Recovery.Schedule
	opts.RecoveryStaleAge = cfg.Recovery.StaleAge
	core, err := app.New(stores, opts, log.Named("app"))
	if err != nil {
		return nil, err
	}
	a.app = core

	if sb != nil && cfg.Supabase.Realtime {
		rt, err := sb.Realtime()
		if err != nil {
			return nil, fmt.Errorf("configure realtime: %w", err)
		}
		if err := core.Attach(events.NewRealtimeBridge(rt, core.Events, log.Named("realtime"))); err != nil {
			return nil, err
		}
	}

	var idem idempotency.Store = idempotency.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		rc, err := idempotency.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("configure idempotency store: %w", err)
		}
		a.redis = rc
		idem = idempotency.NewRedisStore(rc, cfg.Redis.Prefix)
		log.WithField("addr", cfg.Redis.Addr).Info("redis idempotency store enabled")
	}

	if cfg.RateLimit.OrdersPerSecond > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimit.OrdersPerSecond, cfg.RateLimit.Burst, log.Named("ratelimit"))
	}

	handler := httpapi.NewHandler(core, httpapi.Options{
		Verifier:       buildVerifier(cfg.Auth, sb),
		AdminUserIDs:   httpapi.ParseAdminIDs(cfg.Auth.AdminUserIDs),
		AllowedOrigins: config.SplitList(cfg.Server.AllowedOrigins),
		OrderLimiter:   a.limiter,
		Idempotency:    idem,
		IdempotencyTTL: cfg.Server.IdempotencyTTL,
		Logger:         log.Named("httpapi"),
	})
	a.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ok = true
	return a, nil
}

// buildBackend opens the configured store. The returned client is non-nil
// only for the supabase backend.
func (a *Application) buildBackend(ctx context.Context) (app.Stores, app.Options, *client.Client, error) {
	cfg := a.cfg
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime, cfg.Database.ConnectTimeout)
		if err != nil {
			return app.Stores{}, app.Options{}, nil, err
		}
		a.db = db
		return app.StoresFrom(postgres.New(db)), app.Options{}, nil, nil

	case config.BackendSupabase:
		sb, err := newSupabaseClient(cfg.Supabase, a.log)
		if err != nil {
			return app.Stores{}, app.Options{}, nil, err
		}
		if rc := sb.Resilience(); rc != nil {
			metrics.ObserveUpstream(rc)
		}
		storeOpts := []supabasestore.Option{}
		if cfg.Supabase.StockRPC {
			storeOpts = append(storeOpts, supabasestore.WithStockRPC())
		}
		stores := app.StoresFrom(supabasestore.New(sb, a.log.Named("supabase-store"), storeOpts...))
		opts := app.Options{}
		if cfg.Supabase.StorageBucket != "" {
			opts.QR = wallets.BucketUploader{Bucket: sb.Storage().From(cfg.Supabase.StorageBucket), Prefix: "wallets"}
		}
		return stores, opts, sb, nil

	default:
		return app.StoresFrom(memory.New()), app.Options{}, nil, nil
	}
}

func newSupabaseClient(cfg config.SupabaseConfig, log *logger.Logger) (*client.Client, error) {
	retry := client.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	breaker := client.DefaultCircuitBreakerConfig()
	breaker.OnStateChange = func(from, to client.CircuitState) {
		log.WithField("from", from.String()).WithField("to", to.String()).Warn("supabase circuit breaker changed state")
	}
	return client.New(client.Config{
		URL:        cfg.URL,
		APIKey:     cfg.Key(),
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Retry:      &retry,
		Breaker:    &breaker,
	})
}

// buildVerifier prefers the local JWT secret and falls back to the hosted
// auth endpoint when enabled.
func buildVerifier(cfg config.AuthConfig, sb *client.Client) middleware.Verifier {
	chain := middleware.Chain{}
	if cfg.JWTSecret != "" {
		chain = append(chain, middleware.JWTVerifier{Secret: []byte(cfg.JWTSecret)})
	}
	if cfg.RemoteVerify && sb != nil {
		chain = append(chain, middleware.NewRemoteVerifier(sb.Auth(), cfg.TokenCacheTTL))
	}
	return chain
}

// Handler exposes the HTTP surface, mainly for tests.
func (a *Application) Handler() http.Handler { return a.httpServer.Handler }

// Run starts background services and the HTTP server and blocks until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	if a.limiter != nil {
		cleanupCtx, cancel := context.WithCancel(context.Background())
		a.cancelCleanup = cancel
		go a.limiter.RunCleanup(cleanupCtx, time.Minute, 10*time.Minute)
	}

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", ln.Addr().String()).WithField("backend", a.cfg.Store.Backend).Info("HTTP server listening")
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, background services and backends.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if a.cancelCleanup != nil {
		a.cancelCleanup()
	}
	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop services: %w", err))
	}
	a.closeBackends()
	return errors.Join(errs...)
}

func (a *Application) closeBackends() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.db = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
		a.redis = nil
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(context.Background()); err != nil {
			a.log.WithError(err).Warn("error closing mongo connection")
		}
		a.mongo = nil
	}
}
