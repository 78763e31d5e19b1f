package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/payslip"
	"paydesk/internal/domain/preferences"
	"paydesk/internal/platform/archive"
	"paydesk/internal/platform/config"
	"paydesk/internal/platform/crypto"
	"paydesk/internal/platform/db"
	"paydesk/internal/platform/jobs"
	"paydesk/internal/platform/logging"
	"paydesk/internal/platform/metrics"
	"paydesk/internal/platform/payrollapi"
	"paydesk/internal/transport/http/api"
	payrollhandler "paydesk/internal/transport/http/handlers/payroll"
	"paydesk/internal/transport/http/middleware"
)

const (
	readinessTimeout = 2 * time.Second
	archiveQueueSize = 64
	archiveWorkers   = 2
)

type App struct {
	Config  config.Config
	Router  http.Handler
	Logger  *zap.Logger
	Metrics *metrics.Collector

	prefs    *preferences.Store
	upstream *payrollapi.Client
	db       *pgxpool.Pool
	closers  []func()
}

// New wires every dependency for cfg. The caller owns the returned App and
// must Close it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		app.db = pool
		app.closers = append(app.closers, pool.Close)
	}

	recorder, err := app.auditRecorder(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	backend, err := app.preferenceBackend(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.prefs = preferences.NewStore(backend, logger.Named("preferences"))

	app.upstream = payrollapi.New(cfg.PayrollAPIURL, cfg.PayrollAPITimeout)
	profiles, err := payrollapi.NewProfileSource(app.upstream, cfg.CompanyProfileFile)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("company profile: %w", err)
	}

	handler := &payrollhandler.Handler{
		Employees: app.upstream,
		Profiles:  profiles,
		Prefs:     app.prefs,
		Renderer:  payslip.NewRenderer(payslip.NewHTTPLogoFetcher(cfg.LogoFetchTimeout), logger.Named("payslip")),
		Metrics:   app.Metrics,
		Audit:     recorder,
		Logger:    logger.Named("payroll"),
	}
	if cfg.PayslipArchiveDir != "" {
		sealer, err := crypto.NewSealer(cfg.DataEncryptionKey)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("data encryption key: %w", err)
		}
		queue := jobs.New(archiveQueueSize, archiveWorkers, logger.Named("jobs"))
		queue.Start(context.WithoutCancel(ctx))
		app.closers = append(app.closers, queue.Close)

		store := archive.New(cfg.PayslipArchiveDir, sealer, logger.Named("archive"))
		store.Queue = queue
		handler.Archive = store
	}

	app.Router = app.routes(handler)
	return app, nil
}

func (a *App) preferenceBackend(ctx context.Context) (preferences.Backend, error) {
	switch a.Config.PreferencesBackend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(a.Config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = client.Close() })
		return preferences.NewRedisBackend(client), nil
	case config.BackendPostgres:
		backend := preferences.NewPostgresBackend(a.db)
		if err := backend.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	case config.BackendMemory:
		return preferences.NewMemoryBackend(), nil
	default:
		return preferences.NewFileBackend(a.Config.PreferencesDir)
	}
}

// auditRecorder keeps audit events in Postgres when a database is configured
// and in the log otherwise.
func (a *App) auditRecorder(ctx context.Context) (audit.Recorder, error) {
	if a.db == nil {
		return audit.NewLogRecorder(a.Logger.Named("audit")), nil
	}
	svc := audit.New(a.db)
	if err := svc.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("audit schema: %w", err)
	}
	return svc, nil
}

func (a *App) routes(handler *payrollhandler.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.Logger.Named("http"), a.Metrics))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecureHeaders(a.Config.IsProduction()))
	router.Use(middleware.BodyLimit(a.Config.MaxBodyBytes))
	router.Use(middleware.Auth(a.Config.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", a.handleReady)
	if a.Config.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(a.Config.RateLimitPerMinute, a.Logger.Named("ratelimit")))
		handler.RegisterRoutes(r)
	})
	return router
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()
	if pinger, ok := a.prefs.Backend().(preferences.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			a.Logger.Warn("preference backend not ready", zap.Error(err))
			http.Error(w, "preferences not ready", http.StatusServiceUnavailable)
			return
		}
	}
	if err := a.upstream.Ping(ctx); err != nil {
		a.Logger.Warn("payroll api not ready", zap.Error(err))
		http.Error(w, "payroll api not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func Run() error {
	cfg := config.Load()
	logger, err := logging.New(cfg.Environment)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("paydesk listening", zap.String("addr", cfg.Addr), zap.String("preferences", cfg.PreferencesBackend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
