// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/joshrotenberg/skillet/internal/api"
	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/mcpserver"
	"github.com/joshrotenberg/skillet/internal/refresh"
	"github.com/joshrotenberg/skillet/internal/service"
	"github.com/joshrotenberg/skillet/internal/source"
	"github.com/joshrotenberg/skillet/internal/sse"
	"github.com/joshrotenberg/skillet/internal/trust"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	logConfig(logger, cfg)

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	env, err := open(ctx, cfg, logger, broker)
	if err != nil {
		return err
	}
	defer env.Close()

	apiRouter := api.NewRouter(env.Registry, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if len(env.Controller.Current().Revisions) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Periodic refresh and local watches.
	g.Go(func() error {
		return env.Controller.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		waitForShutdown(gCtx, logger)

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Open SSE streams only end when the broker closes.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP protocol on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	logConfig(logger, cfg)

	env, err := open(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	srv := mcpserver.New(env.Registry, app.version)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return env.Controller.Run(gCtx)
	})
	g.Go(func() error {
		// ServeStdio returns when stdin closes or on SIGINT/SIGTERM.
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// errShutdown ends the errgroup once a server has stopped.
var errShutdown = errors.New("shutdown")

func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func logConfig(logger *slog.Logger, cfg *Config) {
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Int("local_registries", len(cfg.Registries.Local)),
		slog.Int("remote_registries", len(cfg.Registries.Remote)),
		slog.String("refresh_interval", cfg.Refresh.Interval.String()),
		slog.Bool("cache_enabled", cfg.Cache.Enabled),
		slog.String("trust_db", cfg.Trust.DBPath),
		slog.String("log_level", cfg.App.LogLevel.String()))
}

// Env is an opened registry: a started refresh controller, the optional
// trust store and the service facade over both.
type Env struct {
	Controller *refresh.Controller
	Registry   *service.Registry
	store      *trust.Store
}

// Close releases the trust store.
func (e *Env) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Open builds every configured source, loads the first snapshot and opens
// the trust store. It does not start background refreshes; the CLI uses it
// for one-shot commands.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Env, error) {
	return open(ctx, cfg, logger, nil)
}

func open(ctx context.Context, cfg *Config, logger *slog.Logger, broker *sse.Broker) (*Env, error) {
	sources, err := BuildSources(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := refresh.Options{
		Sources:       sources,
		Interval:      cfg.Refresh.Interval.Std(),
		Watch:         cfg.Watch.Enabled,
		WatchDebounce: cfg.Watch.Debounce.Std(),
		Logger:        logger,
	}
	if cfg.Cache.Enabled {
		opts.CacheDir = cfg.Cache.Dir
		opts.CacheTTL = cfg.Cache.TTL.Std()
	}
	if broker != nil {
		opts.OnPublish = func(prev, next *refresh.Snapshot) {
			broker.PublishRefreshed(sse.Refreshed{
				Snapshot:          next.ID.String(),
				Skills:            len(next.Index.Skills),
				Categories:        len(next.Index.Categories),
				CategoriesChanged: !maps.Equal(prev.Index.Categories, next.Index.Categories),
			})
		}
		opts.OnFailure = func(err *apperr.RefreshError) {
			broker.PublishRefreshFailed(sse.RefreshFailed{
				Source: err.Source,
				Stage:  err.Stage,
				Error:  err.Err.Error(),
			})
		}
	}

	ctrl := refresh.New(opts)
	if err := ctrl.Start(ctx); err != nil {
		// The previous snapshot (cache or empty) keeps serving.
		logger.Warn("initial load incomplete", slog.String("error", err.Error()))
	}

	env := &Env{Controller: ctrl}
	if cfg.Trust.DBPath != "" {
		store, err := trust.Open(cfg.Trust.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init trust store: %w", err)
		}
		env.store = store
	}
	env.Registry = service.New(ctrl, env.store, cfg.Trust.Policy(), logger)
	return env, nil
}

// BuildSources turns the registries section into sources in precedence
// order: local paths, then remotes, then the embedded defaults when nothing
// else is configured.
func BuildSources(cfg *Config, logger *slog.Logger) ([]source.Source, error) {
	git := &source.Git{Logger: logger}
	subdir := func(s string) string {
		if s != "" {
			return s
		}
		return cfg.Registries.Subdir
	}

	var sources []source.Source
	for _, path := range cfg.Registries.Local {
		src, err := source.NewLocal(path, subdir(""), git)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	for _, rc := range cfg.Registries.Remote {
		sources = append(sources, source.NewRemote(rc.URL, subdir(rc.Subdir), cfg.Cache.ReposDir(), git, cfg.Refresh.PullTimeout.Std()))
	}
	if len(sources) == 0 {
		if !cfg.Registries.EmbeddedDefaults {
			return nil, fmt.Errorf("no registries configured and embedded defaults disabled")
		}
		logger.Info("no registries configured, serving embedded defaults")
		sources = append(sources, source.NewEmbedded())
	}
	return sources, nil
}
