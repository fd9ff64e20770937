// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/adapter"
	"github.com/starford/ansuz/internal/adapter/github"
	"github.com/starford/ansuz/internal/adapter/memory"
	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/events"
	"github.com/starford/ansuz/internal/journal"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/scanner"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/watcher"
)

// Stack bundles the wired application components for one configuration.
type Stack struct {
	Config  *Config
	Logger  *slog.Logger
	Scanner *scanner.Scanner
	Engine  *engine.Engine
	Journal *journal.DB // nil when journaling is disabled
	Broker  *events.Broker
}

// Close releases the stack's resources.
func (s *Stack) Close() {
	if s.Broker != nil {
		s.Broker.Close()
	}
	if s.Journal != nil {
		s.Journal.Close()
	}
}

// NewLogger builds the structured JSON logger and installs it as default.
func NewLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// NewStack wires storage, scanner, adapter, journal, broker, and engine from
// the configuration. withBroker controls whether an SSE broker is started;
// one-shot CLI commands don't need one.
func NewStack(cfg *Config, logger *slog.Logger, withBroker bool) (*Stack, error) {
	if err := os.MkdirAll(cfg.Specs.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create specs dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Specs.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	sc := scanner.New(store, logger)

	var remote adapter.Adapter
	switch cfg.Sync.Platform {
	case PlatformGitHub:
		remote, err = github.New(cfg.GitHub.Repo, cfg.GitHub.Labels, logger)
		if err != nil {
			return nil, fmt.Errorf("init github adapter: %w", err)
		}
	default:
		remote = memory.New()
	}

	s := &Stack{Config: cfg, Logger: logger, Scanner: sc}

	engOpts := []engine.Option{engine.WithBatchLimit(cfg.Sync.BatchLimit)}
	if cfg.Journal.Enabled() {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		s.Journal = db
		engOpts = append(engOpts, engine.WithJournal(db))
	}
	if withBroker {
		s.Broker = events.NewBroker()
		engOpts = append(engOpts, engine.WithEvents(s.Broker))
	}

	s.Engine = engine.New(sc, remote, logger, engOpts...)
	return s, nil
}

// Run starts the HTTP server (and the auto-sync watcher when enabled) with
// the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := app.logger
	if logger == nil {
		logger = NewLogger(cfg)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("specs_path", cfg.Specs.Path),
		slog.String("platform", cfg.Sync.Platform),
		slog.String("log_level", cfg.App.LogLevel.String()))

	stack, err := NewStack(cfg, logger, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	// Assign identities up front so every document is addressable.
	if _, err := stack.Scanner.ScanAll(); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	h := api.NewHandler(stack.Engine, stack.Scanner, journalOrNil(stack))
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, stack.Broker)

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Sync.Watch {
		g.Go(func() error {
			return watcher.Watch(gCtx, stack.Engine, stack.Scanner, logger, cfg.Sync.Debounce)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP server on stdin/stdout.
func RunMCP(cfg *Config) error {
	// MCP uses stdout for the protocol; keep logs on stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	stack, err := NewStack(cfg, logger, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	return mcpserver.New(stack.Engine, stack.Scanner).ServeStdio()
}

// journalOrNil converts the concrete journal into the API's optional
// interface without wrapping a typed nil.
func journalOrNil(s *Stack) api.Journaler {
	if s.Journal == nil {
		return nil
	}
	return s.Journal
}
