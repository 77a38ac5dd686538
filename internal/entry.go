// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/obsidian-mcp/internal/api"
	"github.com/starford/obsidian-mcp/internal/index"
	"github.com/starford/obsidian-mcp/internal/mcpserver"
	"github.com/starford/obsidian-mcp/internal/noteservice"
	"github.com/starford/obsidian-mcp/internal/sse"
	"github.com/starford/obsidian-mcp/internal/storage"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	stdio := cfg.App.Transport == TransportStdio

	// In stdio mode stdout carries JSON-RPC, so logs go to stderr.
	if app.logOut == nil {
		app.logOut = os.Stdout
		if stdio {
			app.logOut = os.Stderr
		}
	}
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("transport", cfg.App.Transport),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_root", cfg.Vault.Path),
		slog.Bool("index_enabled", cfg.Index.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		logger.Error("Vault root is not usable",
			slog.String("notes_root", cfg.Vault.Path),
			slog.String("error", err.Error()))
		return fmt.Errorf("init storage: %w", err)
	}
	notes := noteservice.NewService(store, cfg.Vault.Ignore...)
	broker := sse.NewBroker()
	defer broker.Close()

	mcpOpts := []mcpserver.Option{mcpserver.WithLogger(logger)}
	var (
		db     *index.DB
		search api.Searcher
	)
	if cfg.Index.Enabled {
		db, err = index.Open(cfg.Index.Path)
		if err != nil {
			return fmt.Errorf("init index: %w", err)
		}
		defer db.Close()

		if err := index.Sync(ctx, db, store, notes.IgnorePatterns(), logger); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
		mcpOpts = append(mcpOpts, mcpserver.WithSearch(db))
		search = db
	}
	mcpSrv := mcpserver.New(notes, mcpOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)

	if db != nil {
		g.Go(func() error {
			if err := index.Watch(gCtx, db, store, notes.IgnorePatterns(), logger, broker.PublishNoteEvent); err != nil {
				logger.Warn("watcher: disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	var httpServer *http.Server
	if stdio {
		g.Go(func() error {
			defer cancel()
			logger.Info("Serving MCP over stdio")
			if err := mcpSrv.ServeStdio(gCtx, app.stdin, app.stdout); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				return fmt.Errorf("stdio server error: %w", err)
			}
			return nil
		})
	} else {
		apiRouter := api.NewRouter(notes, search, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)
		httpServer = &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           newRouter(cfg, store, mcpSrv.HTTPHandler(), apiRouter),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		cancel()

		if httpServer != nil {
			logger.Info("Shutting down server...")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
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

// methodNotAllowedBody is the JSON-RPC error returned for GET and DELETE on
// the stateless MCP endpoint.
const methodNotAllowedBody = `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Method not allowed."},"id":null}`

// newRouter builds the root HTTP handler: health probes, the MCP endpoint and
// the REST API. Everything except the probes is behind the Host allow-list.
func newRouter(cfg *Config, store storage.Provider, mcpHandler, apiRouter http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if info, err := os.Stat(store.Root()); err != nil || !info.IsDir() {
			writeStatus(w, http.StatusServiceUnavailable, "vault unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Group(func(r chi.Router) {
		r.Use(api.AllowHosts(cfg.App.HTTP.AllowedHosts))

		r.Post("/mcp", mcpHandler.ServeHTTP)
		r.Get("/mcp", methodNotAllowed)
		r.Delete("/mcp", methodNotAllowed)

		r.Mount("/api", apiRouter)
	})

	return r
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = w.Write([]byte(methodNotAllowedBody))
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
