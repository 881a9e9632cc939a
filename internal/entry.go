// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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

	"github.com/starford/neno/internal/api"
	"github.com/starford/neno/internal/databaseio"
	"github.com/starford/neno/internal/mcpserver"
	"github.com/starford/neno/internal/noteservice"
	"github.com/starford/neno/internal/sse"
)

const graphEventThrottle = 2 * time.Second

// Run starts the HTTP server with the given options and blocks until a
// shutdown signal arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := app.newLogger()
	defer func() { _ = closeLog() }()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("graph_provider", cfg.Graph.Provider),
		slog.String("graph_path", cfg.Graph.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(graphEventThrottle, logger)
	defer broker.Close()

	rt, err := app.openGraph(ctx, logger, noteservice.WithChangeListener(broker.NoteChanged))
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("graph close failed", slog.String("error", err.Error()))
		}
	}()

	if _, err := rt.svc.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate graph: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if _, err := rt.svc.GetFiles(req.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Mount("/api", api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, logger))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// External edits to a local graph evict the in-memory copy.
	if root := rt.root(); root != "" {
		g.Go(func() error {
			err := databaseio.Watch(gCtx, rt.engine, root, rt.svc.ReadLocker(), logger, broker.GraphEvicted)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
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
		defer signal.Stop(quit)

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
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// RunMCP serves the graph to an MCP client over stdin and stdout. Logs go to
// stderr so they do not corrupt the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger, closeLog := app.newLogger()
	defer func() { _ = closeLog() }()

	rt, err := app.openGraph(ctx, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if _, err := rt.svc.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate graph: %w", err)
	}

	logger.Info("MCP server starting", slog.String("version", app.version))
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}

// RunMigrate applies the startup migration once and reports whether the
// graph changed.
func RunMigrate(ctx context.Context, out io.Writer, opts ...Option) error {
	return withGraph(ctx, opts, func(svc *noteservice.Service) error {
		changed, err := svc.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate graph: %w", err)
		}
		if changed {
			_, err = fmt.Fprintln(out, "graph migrated")
		} else {
			_, err = fmt.Fprintln(out, "graph is up to date")
		}
		return err
	})
}

// RunStats writes the graph statistics as JSON.
func RunStats(ctx context.Context, out io.Writer, opts ...Option) error {
	return withGraph(ctx, opts, func(svc *noteservice.Service) error {
		st, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	})
}

// RunExport writes graph.json, or with withFiles a zip archive of the graph.
func RunExport(ctx context.Context, out io.Writer, withFiles bool, opts ...Option) error {
	return withGraph(ctx, opts, func(svc *noteservice.Service) error {
		rc, err := svc.Export(ctx, withFiles)
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = io.Copy(out, rc)
		return err
	})
}

// withGraph opens the configured graph for a one-shot command. Logs go to
// stderr so command output stays clean.
func withGraph(ctx context.Context, opts []Option, fn func(*noteservice.Service) error) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger, closeLog := app.newLogger()
	defer func() { _ = closeLog() }()

	rt, err := app.openGraph(ctx, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return fn(rt.svc)
}
