package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/neno/internal/databaseio"
	"github.com/starford/neno/internal/noteservice"
	"github.com/starford/neno/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errors.New("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger. With app.log_file set, records are also
// written to a size-rotated file.
func (a *application) newLogger() (*slog.Logger, func() error) {
	cfg := a.config.App
	out := a.logOut
	closeLog := func() error { return nil }
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
		}
		out = io.MultiWriter(out, rotated)
		closeLog = rotated.Close
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger, closeLog
}

// graphRuntime bundles the storage provider, engine and service of one graph.
type graphRuntime struct {
	provider storage.Provider
	engine   *databaseio.Engine
	svc      *noteservice.Service
	closers  []func() error
}

// root returns the local graph directory, or "" when the provider is not
// file-system backed.
func (g *graphRuntime) root() string {
	if fs, ok := g.provider.(*storage.FS); ok {
		return fs.Root()
	}
	return ""
}

func (g *graphRuntime) Close() error {
	g.engine.Close()
	var errs []error
	for i := len(g.closers) - 1; i >= 0; i-- {
		errs = append(errs, g.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *application) openGraph(ctx context.Context, logger *slog.Logger, opts ...noteservice.Option) (*graphRuntime, error) {
	cfg := a.config
	rt := &graphRuntime{}

	switch cfg.Graph.Provider {
	case ProviderFS:
		if err := os.MkdirAll(cfg.Graph.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create graph dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Graph.Path)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		rt.provider = fs
	case ProviderMemory:
		rt.provider = storage.NewMemory()
	case ProviderSQLite:
		db, err := storage.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		rt.provider = db
		rt.closers = append(rt.closers, db.Close)
	case ProviderS3:
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		rt.provider = s3
	default:
		return nil, fmt.Errorf("unknown graph provider %q", cfg.Graph.Provider)
	}

	engineOpts := []databaseio.Option{databaseio.WithLogger(logger)}
	if cfg.Graph.Workers > 0 {
		engineOpts = append(engineOpts, databaseio.WithWorkers(cfg.Graph.Workers))
	}
	rt.engine = databaseio.New(rt.provider, engineOpts...)
	rt.svc = noteservice.New(rt.engine, append([]noteservice.Option{noteservice.WithLogger(logger)}, opts...)...)

	logger.Info("graph opened",
		slog.String("provider", cfg.Graph.Provider),
		slog.String("path", cfg.Graph.Path))
	return rt, nil
}
