package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/neno/internal"
	pkgconfig "github.com/starford/neno/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMigrate(ctx, os.Stdout, opts...)
}

func stats(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunStats(ctx, os.Stdout, opts...)
}

func export(ctx context.Context, cmd *cli.Command) (err error) {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	out := os.Stdout
	if p := cmd.String("out"); p != "" {
		var f *os.File
		f, err = os.Create(p)
		if err != nil {
			return fmt.Errorf("create %s: %w", p, err)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		out = f
	}
	return internal.RunExport(ctx, out, cmd.Bool("with-files"), opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "neno",
		Usage:   "Graph-backed note store with subwaytext notes, search and attachments",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml, .json or .jsonc)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the graph to an MCP client over stdio",
				Action: serveMCP,
			},
			{
				Name:   "migrate",
				Usage:  "Normalise stored notes and graph metadata",
				Action: migrate,
			},
			{
				Name:   "stats",
				Usage:  "Print graph statistics as JSON",
				Action: stats,
			},
			{
				Name:   "export",
				Usage:  "Write graph.json, or a zip archive of the graph with --with-files",
				Action: export,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "with-files",
						Usage: "Export the whole graph including attachments as zip",
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file (default stdout)",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
