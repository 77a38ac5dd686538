package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/obsidian-mcp/internal"
	pkgconfig "github.com/starford/obsidian-mcp/pkg/config"
)

func run(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if !found && cmd.IsSet("config") {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	applyFlags(cmd, cfg)

	if err := pkgconfig.Validate(cfg); err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// applyFlags lets flags and their environment variables override the file.
func applyFlags(cmd *cli.Command, cfg *internal.Config) {
	if cmd.IsSet("notes-path") {
		cfg.Vault.Path = cmd.String("notes-path")
	}
	if cmd.IsSet("host") {
		cfg.App.HTTP.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.App.HTTP.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("index-path") {
		cfg.Index.Enabled = true
		cfg.Index.Path = cmd.String("index-path")
	}
	if cmd.Bool("stdio") {
		cfg.App.Transport = internal.TransportStdio
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "obsidian-mcp",
		Usage:  "MCP server exposing an Obsidian vault: list, read, create and confirmed edits of Markdown notes",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "notes-path",
				Aliases: []string{"n"},
				Usage:   "Vault root directory",
				Sources: cli.EnvVars("NOTES_PATH"),
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "HTTP listen host",
				Sources: cli.EnvVars("HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP listen port",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "index-path",
				Usage:   "Enable the search index and store it at this path",
				Sources: cli.EnvVars("INDEX_PATH"),
			},
			&cli.BoolFlag{
				Name:  "stdio",
				Usage: "Serve MCP over stdin/stdout instead of HTTP",
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
