package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/decryptor/internal"
	pkgconfig "github.com/starford/decryptor/pkg/config"
)

// loadConfig reads the config file. Only serve requires it to exist; the
// other commands fall back to defaults.
func loadConfig(cmd *cli.Command, required bool) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	load := pkgconfig.LoadIfExists[internal.Config]
	if required {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if enc := cmd.String("encoding"); enc != "" {
		cfg.Relay.Encoding = enc
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func decrypt(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("decrypt: expected exactly one input file")
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	req := internal.DecryptRequest{
		Input:  cmd.Args().First(),
		Output: cmd.String("output"),
		Wait:   cmd.Duration("wait"),
	}
	return internal.Decrypt(ctx, req, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func agent(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	return internal.RunAgent(ctx, internal.WithConfig(cfg))
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func main() {
	encodingFlag := &cli.StringFlag{
		Name:  "encoding",
		Usage: "Relay wire encoding (json or cbor); overrides the config file",
	}

	cmd := &cli.Command{
		Name:   "decryptor",
		Usage:  "Decrypts PGP-armored text and encrypted files embedded in HTML documents",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Watch the library and serve decrypted documents over HTTP",
				Action: serve,
				Flags:  []cli.Flag{encodingFlag},
			},
			{
				Name:      "decrypt",
				Usage:     "Decrypt one HTML document and write the result",
				ArgsUsage: "<file.html>",
				Action:    decrypt,
				Flags: []cli.Flag{
					encodingFlag,
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   `Output file; "-" for stdout, empty for the configured output directory`,
					},
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "Maximum time to wait for pending entries",
						Value: 30 * time.Second,
					},
				},
			},
			{
				Name:   "agent",
				Usage:  "Run the native decryption agent on stdin/stdout",
				Action: agent,
				Flags:  []cli.Flag{encodingFlag},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the library as MCP tools on stdin/stdout",
				Action: mcp,
				Flags:  []cli.Flag{encodingFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
