package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/starford/decryptor/internal/mcpserver"
	"github.com/starford/decryptor/internal/storage"
)

// RunMCP serves the library as MCP tools on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	store, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt, err := startRelay(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	pages := newPageService(store, rt, cfg, logger)
	defer pages.Close()

	g, gCtx := errgroup.WithContext(ctx)
	rt.run(gCtx, g)
	g.Go(func() error {
		return pages.Watch(gCtx, store.Root())
	})
	g.Go(func() error {
		defer func() {
			cancel()
			if err := rt.Close(); err != nil {
				logger.Debug("relay shutdown error", slog.String("error", err.Error()))
			}
		}()
		return mcpserver.New(gCtx, pages).ServeStdio()
	})
	return g.Wait()
}
