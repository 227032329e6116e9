package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/decryptor/internal/storage"
)

// DecryptRequest describes a one-shot decryption of a single document.
type DecryptRequest struct {
	// Input is the HTML file to decrypt. Locators resolve relative to its
	// directory.
	Input string
	// Output is where the result goes; "-" means stdout and "" means the
	// configured output directory.
	Output string
	// Wait bounds how long pending entries are awaited.
	Wait time.Duration
}

// Decrypt loads one document, waits for its entries and writes the result.
// Entries still pending when Wait elapses are left encrypted.
func Decrypt(ctx context.Context, req DecryptRequest, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	abs, err := filepath.Abs(req.Input)
	if err != nil {
		return fmt.Errorf("resolve input: %w", err)
	}
	store, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	name := filepath.Base(abs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt, err := startRelay(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	pages := newPageService(store, rt, cfg, logger)

	g, gCtx := errgroup.WithContext(ctx)
	rt.run(gCtx, g)

	var result []byte
	g.Go(func() error {
		defer func() {
			cancel()
			pages.Close()
			if err := rt.Close(); err != nil {
				logger.Debug("relay shutdown error", slog.String("error", err.Error()))
			}
		}()

		if _, err := pages.Load(gCtx, name); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		wctx, stop := context.WithTimeout(gCtx, req.Wait)
		snap, err := pages.Wait(wctx, name)
		stop()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("wait %s: %w", name, err)
		}
		if n := snap.Pending(); n > 0 {
			logger.Warn("decrypt: entries still pending", slog.Int("pending", n))
		}
		logger.Info("decrypt: done",
			slog.String("document", name),
			slog.Int("decrypted", snap.Decrypted),
			slog.Int("sites", snap.Sites))

		result, err = pages.Render(name)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return writeOutput(req.Output, cfg.Library.OutputPath, name, result)
}

func writeOutput(output, outputDir, name string, data []byte) error {
	switch output {
	case "-":
		_, err := os.Stdout.Write(data)
		return err
	case "":
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		out, err := storage.NewFS(outputDir)
		if err != nil {
			return err
		}
		return out.Write(name, data)
	default:
		dir, file := filepath.Split(output)
		if dir == "" {
			dir = "."
		}
		out, err := storage.NewFS(dir)
		if err != nil {
			return err
		}
		return out.Write(file, data)
	}
}
