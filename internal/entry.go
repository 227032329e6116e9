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

	"github.com/starford/decryptor/internal/api"
	"github.com/starford/decryptor/internal/blobstore"
	"github.com/starford/decryptor/internal/pageservice"
	"github.com/starford/decryptor/internal/sse"
	"github.com/starford/decryptor/internal/storage"
)

// Run starts the library server: relay, agent, library watcher and HTTP API.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("keystore_path", cfg.Relay.KeyStore.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}
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

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	blobs := blobstore.New("/blobs/")

	pages := newPageService(store, rt, cfg, logger,
		pageservice.WithBlobStore(blobs),
		pageservice.WithPublisher(broker),
	)
	defer pages.Close()

	h := api.NewHandler(pages, rt.bridge, blobs)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, rt.bridge.Sessions())
	})

	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	rt.run(gCtx, g)

	g.Go(func() error {
		return pages.Watch(gCtx, store.Root())
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		logger.Info("Shutting down server...")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := rt.Close(); err != nil {
			logger.Warn("relay shutdown error", slog.String("error", err.Error()))
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
