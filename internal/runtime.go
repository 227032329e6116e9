package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/starford/decryptor/internal/agent"
	"github.com/starford/decryptor/internal/chunk"
	"github.com/starford/decryptor/internal/message"
	"github.com/starford/decryptor/internal/pageservice"
	"github.com/starford/decryptor/internal/relay"
	"github.com/starford/decryptor/internal/session"
	"github.com/starford/decryptor/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// relayRuntime is the relay bridge with its agent and key store.
type relayRuntime struct {
	bridge *relay.Bridge
	agent  *agent.Agent
	conn   *relay.Conn
	peer   *relay.Conn
	keys   *relay.KeyDB
}

func startRelay(ctx context.Context, cfg *Config, logger *slog.Logger) (*relayRuntime, error) {
	codec, err := message.CodecByName(cfg.Relay.Encoding)
	if err != nil {
		return nil, err
	}
	keys, err := relay.OpenKeyStore(cfg.Relay.KeyStore.Path)
	if err != nil {
		return nil, fmt.Errorf("init key store: %w", err)
	}

	rt := &relayRuntime{keys: keys}
	if cfg.Agent.InProcess() {
		rt.conn, rt.peer = relay.Pipe(codec)
		rt.agent = agent.New(rt.peer,
			agent.NewGPG(cfg.Agent.GPG.Binary, cfg.Agent.GPG.Homedir),
			agent.WithLogger(logger),
		)
	} else {
		rt.conn, err = relay.Spawn(ctx, codec, cfg.Agent.Command, cfg.Agent.Args...)
		if err != nil {
			keys.Close()
			return nil, err
		}
	}
	rt.bridge = relay.New(rt.conn, keys, relay.WithLogger(logger))

	logger.Info("relay: started",
		slog.String("encoding", codec.Name()),
		slog.Bool("in_process_agent", rt.agent != nil))
	return rt, nil
}

// run starts the bridge and the in-process agent on g.
func (rt *relayRuntime) run(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		return rt.bridge.Run(ctx)
	})
	if rt.agent != nil {
		g.Go(func() error {
			return rt.agent.Run(ctx)
		})
	}
}

// Close ends the agent connection and closes the key store.
func (rt *relayRuntime) Close() error {
	var errs []error
	if err := rt.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	if rt.peer != nil {
		if err := rt.peer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.keys.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func sessionOptions(cfg *Config) []session.Option {
	maxChunk := cfg.Relay.MaxChunk
	if maxChunk == 0 {
		maxChunk = chunk.DefaultMaxChunk
	}
	return []session.Option{
		session.WithMaxChunk(maxChunk),
		session.WithHandshakeRetry(cfg.Relay.HandshakeRetry),
	}
}

func newPageService(store storage.Provider, rt *relayRuntime, cfg *Config, logger *slog.Logger, opts ...pageservice.Option) *pageservice.Service {
	base := []pageservice.Option{
		pageservice.WithLogger(logger),
		pageservice.WithHTTPClient(&http.Client{Timeout: cfg.Fetch.Timeout}),
		pageservice.WithSessionOptions(sessionOptions(cfg)...),
	}
	return pageservice.New(store, rt.bridge, append(base, opts...)...)
}
