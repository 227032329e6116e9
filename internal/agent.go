package internal

import (
	"context"
	"log/slog"
	"os"

	"github.com/starford/decryptor/internal/agent"
	"github.com/starford/decryptor/internal/message"
)

// RunAgent serves the native decryption agent on stdin/stdout using the
// configured wire encoding. It returns when stdin is closed.
func RunAgent(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	codec, err := message.CodecByName(cfg.Relay.Encoding)
	if err != nil {
		return err
	}
	stream := message.NewStream(os.Stdin, os.Stdout, codec)
	a := agent.New(stream,
		agent.NewGPG(cfg.Agent.GPG.Binary, cfg.Agent.GPG.Homedir),
		agent.WithLogger(logger),
	)
	logger.Info("agent: started", slog.String("encoding", codec.Name()))
	return a.Run(ctx)
}
