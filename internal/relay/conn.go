package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/starford/decryptor/internal/message"
)

// Conn is a framed message connection with the resources behind it.
type Conn struct {
	*message.Stream
	closers []io.Closer
	cmd     *exec.Cmd
}

// Close releases the connection. For a spawned agent it also waits for the
// process to exit.
func (c *Conn) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.cmd != nil {
		if err := c.cmd.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("relay: agent exited: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Pipe returns two connected ends for running the agent in-process.
func Pipe(codec message.Codec) (relaySide, agentSide *Conn) {
	toAgentR, toAgentW := io.Pipe()
	toRelayR, toRelayW := io.Pipe()
	relaySide = &Conn{
		Stream:  message.NewStream(toRelayR, toAgentW, codec),
		closers: []io.Closer{toAgentW, toRelayR},
	}
	agentSide = &Conn{
		Stream:  message.NewStream(toAgentR, toRelayW, codec),
		closers: []io.Closer{toRelayW, toAgentR},
	}
	return relaySide, agentSide
}

// Spawn starts the agent as a child process speaking on its stdin/stdout.
func Spawn(ctx context.Context, codec message.Codec, command string, args ...string) (*Conn, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("relay: agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("relay: agent stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("relay: start agent %q: %w", command, err)
	}
	return &Conn{
		Stream:  message.NewStream(stdout, stdin, codec),
		closers: []io.Closer{stdin},
		cmd:     cmd,
	}, nil
}
