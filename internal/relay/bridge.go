// Package relay forwards messages between document sessions and the native
// decryption agent. Each session attaches a Channel with its own session id;
// responses from the agent are routed back by that id.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/decryptor/internal/apperr"
	"github.com/starford/decryptor/internal/message"
)

// Agent is the connection to the native agent.
type Agent interface {
	ReadMessage() (message.Message, error)
	WriteMessage(m message.Message) error
}

// Bridge multiplexes session channels over one agent connection.
type Bridge struct {
	agent  Agent
	keys   KeyStore
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]*Channel
	closed   bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// New creates a Bridge. keys may be nil, in which case key requests are
// answered with an empty list and updates are dropped.
func New(agent Agent, keys KeyStore, opts ...Option) *Bridge {
	b := &Bridge{
		agent:    agent,
		keys:     keys,
		logger:   slog.Default(),
		channels: make(map[string]*Channel),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Attach registers a new session channel.
func (b *Bridge) Attach() *Channel {
	c := &Channel{
		id:     uuid.NewString(),
		bridge: b,
		out:    make(chan message.Message),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go c.pump()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		c.shutdown()
		return c
	}
	b.channels[c.id] = c
	return c
}

// Sessions returns the number of attached channels.
func (b *Bridge) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

// Run reads agent messages and routes them until ctx is cancelled or the
// agent connection ends. Every attached channel is closed on return.
func (b *Bridge) Run(ctx context.Context) error {
	msgs := make(chan message.Message)
	errc := make(chan error, 1)
	go func() {
		for {
			m, err := b.agent.ReadMessage()
			if err != nil {
				if errors.Is(err, apperr.ErrUnknownType) {
					b.logger.Debug("relay: ignoring agent message", slog.String("error", err.Error()))
					continue
				}
				errc <- err
				return
			}
			select {
			case msgs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer b.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("relay: agent disconnected: %w", apperr.ErrClosed)
			}
			return fmt.Errorf("relay: read agent: %w", err)
		case m := <-msgs:
			b.route(ctx, m)
		}
	}
}

func (b *Bridge) route(ctx context.Context, m message.Message) {
	switch m := m.(type) {
	case message.DecryptResponse:
		b.mu.Lock()
		c, ok := b.channels[m.SessionID]
		b.mu.Unlock()
		if !ok {
			b.logger.Debug("relay: response for unknown session",
				slog.String("session", m.SessionID),
				slog.String("message_id", m.MessageID),
			)
			return
		}
		c.deliver(m)
	case message.Debug:
		b.logger.Debug("relay: agent", slog.String("text", m.Text))
	case message.UpdateKeysRequest:
		if b.keys == nil {
			return
		}
		if err := b.keys.Replace(ctx, m.Keys); err != nil {
			b.logger.Error("relay: store keys", slog.String("error", err.Error()))
		}
	case message.GetKeysRequest:
		keys, err := b.Keys(ctx)
		if err != nil {
			b.logger.Error("relay: load keys", slog.String("error", err.Error()))
			keys = message.Keys{}
		}
		// The agent may be blocked writing to us; answering inline would
		// stall both sides.
		go func() {
			if err := b.agent.WriteMessage(message.GetKeysResponse{Keys: keys}); err != nil {
				b.logger.Warn("relay: send keys", slog.String("error", err.Error()))
			}
		}()
	default:
		b.logger.Debug("relay: unexpected agent message", slog.String("type", fmt.Sprintf("%T", m)))
	}
}

// Keys returns the stored key list.
func (b *Bridge) Keys(ctx context.Context) (message.Keys, error) {
	if b.keys == nil {
		return message.Keys{}, nil
	}
	return b.keys.Load(ctx)
}

// SetKeys stores keys and pushes them to the agent.
func (b *Bridge) SetKeys(ctx context.Context, keys message.Keys) error {
	if b.keys != nil {
		if err := b.keys.Replace(ctx, keys); err != nil {
			return err
		}
	}
	if err := b.agent.WriteMessage(message.GetKeysResponse{Keys: keys}); err != nil {
		return fmt.Errorf("relay: push keys: %w", err)
	}
	return nil
}

func (b *Bridge) detach(id string) {
	b.mu.Lock()
	delete(b.channels, id)
	b.mu.Unlock()
}

func (b *Bridge) closeAll() {
	b.mu.Lock()
	b.closed = true
	channels := b.channels
	b.channels = make(map[string]*Channel)
	b.mu.Unlock()
	for _, c := range channels {
		c.shutdown()
	}
}

// Channel is one session's port on the bridge. Routed messages are queued
// without bound and handed to the session in arrival order, so a session
// busy sending never stalls the bridge.
type Channel struct {
	id     string
	bridge *Bridge
	out    chan message.Message
	wake   chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	queue  []message.Message
	closed bool
	once   sync.Once
}

// ID returns the session id assigned to the channel.
func (c *Channel) ID() string { return c.id }

// Inbound returns messages routed to the session. It is closed when the
// channel is closed or the bridge stops.
func (c *Channel) Inbound() <-chan message.Message { return c.out }

// Send hands a session message to the relay. Session requests are answered
// locally; decrypt requests are stamped with the channel id and forwarded.
func (c *Channel) Send(m message.Message) error {
	select {
	case <-c.done:
		return apperr.ErrClosed
	default:
	}
	switch m := m.(type) {
	case message.SessionRequest:
		c.deliver(message.SessionResponse{SessionID: c.id})
		return nil
	case message.DecryptRequest:
		m.SessionID = c.id
		return c.bridge.agent.WriteMessage(m)
	default:
		return fmt.Errorf("relay: cannot forward %T: %w", m, apperr.ErrUnknownType)
	}
}

// Close detaches the channel from the bridge.
func (c *Channel) Close() {
	c.bridge.detach(c.id)
	c.shutdown()
}

// deliver queues m for the session. It never blocks.
func (c *Channel) deliver(m message.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, m)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pump moves queued messages to Inbound until the channel shuts down.
func (c *Channel) pump() {
	defer close(c.out)
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			select {
			case <-c.wake:
				continue
			case <-c.done:
				return
			}
		}
		m := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		select {
		case c.out <- m:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.mu.Unlock()
		close(c.done)
	})
}
