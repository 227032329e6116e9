// Package agent is the native side of decryption: it reads decrypt requests
// from the relay, runs them through a Decrypter, and answers in blocks.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"net/http"
	"sync"

	"github.com/starford/decryptor/internal/apperr"
	"github.com/starford/decryptor/internal/checksum"
	"github.com/starford/decryptor/internal/chunk"
	"github.com/starford/decryptor/internal/message"
)

// Decrypter turns ciphertext into plaintext using the known keys.
type Decrypter interface {
	Decrypt(ctx context.Context, data []byte, keys message.Keys) ([]byte, error)
}

// Conn is the framed connection to the relay.
type Conn interface {
	ReadMessage() (message.Message, error)
	WriteMessage(m message.Message) error
}

// Agent serves decrypt requests over one connection.
type Agent struct {
	conn     Conn
	dec      Decrypter
	logger   *slog.Logger
	maxChunk int

	mu   sync.RWMutex
	keys message.Keys

	// Partial requests by message id, owned by Run.
	pending map[string][]byte
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = l
	}
}

// WithMaxChunk sets the largest data block of one response.
func WithMaxChunk(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxChunk = n
		}
	}
}

// New creates an Agent.
func New(conn Conn, dec Decrypter, opts ...Option) *Agent {
	a := &Agent{
		conn:     conn,
		dec:      dec,
		logger:   slog.Default(),
		maxChunk: chunk.AgentMaxChunk,
		keys:     message.Keys{},
		pending:  make(map[string][]byte),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Keys returns a copy of the current key list.
func (a *Agent) Keys() message.Keys {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.keys)
}

// UpdateKeys replaces the key list and asks the relay to persist it.
func (a *Agent) UpdateKeys(keys message.Keys) error {
	a.setKeys(keys)
	return a.conn.WriteMessage(message.UpdateKeysRequest{Keys: keys})
}

func (a *Agent) setKeys(keys message.Keys) {
	a.mu.Lock()
	a.keys = maps.Clone(keys)
	if a.keys == nil {
		a.keys = message.Keys{}
	}
	a.mu.Unlock()
}

// Run loads the stored keys from the relay and serves requests until the
// connection ends. A clean end of input returns nil.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.conn.WriteMessage(message.GetKeysRequest{}); err != nil {
		return fmt.Errorf("agent: request keys: %w", err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		m, err := a.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, apperr.ErrUnknownType) {
				a.logger.Debug("agent: ignoring message", slog.String("error", err.Error()))
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("agent: read: %w", err)
		}

		switch m := m.(type) {
		case message.DecryptRequest:
			a.handleDecrypt(ctx, m)
		case message.GetKeysResponse:
			a.setKeys(m.Keys)
			a.logger.Debug("agent: keys loaded", slog.Int("count", len(m.Keys)))
		default:
			a.logger.Debug("agent: unexpected message", slog.String("type", fmt.Sprintf("%T", m)))
		}
	}
}

func (a *Agent) handleDecrypt(ctx context.Context, req message.DecryptRequest) {
	if req.SessionID == "" {
		a.logger.Debug("agent: request without session", slog.String("message_id", req.MessageID))
		return
	}

	var raw []byte
	switch req.Encoding {
	case message.EncodingBase64:
		b, err := checksum.DecodeBase64(req.Data)
		if err != nil {
			a.fail(req, "Invalid data: "+err.Error())
			return
		}
		raw = b
	case message.EncodingASCII:
		raw = []byte(req.Data)
	default:
		a.fail(req, "Invalid encoding: "+string(req.Encoding))
		return
	}

	if !req.LastBlock {
		a.pending[req.MessageID] = append(a.pending[req.MessageID], raw...)
		return
	}
	if prior, ok := a.pending[req.MessageID]; ok {
		raw = append(prior, raw...)
		delete(a.pending, req.MessageID)
		a.debug("Message is complete")
	}

	plain, err := a.dec.Decrypt(ctx, raw, a.Keys())
	if err != nil {
		a.logger.Warn("agent: decrypt failed",
			slog.String("message_id", req.MessageID),
			slog.String("error", err.Error()),
		)
		a.fail(req, "Unable to decrypt data: "+err.Error())
		return
	}

	mimeType := sniff(plain)
	blocks := chunk.Encode(req.MessageID, checksum.EncodeBase64(plain), a.maxChunk)
	for _, b := range blocks {
		err := a.conn.WriteMessage(message.DecryptResponse{
			Success:   true,
			Data:      b.Data,
			Encoding:  message.EncodingBase64,
			MessageID: req.MessageID,
			SessionID: req.SessionID,
			LastBlock: b.Last,
			MimeType:  mimeType,
		})
		if err != nil {
			a.logger.Error("agent: write response", slog.String("error", err.Error()))
			return
		}
	}
}

func (a *Agent) fail(req message.DecryptRequest, reason string) {
	err := a.conn.WriteMessage(message.DecryptResponse{
		Success:   false,
		MessageID: req.MessageID,
		SessionID: req.SessionID,
		LastBlock: true,
		Error:     reason,
	})
	if err != nil {
		a.logger.Error("agent: write failure", slog.String("error", err.Error()))
	}
}

func (a *Agent) debug(text string) {
	if err := a.conn.WriteMessage(message.Debug{Text: text}); err != nil {
		a.logger.Debug("agent: write debug", slog.String("error", err.Error()))
	}
}

// sniff returns the bare media type of data.
func sniff(data []byte) string {
	mt, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}
