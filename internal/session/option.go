package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/decryptor/internal/chunk"
	"github.com/starford/decryptor/internal/message"
)

// Port is the session's connection to the relay bridge.
type Port interface {
	Send(m message.Message) error
	Inbound() <-chan message.Message
}

// Fetcher loads the bytes behind a file locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// BlobStore mints an addressable handle for decrypted file content.
type BlobStore interface {
	Put(mimeType string, data []byte) string
}

// Event reports a change of session state to observers outside the loop.
type Event struct {
	Type        string
	Fingerprint string
	Kind        string
	Sites       int
}

// Event types.
const (
	EventReady     = "session.ready"
	EventDecrypted = "entry.decrypted"
)

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithFetcher sets how file locators are loaded.
func WithFetcher(f Fetcher) Option {
	return func(s *Session) {
		s.fetcher = f
	}
}

// WithBlobStore sets where decrypted files are published.
func WithBlobStore(b BlobStore) Option {
	return func(s *Session) {
		s.blobs = b
	}
}

// WithMaxChunk sets the largest data block of one outbound request.
func WithMaxChunk(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxChunk = n
		}
	}
}

// WithHandshakeRetry sets how often the session request is resent.
func WithHandshakeRetry(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.handshakeRetry = d
		}
	}
}

// WithEventHandler registers fn for session events. fn runs on the event
// loop and must not block.
func WithEventHandler(fn func(Event)) Option {
	return func(s *Session) {
		s.onEvent = fn
	}
}

const defaultHandshakeRetry = 100 * time.Millisecond

const defaultMaxChunk = chunk.DefaultMaxChunk
