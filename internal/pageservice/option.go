package pageservice

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/decryptor/internal/blobstore"
	"github.com/starford/decryptor/internal/session"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithBlobStore publishes decrypted files through store instead of data URLs.
func WithBlobStore(store *blobstore.Store) Option {
	return func(s *Service) {
		s.blobs = store
	}
}

// WithPublisher sets where progress events go.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithHTTPClient sets the client used for remote file locators.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.httpClient = c
	}
}

// WithSessionOptions passes extra options to every document session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Service) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// WithPollInterval sets how often Wait re-checks a session.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollEvery = d
		}
	}
}
