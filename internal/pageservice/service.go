// Package pageservice keeps one live decryption session per document of the
// library and exposes the decrypted documents.
package pageservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/starford/decryptor/internal/apperr"
	"github.com/starford/decryptor/internal/blobstore"
	"github.com/starford/decryptor/internal/checksum"
	"github.com/starford/decryptor/internal/dom"
	"github.com/starford/decryptor/internal/fetch"
	"github.com/starford/decryptor/internal/models"
	"github.com/starford/decryptor/internal/relay"
	"github.com/starford/decryptor/internal/session"
	"github.com/starford/decryptor/internal/sse"
	"github.com/starford/decryptor/internal/storage"
)

// Relay opens a channel for a new document session.
type Relay interface {
	Attach() *relay.Channel
}

// Publisher receives document progress events.
type Publisher interface {
	PublishDocumentLoaded(path string)
	PublishDocumentRemoved(path string)
	PublishDecrypted(d sse.Decrypted)
}

// DocumentInfo summarises a loaded document.
type DocumentInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	LoadedAt  time.Time `json:"loaded_at"`
	Ready     bool      `json:"ready"`
	Pending   int       `json:"pending"`
	Decrypted int       `json:"decrypted"`
	Entries   int       `json:"entries"`
}

type page struct {
	path     string
	checksum string
	loadedAt time.Time
	doc      *dom.Document
	sess     *session.Session
	ch       *relay.Channel
	scope    *blobstore.Scope
	cancel   context.CancelFunc
}

func (p *page) close() {
	p.cancel()
	p.ch.Close()
	<-p.sess.Done()
	if p.scope != nil {
		p.scope.Close()
	}
}

// Service owns the loaded documents.
type Service struct {
	store       storage.Provider
	relay       Relay
	blobs       *blobstore.Store
	events      Publisher
	httpClient  *http.Client
	logger      *slog.Logger
	sessionOpts []session.Option
	pollEvery   time.Duration

	mu    sync.Mutex
	pages map[string]*page
}

// New creates a Service reading documents from store.
func New(store storage.Provider, r Relay, opts ...Option) *Service {
	s := &Service{
		store:     store,
		relay:     r,
		logger:    slog.Default(),
		pollEvery: 50 * time.Millisecond,
		pages:     make(map[string]*page),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sync loads new and changed documents and drops those that disappeared.
// Sessions started here live until ctx is cancelled or Close is called.
func (s *Service) Sync(ctx context.Context) error {
	metas, err := s.store.List("")
	if err != nil {
		return fmt.Errorf("pageservice: list: %w", err)
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}
		if _, err := s.Load(ctx, m.Path); err != nil {
			s.logger.Warn("pageservice: load failed",
				slog.String("path", m.Path),
				slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	var stale []string
	for p := range s.pages {
		if _, ok := onDisk[p]; !ok {
			stale = append(stale, p)
		}
	}
	s.mu.Unlock()
	for _, p := range stale {
		s.Remove(p)
	}
	return nil
}

// Load parses the document at p and starts its session. An unchanged
// document is left alone; a changed one replaces the previous session and
// all of its cached results. It reports whether a session was started.
func (s *Service) Load(ctx context.Context, p string) (bool, error) {
	if !models.IsDocument(p) {
		return false, fmt.Errorf("pageservice: %s: not a document", p)
	}
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, apperr.ErrNotFound
		}
		return false, err
	}
	sum := checksum.Sum(data)

	s.mu.Lock()
	old, ok := s.pages[p]
	if ok && old.checksum == sum {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.pages, p)
	s.mu.Unlock()
	if ok {
		old.close()
	}

	doc, err := dom.Parse(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("pageservice: parse %s: %w", p, err)
	}

	pg := &page{path: p, checksum: sum, loadedAt: time.Now(), doc: doc, ch: s.relay.Attach()}
	opts := append([]session.Option{
		session.WithLogger(s.logger.With(slog.String("document", p))),
		session.WithFetcher(fetch.New(s.store, path.Dir(p), s.httpClient)),
		session.WithEventHandler(s.onEvent(p)),
	}, s.sessionOpts...)
	if s.blobs != nil {
		pg.scope = s.blobs.Scope()
		opts = append(opts, session.WithBlobStore(pg.scope))
	}
	pg.sess = session.New(doc, pg.ch, opts...)

	sctx, cancel := context.WithCancel(ctx)
	pg.cancel = cancel
	go func() {
		if err := pg.sess.Run(sctx); err != nil {
			s.logger.Warn("pageservice: session ended",
				slog.String("path", p),
				slog.String("error", err.Error()))
		}
	}()

	s.mu.Lock()
	if prev, ok := s.pages[p]; ok {
		// A concurrent Load won; keep the newest.
		defer prev.close()
	}
	s.pages[p] = pg
	s.mu.Unlock()

	s.logger.Info("pageservice: loaded", slog.String("path", p))
	if s.events != nil {
		s.events.PublishDocumentLoaded(p)
	}
	return true, nil
}

func (s *Service) onEvent(p string) func(session.Event) {
	return func(ev session.Event) {
		if ev.Type != session.EventDecrypted || s.events == nil {
			return
		}
		s.events.PublishDecrypted(sse.Decrypted{
			Path:        p,
			Fingerprint: ev.Fingerprint,
			Kind:        ev.Kind,
			Sites:       ev.Sites,
		})
	}
}

// Remove tears down the session of document p.
func (s *Service) Remove(p string) bool {
	s.mu.Lock()
	pg, ok := s.pages[p]
	delete(s.pages, p)
	s.mu.Unlock()
	if !ok {
		return false
	}
	pg.close()
	s.logger.Info("pageservice: removed", slog.String("path", p))
	if s.events != nil {
		s.events.PublishDocumentRemoved(p)
	}
	return true
}

// Close tears down every session.
func (s *Service) Close() {
	s.mu.Lock()
	pages := s.pages
	s.pages = make(map[string]*page)
	s.mu.Unlock()
	for _, pg := range pages {
		pg.close()
	}
}

func (s *Service) get(p string) (*page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg, ok := s.pages[p]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return pg, nil
}

// List returns every loaded document ordered by path.
func (s *Service) List(ctx context.Context) ([]DocumentInfo, error) {
	s.mu.Lock()
	pages := make([]*page, 0, len(s.pages))
	for _, pg := range s.pages {
		pages = append(pages, pg)
	}
	s.mu.Unlock()
	sort.Slice(pages, func(i, j int) bool { return pages[i].path < pages[j].path })

	out := make([]DocumentInfo, 0, len(pages))
	for _, pg := range pages {
		info := DocumentInfo{Path: pg.path, Checksum: pg.checksum, LoadedAt: pg.loadedAt}
		snap, err := pg.sess.Snapshot(ctx)
		switch {
		case err == nil:
			info.Ready = snap.Ready
			info.Pending = snap.Pending()
			info.Decrypted = snap.Decrypted
			info.Entries = len(snap.Entries)
		case errors.Is(err, apperr.ErrClosed):
		default:
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Status returns the session state of document p.
func (s *Service) Status(ctx context.Context, p string) (session.Snapshot, error) {
	pg, err := s.get(p)
	if err != nil {
		return session.Snapshot{}, err
	}
	return pg.sess.Snapshot(ctx)
}

// Wait blocks until document p has no pending entries or ctx is done, and
// returns the last observed state.
func (s *Service) Wait(ctx context.Context, p string) (session.Snapshot, error) {
	pg, err := s.get(p)
	if err != nil {
		return session.Snapshot{}, err
	}
	select {
	case <-pg.sess.Ready():
	case <-pg.sess.Done():
		return session.Snapshot{}, apperr.ErrClosed
	case <-ctx.Done():
		return session.Snapshot{}, ctx.Err()
	}

	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()
	for {
		snap, err := pg.sess.Snapshot(ctx)
		if err != nil {
			return snap, err
		}
		if snap.Pending() == 0 {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Render returns the current HTML of document p with decrypted content
// spliced in.
func (s *Service) Render(p string) ([]byte, error) {
	pg, err := s.get(p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pg.doc.Render(&buf); err != nil {
		return nil, fmt.Errorf("pageservice: render %s: %w", p, err)
	}
	return buf.Bytes(), nil
}

// Export writes the rendered document p to out under the same path.
func (s *Service) Export(p string, out storage.Provider) error {
	data, err := s.Render(p)
	if err != nil {
		return err
	}
	if err := out.Write(p, data); err != nil {
		return fmt.Errorf("pageservice: export %s: %w", p, err)
	}
	return nil
}
