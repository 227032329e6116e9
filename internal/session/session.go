// Package session implements the per-document decryption engine: it
// deduplicates encrypted content by fingerprint, sends one decrypt request per
// fingerprint through the relay, and applies each result to every document
// site that shares it.
//
// All session state is owned by the goroutine running Run. Inbound relay
// messages, document mutations, and finished file loads are handled there one
// at a time, so no locking is needed around the cache.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/starford/decryptor/internal/apperr"
	"github.com/starford/decryptor/internal/checksum"
	"github.com/starford/decryptor/internal/chunk"
	"github.com/starford/decryptor/internal/dom"
	"github.com/starford/decryptor/internal/scanner"
)

type siteKey struct {
	node *html.Node
	kind scanner.Kind
}

type fetchResult struct {
	fingerprint string
	messageID   string
	data        []byte
	err         error
}

// Session is the decryption state of one document.
type Session struct {
	doc            *dom.Document
	port           Port
	fetcher        Fetcher
	blobs          BlobStore
	logger         *slog.Logger
	maxChunk       int
	handshakeRetry time.Duration
	onEvent        func(Event)

	// Loop-owned state.
	sessionID string
	entries   map[string]*entry
	requests  map[string]request
	kinds     map[string]scanner.Kind
	sites     map[siteKey]string
	nodes     map[string]*html.Node
	siteMsgs  map[string]string
	siteIDs   *checksum.Sequence
	msgIDs    *checksum.Sequence
	assembler *chunk.Assembler

	fetched    chan fetchResult
	snapshotCh chan chan Snapshot
	loads      sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// New creates a Session for doc talking to the relay through port.
func New(doc *dom.Document, port Port, opts ...Option) *Session {
	s := &Session{
		doc:            doc,
		port:           port,
		blobs:          DataURLs{},
		logger:         slog.Default(),
		maxChunk:       defaultMaxChunk,
		handshakeRetry: defaultHandshakeRetry,
		entries:        make(map[string]*entry),
		requests:       make(map[string]request),
		kinds:          make(map[string]scanner.Kind),
		sites:          make(map[siteKey]string),
		nodes:          make(map[string]*html.Node),
		siteMsgs:       make(map[string]string),
		siteIDs:        checksum.NewSequence("decryptor-site"),
		msgIDs:         checksum.NewSequence("decryptor-msg"),
		assembler:      chunk.NewAssembler(),
		fetched:        make(chan fetchResult),
		snapshotCh:     make(chan chan Snapshot),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready is closed once the session identifier has been received.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run performs the handshake, scans the whole document, and then processes
// events until ctx is cancelled or the port closes. Dropping the Session
// afterwards discards all cached state.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	if err := s.handshake(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	obs := s.watch()
	defer obs.Disconnect()

	var all []scanner.Candidate
	s.doc.Read(func(root *html.Node) { all = scanner.Scan(root) })
	s.logger.Debug("session: initial scan", slog.Int("candidates", len(all)))
	for _, c := range all {
		s.submit(ctx, c)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("session: stopped", slog.String("session_id", s.sessionID))
			return nil

		case m, ok := <-s.port.Inbound():
			if !ok {
				s.logger.Info("session: relay closed", slog.String("session_id", s.sessionID))
				return apperr.ErrClosed
			}
			s.handleMessage(m)

		case <-obs.Notify():
			s.handleMutations(ctx, obs.TakeRecords())

		case r := <-s.fetched:
			s.handleFetched(r)

		case resp := <-s.snapshotCh:
			resp <- s.snapshot()
		}
	}
}

// Snapshot returns the current session state. It blocks until the event loop
// answers, ctx is done, or the session has stopped.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	resp := make(chan Snapshot, 1)
	select {
	case s.snapshotCh <- resp:
	case <-s.done:
		return Snapshot{}, apperr.ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-resp:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:         s.sessionID,
		Ready:             s.sessionID != "",
		Sites:             len(s.nodes),
		PendingAssemblies: s.assembler.Pending(),
	}
	for fp, e := range s.entries {
		switch e.status {
		case StatusRequested:
			snap.Requested++
		case StatusInFlight:
			snap.InFlight++
		case StatusDecrypting:
			snap.Decrypting++
		case StatusDecrypted:
			snap.Decrypted++
		}
		snap.Entries = append(snap.Entries, EntryInfo{
			Fingerprint: fp,
			Kind:        e.kind,
			KindName:    e.kind.String(),
			Status:      e.status,
			StatusName:  e.status.String(),
			Sites:       append([]string(nil), e.sites...),
			MimeType:    e.mimeType,
		})
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Fingerprint < snap.Entries[j].Fingerprint
	})
	return snap
}

func (s *Session) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}
