// Package blobstore keeps decrypted files in memory behind short-lived
// addressable handles.
package blobstore

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/decryptor/internal/apperr"
)

// Blob is one decrypted file.
type Blob struct {
	ID        string
	MimeType  string
	Data      []byte
	CreatedAt time.Time
}

// Store holds blobs keyed by id. Handles are prefix + id.
type Store struct {
	prefix string

	mu    sync.RWMutex
	blobs map[string]Blob
}

// New creates a Store whose handles start with prefix (e.g. "/blobs/").
func New(prefix string) *Store {
	return &Store{prefix: prefix, blobs: make(map[string]Blob)}
}

// Put stores data and returns its handle.
func (s *Store) Put(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = Blob{ID: id, MimeType: mimeType, Data: data, CreatedAt: time.Now()}
	s.mu.Unlock()
	return s.prefix + id
}

// Get returns the blob with the given id.
func (s *Store) Get(id string) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return Blob{}, apperr.ErrNotFound
	}
	return b, nil
}

// Release forgets the blob behind handle.
func (s *Store) Release(handle string) {
	id := strings.TrimPrefix(handle, s.prefix)
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
}

// Len returns the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Scope returns a view of the store that remembers the handles it minted so
// they can be released together when a document is torn down.
func (s *Store) Scope() *Scope {
	return &Scope{store: s}
}

// Scope tracks blobs created for one document.
type Scope struct {
	store *Store

	mu      sync.Mutex
	handles []string
}

// Put stores data in the parent store and records the handle.
func (sc *Scope) Put(mimeType string, data []byte) string {
	h := sc.store.Put(mimeType, data)
	sc.mu.Lock()
	sc.handles = append(sc.handles, h)
	sc.mu.Unlock()
	return h
}

// Close releases every blob created through the scope.
func (sc *Scope) Close() {
	sc.mu.Lock()
	handles := sc.handles
	sc.handles = nil
	sc.mu.Unlock()
	for _, h := range handles {
		sc.store.Release(h)
	}
}
