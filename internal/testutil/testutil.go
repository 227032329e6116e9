// Package testutil provides shared test helpers for setting up libraries and key stores.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/decryptor/internal/relay"
	"github.com/starford/decryptor/internal/storage"
)

// TestKeyStore opens a SQLite key store in a temporary directory that is closed on cleanup.
func TestKeyStore(t *testing.T) *relay.KeyDB {
	t.Helper()
	db, err := relay.OpenKeyStore(filepath.Join(t.TempDir(), "keys.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory with a storage.FS over it.
// files maps library-relative paths to contents and is written before returning.
func TestLibrary(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	for p, content := range files {
		if err := store.Write(p, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	return dir, store
}
