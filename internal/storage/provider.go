// Package storage defines the document library file-system abstraction.
package storage

import "github.com/starford/decryptor/internal/models"

// Provider is the interface for library file operations.
type Provider interface {
	// List returns metadata for every HTML document under dir (relative to the library root).
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the library root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the library root).
	Write(path string, content []byte) error
}
