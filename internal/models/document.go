// Package models defines the domain types shared across decryptor packages.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDocument reports whether name has an HTML document extension.
func IsDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}
