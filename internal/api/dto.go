package api

import (
	"github.com/starford/decryptor/internal/pageservice"
	"github.com/starford/decryptor/internal/session"
)

// DocumentInfo summarises a loaded document (aliased from the domain layer).
type DocumentInfo = pageservice.DocumentInfo

// DocumentListResponse wraps the document listing.
type DocumentListResponse struct {
	Documents []DocumentInfo `json:"documents" validate:"required"`
	Total     int            `json:"total" example:"3" validate:"required"`
}

// StatusResponse is the decryption state of one document.
type StatusResponse = session.Snapshot

// KeyListResponse lists the identifiers of stored keys. Passphrases are
// never returned.
type KeyListResponse struct {
	Keys []string `json:"keys" validate:"required"`
}

// UpdateKeysRequest replaces the stored keys.
type UpdateKeysRequest struct {
	Keys map[string]string `json:"keys" example:"Alice <alice@example.com>:passphrase" validate:"required"`
}
