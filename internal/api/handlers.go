package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/decryptor/internal/blobstore"
	"github.com/starford/decryptor/internal/message"
	"github.com/starford/decryptor/internal/pageservice"
	"github.com/starford/decryptor/internal/session"
)

const maxWait = 60 * time.Second

// Documents is the document library as seen by the API.
type Documents interface {
	List(ctx context.Context) ([]pageservice.DocumentInfo, error)
	Render(path string) ([]byte, error)
	Status(ctx context.Context, path string) (session.Snapshot, error)
	Wait(ctx context.Context, path string) (session.Snapshot, error)
}

// KeyManager reads and replaces the stored key list.
type KeyManager interface {
	Keys(ctx context.Context) (message.Keys, error)
	SetKeys(ctx context.Context, keys message.Keys) error
}

// Blobs serves decrypted file content.
type Blobs interface {
	Get(id string) (blobstore.Blob, error)
}

// Handler holds API route handlers.
type Handler struct {
	docs  Documents
	keys  KeyManager
	blobs Blobs
}

// NewHandler creates a new Handler.
func NewHandler(docs Documents, keys KeyManager, blobs Blobs) *Handler {
	return &Handler{docs: docs, keys: keys, blobs: blobs}
}

// docPath extracts the document path from the wildcard segment.
// Encoded slashes (sub%2Fpage.html) are accepted.
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListDocuments handles GET /documents.
//
//	@Summary		List loaded documents with their decryption progress
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docs.List(r.Context())
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// GetDocument handles GET /documents/*. The optional wait query parameter
// (a duration such as "5s") holds the response until nothing is pending or
// the duration elapses.
//
//	@Summary		Render a document with decrypted content
//	@Tags			documents
//	@Produce		html
//	@Param			path	path	string	true	"Document path"
//	@Param			wait	query	string	false	"Maximum time to wait for pending entries"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid wait duration"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), min(d, maxWait))
		_, err = h.docs.Wait(ctx, path)
		cancel()
		if err != nil && ctx.Err() == nil {
			writeError(w, "wait document", err)
			return
		}
	}

	body, err := h.docs.Render(path)
	if err != nil {
		writeError(w, "render document", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// GetStatus handles GET /status/*.
//
//	@Summary		Decryption state of a document
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	StatusResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/status/{path} [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	snap, err := h.docs.Status(r.Context(), path)
	if err != nil {
		writeError(w, "document status", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetBlob handles GET /blobs/{id}.
func (h *Handler) GetBlob(w http.ResponseWriter, r *http.Request) {
	b, err := h.blobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get blob", err)
		return
	}
	w.Header().Set("Content-Type", b.MimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Data)
}

// ListKeys handles GET /keys.
//
//	@Summary		List stored key identifiers
//	@Tags			keys
//	@Produce		json
//	@Success		200	{object}	KeyListResponse
//	@Security		BearerAuth
//	@Router			/keys [get]
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.Keys(r.Context())
	if err != nil {
		writeError(w, "list keys", err)
		return
	}
	ids := make([]string, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, KeyListResponse{Keys: ids})
}

// UpdateKeys handles PUT /keys.
//
//	@Summary		Replace the stored keys and push them to the agent
//	@Tags			keys
//	@Accept			json
//	@Param			body	body	UpdateKeysRequest	true	"Key identifiers and passphrases"
//	@Success		204
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/keys [put]
func (h *Handler) UpdateKeys(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req UpdateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Keys == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("keys are required"))
		return
	}
	if err := h.keys.SetKeys(r.Context(), message.Keys(req.Keys)); err != nil {
		writeError(w, "update keys", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
