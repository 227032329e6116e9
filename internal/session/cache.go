package session

import (
	"github.com/starford/decryptor/internal/scanner"
)

// Status is the decryption state of a cache entry.
type Status int

const (
	// StatusRequested: entry created, request not yet sent (file still loading).
	StatusRequested Status = iota
	// StatusInFlight: request blocks are being sent.
	StatusInFlight
	// StatusDecrypting: all blocks sent, waiting for the agent.
	StatusDecrypting
	// StatusDecrypted: result stored and applied to every known site.
	StatusDecrypted
)

func (s Status) String() string {
	switch s {
	case StatusRequested:
		return "requested"
	case StatusInFlight:
		return "in_flight"
	case StatusDecrypting:
		return "decrypting"
	case StatusDecrypted:
		return "decrypted"
	default:
		return "unknown"
	}
}

// entry is one decryption unit, shared by every site with the same
// fingerprint. Sites only grow.
type entry struct {
	kind   scanner.Kind
	status Status
	// payload is the armored text or the file locator.
	payload string
	// result is the decrypted text or the handle of the decrypted blob.
	result   string
	mimeType string

	sites   []string
	siteSet map[string]struct{}
}

func newEntry(kind scanner.Kind, payload string) *entry {
	return &entry{
		kind:    kind,
		status:  StatusRequested,
		payload: payload,
		siteSet: make(map[string]struct{}),
	}
}

// addSite appends site unless it is already tracked. It reports whether the
// site was new.
func (e *entry) addSite(site string) bool {
	if _, ok := e.siteSet[site]; ok {
		return false
	}
	e.siteSet[site] = struct{}{}
	e.sites = append(e.sites, site)
	return true
}

// request binds an outbound message id to the entry that issued it.
type request struct {
	fingerprint string
	site        string
}

// EntryInfo is a read-only view of a cache entry.
type EntryInfo struct {
	Fingerprint string       `json:"fingerprint"`
	Kind        scanner.Kind `json:"-"`
	KindName    string       `json:"kind"`
	Status      Status       `json:"-"`
	StatusName  string       `json:"status"`
	Sites       []string     `json:"sites"`
	MimeType    string       `json:"mime_type,omitempty"`
}

// Snapshot summarises session state.
type Snapshot struct {
	SessionID         string      `json:"session_id"`
	Ready             bool        `json:"ready"`
	Requested         int         `json:"requested"`
	InFlight          int         `json:"in_flight"`
	Decrypting        int         `json:"decrypting"`
	Decrypted         int         `json:"decrypted"`
	Sites             int         `json:"sites"`
	PendingAssemblies int         `json:"pending_assemblies"`
	Entries           []EntryInfo `json:"entries"`
}

// Pending returns the number of entries without a result.
func (s Snapshot) Pending() int {
	return s.Requested + s.InFlight + s.Decrypting
}
