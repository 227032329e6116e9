// Package message defines the messages exchanged between decryption sessions,
// the relay bridge, and the native agent, and their wire encodings.
package message

// Encoding names how the Data field of a decrypt message is encoded.
type Encoding string

const (
	EncodingASCII  Encoding = "ascii"
	EncodingBase64 Encoding = "base64"
)

// Wire type discriminators.
const (
	TypeDecryptRequest    = "decryptRequest"
	TypeDecryptResponse   = "decryptResponse"
	TypeSessionRequest    = "tabIdRequest"
	TypeSessionResponse   = "tabIdResponse"
	TypeGetKeysRequest    = "getKeysRequest"
	TypeGetKeysResponse   = "getKeysResponse"
	TypeUpdateKeysRequest = "updateKeysRequest"
	TypeDebug             = "debug"
)

// Keys maps a key identifier to its passphrase. Only the agent interprets it.
type Keys map[string]string

// Message is one of the concrete message types in this package.
type Message interface {
	isMessage()
}

// DecryptRequest carries (a block of) encrypted data to the agent.
type DecryptRequest struct {
	Data      string
	Encoding  Encoding
	MessageID string
	SessionID string
	LastBlock bool
}

// DecryptResponse carries (a block of) decrypted data back to a session.
type DecryptResponse struct {
	Success   bool
	Data      string
	Encoding  Encoding
	MessageID string
	SessionID string
	LastBlock bool
	// MimeType is set for decrypted files.
	MimeType string
	// Error describes a failed decryption.
	Error string
}

// SessionRequest asks the relay for the session identifier.
type SessionRequest struct {
	SessionID string
}

// SessionResponse delivers the session identifier.
type SessionResponse struct {
	SessionID string
}

// GetKeysRequest asks the relay for the stored key list.
type GetKeysRequest struct{}

// GetKeysResponse returns the stored key list.
type GetKeysResponse struct {
	Keys Keys
}

// UpdateKeysRequest replaces the stored key list.
type UpdateKeysRequest struct {
	Keys Keys
}

// Debug is a diagnostic line from the agent.
type Debug struct {
	Text string
}

func (DecryptRequest) isMessage()    {}
func (DecryptResponse) isMessage()   {}
func (SessionRequest) isMessage()    {}
func (SessionResponse) isMessage()   {}
func (GetKeysRequest) isMessage()    {}
func (GetKeysResponse) isMessage()   {}
func (UpdateKeysRequest) isMessage() {}
func (Debug) isMessage()             {}
