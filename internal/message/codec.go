package message

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/starford/decryptor/internal/apperr"
)

// Codec converts messages to and from bytes.
type Codec interface {
	Name() string
	Marshal(m Message) ([]byte, error)
	Unmarshal(data []byte) (Message, error)
}

var (
	// JSON is the native messaging encoding.
	JSON Codec = jsonCodec{}
	// CBOR is a compact binary alternative for agents that support it.
	CBOR Codec = cborCodec{}
)

// CodecByName returns the codec registered under name ("json" or "cbor").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("message: unknown codec %q", name)
	}
}

// envelope is the flat wire shape shared by every message type.
type envelope struct {
	Type      string `json:"type" cbor:"type"`
	Data      string `json:"data,omitempty" cbor:"data,omitempty"`
	Encoding  string `json:"encoding,omitempty" cbor:"encoding,omitempty"`
	MessageID string `json:"messageId,omitempty" cbor:"messageId,omitempty"`
	SessionID string `json:"tabId,omitempty" cbor:"tabId,omitempty"`
	LastBlock *int   `json:"lastBlock,omitempty" cbor:"lastBlock,omitempty"`
	Success   *int   `json:"success,omitempty" cbor:"success,omitempty"`
	MimeType  string `json:"mimeType,omitempty" cbor:"mimeType,omitempty"`
	Message   string `json:"message,omitempty" cbor:"message,omitempty"`
	Keys      Keys   `json:"keys,omitempty" cbor:"keys,omitempty"`
}

func flag(b bool) *int {
	v := 0
	if b {
		v = 1
	}
	return &v
}

func isSet(v *int) bool {
	return v != nil && *v != 0
}

func toEnvelope(m Message) (envelope, error) {
	switch v := m.(type) {
	case DecryptRequest:
		return envelope{
			Type:      TypeDecryptRequest,
			Data:      v.Data,
			Encoding:  string(v.Encoding),
			MessageID: v.MessageID,
			SessionID: v.SessionID,
			LastBlock: flag(v.LastBlock),
		}, nil
	case DecryptResponse:
		return envelope{
			Type:      TypeDecryptResponse,
			Data:      v.Data,
			Encoding:  string(v.Encoding),
			MessageID: v.MessageID,
			SessionID: v.SessionID,
			LastBlock: flag(v.LastBlock),
			Success:   flag(v.Success),
			MimeType:  v.MimeType,
			Message:   v.Error,
		}, nil
	case SessionRequest:
		return envelope{Type: TypeSessionRequest, SessionID: v.SessionID}, nil
	case SessionResponse:
		return envelope{Type: TypeSessionResponse, SessionID: v.SessionID}, nil
	case GetKeysRequest:
		return envelope{Type: TypeGetKeysRequest}, nil
	case GetKeysResponse:
		return envelope{Type: TypeGetKeysResponse, Keys: nonNil(v.Keys)}, nil
	case UpdateKeysRequest:
		return envelope{Type: TypeUpdateKeysRequest, Keys: nonNil(v.Keys)}, nil
	case Debug:
		return envelope{Type: TypeDebug, Message: v.Text}, nil
	default:
		return envelope{}, fmt.Errorf("message: cannot encode %T", m)
	}
}

func fromEnvelope(e envelope) (Message, error) {
	switch e.Type {
	case TypeDecryptRequest:
		return DecryptRequest{
			Data:      e.Data,
			Encoding:  Encoding(e.Encoding),
			MessageID: e.MessageID,
			SessionID: e.SessionID,
			// A missing lastBlock means the message was never split.
			LastBlock: e.LastBlock == nil || *e.LastBlock != 0,
		}, nil
	case TypeDecryptResponse:
		return DecryptResponse{
			Success:   isSet(e.Success),
			Data:      e.Data,
			Encoding:  Encoding(e.Encoding),
			MessageID: e.MessageID,
			SessionID: e.SessionID,
			LastBlock: e.LastBlock == nil || *e.LastBlock != 0,
			MimeType:  e.MimeType,
			Error:     e.Message,
		}, nil
	case TypeSessionRequest:
		return SessionRequest{SessionID: e.SessionID}, nil
	case TypeSessionResponse:
		return SessionResponse{SessionID: e.SessionID}, nil
	case TypeGetKeysRequest:
		return GetKeysRequest{}, nil
	case TypeGetKeysResponse:
		return GetKeysResponse{Keys: nonNil(e.Keys)}, nil
	case TypeUpdateKeysRequest:
		return UpdateKeysRequest{Keys: nonNil(e.Keys)}, nil
	case TypeDebug:
		return Debug{Text: e.Message}, nil
	default:
		return nil, fmt.Errorf("message: %q: %w", e.Type, apperr.ErrUnknownType)
	}
}

func nonNil(k Keys) Keys {
	if k == nil {
		return Keys{}
	}
	return k
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(m Message) ([]byte, error) {
	e, err := toEnvelope(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func (jsonCodec) Unmarshal(data []byte) (Message, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("message: decode json: %w", err)
	}
	return fromEnvelope(e)
}

type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Marshal(m Message) ([]byte, error) {
	e, err := toEnvelope(m)
	if err != nil {
		return nil, err
	}
	return cborCodec{}.marshalEnvelope(e)
}

func (cborCodec) marshalEnvelope(e envelope) ([]byte, error) {
	return cbor.Marshal(e)
}

func (cborCodec) Unmarshal(data []byte) (Message, error) {
	var e envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("message: decode cbor: %w", err)
	}
	return fromEnvelope(e)
}
