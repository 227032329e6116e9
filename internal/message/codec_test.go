package message

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/decryptor/internal/apperr"
)

func TestJSON_DecryptRequestWireShape(t *testing.T) {
	data, err := JSON.Marshal(DecryptRequest{
		Data:      "-----BEGIN PGP MESSAGE-----",
		Encoding:  EncodingASCII,
		MessageID: "site-0",
		SessionID: "tab-1",
		LastBlock: false,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "decryptRequest", raw["type"])
	assert.Equal(t, "ascii", raw["encoding"])
	assert.Equal(t, "site-0", raw["messageId"])
	assert.Equal(t, "tab-1", raw["tabId"])
	assert.EqualValues(t, 0, raw["lastBlock"])
}

func TestJSON_DecodesAgentResponse(t *testing.T) {
	in := `{"messageId":"site-3","success":1,"message":"","type":"decryptResponse","data":"aGk=","encoding":"base64","mimeType":"text/plain","lastBlock":1,"tabId":"tab-1"}`
	m, err := JSON.Unmarshal([]byte(in))
	require.NoError(t, err)
	resp, ok := m.(DecryptResponse)
	require.True(t, ok, "got %T", m)
	assert.True(t, resp.Success)
	assert.True(t, resp.LastBlock)
	assert.Equal(t, EncodingBase64, resp.Encoding)
	assert.Equal(t, "site-3", resp.MessageID)
	assert.Equal(t, "tab-1", resp.SessionID)
	assert.Equal(t, "text/plain", resp.MimeType)
}

func TestJSON_FailureResponseWithoutLastBlock(t *testing.T) {
	in := `{"messageId":"site-1","success":0,"message":"Unable to decrypt data","type":"decryptResponse","data":"","tabId":"t"}`
	m, err := JSON.Unmarshal([]byte(in))
	require.NoError(t, err)
	resp := m.(DecryptResponse)
	assert.False(t, resp.Success)
	assert.True(t, resp.LastBlock)
	assert.Equal(t, "Unable to decrypt data", resp.Error)
}

func TestUnknownType(t *testing.T) {
	for _, c := range []Codec{JSON, CBOR} {
		var data []byte
		var err error
		if c == JSON {
			data = []byte(`{"type":"displayWindow"}`)
		} else {
			data, err = c.(cborCodec).marshalEnvelope(envelope{Type: "displayWindow"})
			require.NoError(t, err)
		}
		_, err = c.Unmarshal(data)
		assert.True(t, errors.Is(err, apperr.ErrUnknownType), "%s: %v", c.Name(), err)
	}
}

func TestCodecs_PreserveEveryVariant(t *testing.T) {
	msgs := []Message{
		DecryptRequest{Data: "x", Encoding: EncodingBase64, MessageID: "m", SessionID: "s", LastBlock: true},
		DecryptResponse{Success: true, Data: "y", Encoding: EncodingBase64, MessageID: "m", SessionID: "s", MimeType: "image/png"},
		SessionRequest{},
		SessionResponse{SessionID: "s"},
		GetKeysRequest{},
		GetKeysResponse{Keys: Keys{"alice@example.org": "pw"}},
		UpdateKeysRequest{Keys: Keys{}},
		Debug{Text: "Message is complete"},
	}
	for _, c := range []Codec{JSON, CBOR} {
		for _, m := range msgs {
			data, err := c.Marshal(m)
			require.NoError(t, err)
			got, err := c.Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, m, got, "%s %T", c.Name(), m)
		}
	}
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())
	c, err = CodecByName("cbor")
	require.NoError(t, err)
	assert.Equal(t, "cbor", c.Name())
	_, err = CodecByName("xml")
	assert.Error(t, err)
}
