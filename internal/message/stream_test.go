package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/decryptor/internal/apperr"
)

func TestStream_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewStream(nil, &buf, JSON)
	require.NoError(t, w.WriteMessage(SessionRequest{}))
	require.NoError(t, w.WriteMessage(Debug{Text: "hello"}))

	r := NewStream(&buf, nil, JSON)
	m, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, SessionRequest{}, m)
	m, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, Debug{Text: "hello"}, m)

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_NativeEndianLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewStream(nil, &buf, JSON).WriteMessage(GetKeysRequest{}))
	raw := buf.Bytes()
	n := binary.NativeEndian.Uint32(raw[:4])
	assert.Equal(t, `{"type":"getKeysRequest"}`, string(raw[4:4+n]))
}

func TestStream_SkipsUnknownTypes(t *testing.T) {
	var buf bytes.Buffer
	frame := func(s string) {
		var l [4]byte
		binary.NativeEndian.PutUint32(l[:], uint32(len(s)))
		buf.Write(l[:])
		buf.WriteString(s)
	}
	frame(`{"type":"displayWindow"}`)
	frame(`{"type":"tabIdResponse","tabId":"abc"}`)

	r := NewStream(&buf, nil, JSON)
	_, err := r.ReadMessage()
	require.True(t, errors.Is(err, apperr.ErrUnknownType))
	m, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, SessionResponse{SessionID: "abc"}, m)
}

func TestStream_TruncatedFrame(t *testing.T) {
	var l [4]byte
	binary.NativeEndian.PutUint32(l[:], 10)
	r := NewStream(bytes.NewReader(append(l[:], 'x')), nil, JSON)
	_, err := r.ReadMessage()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStream_OversizedHeaderDoesNotPreallocate(t *testing.T) {
	var l [4]byte
	binary.NativeEndian.PutUint32(l[:], MaxFrame)
	r := NewStream(bytes.NewReader(append(l[:], `{"type":"debug"}`...)), nil, JSON)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := r.ReadMessage()
	runtime.ReadMemStats(&after)

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20), "frame buffer sized from the header")
}
