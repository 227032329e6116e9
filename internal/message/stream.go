package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/starford/decryptor/internal/apperr"
)

// MaxFrame is the largest encoded message a Stream accepts.
const MaxFrame = math.MaxUint32

// readChunk is the initial buffer size for an incoming frame.
const readChunk = 64 << 10

// Stream reads and writes length-prefixed messages: a 4-byte length in
// native byte order followed by the encoded message.
type Stream struct {
	r     io.Reader
	w     io.Writer
	codec Codec
	wmu   sync.Mutex
}

// NewStream creates a Stream. Either side may be nil for one-way use.
func NewStream(r io.Reader, w io.Writer, codec Codec) *Stream {
	if codec == nil {
		codec = JSON
	}
	return &Stream{r: r, w: w, codec: codec}
}

// ReadMessage reads the next message. An unrecognised message type yields an
// error wrapping apperr.ErrUnknownType; the stream stays usable.
func (s *Stream) ReadMessage() (Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(s.r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := int64(binary.NativeEndian.Uint32(lengthBuf[:]))

	// The buffer grows with the bytes actually received, so a corrupt
	// header cannot force a large allocation up front.
	var buf bytes.Buffer
	buf.Grow(int(min(length, readChunk)))
	if _, err := io.CopyN(&buf, s.r, length); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("message: read frame: %w", err)
	}
	return s.codec.Unmarshal(buf.Bytes())
}

// WriteMessage encodes m and writes it as one frame. Safe for concurrent use.
func (s *Stream) WriteMessage(m Message) error {
	payload, err := s.codec.Marshal(m)
	if err != nil {
		return err
	}
	if uint64(len(payload)) > MaxFrame {
		return fmt.Errorf("message: %d bytes: %w", len(payload), apperr.ErrFrameTooLarge)
	}

	frame := make([]byte, 4+len(payload))
	binary.NativeEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("message: write frame: %w", err)
	}
	return nil
}
