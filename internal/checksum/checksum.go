// Package checksum provides content hashing, id minting, and base64 helpers.
package checksum

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"unicode/utf16"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns the 32-bit rolling hash of text (h = h*31 + unit over
// UTF-16 code units, wrapping) as a signed decimal string. Distinct texts may
// collide; callers treat a collision as the same content.
func Fingerprint(text string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(text)) {
		h = (h << 5) - h + int32(u)
	}
	return strconv.FormatInt(int64(h), 10)
}

// EncodeBase64 returns the standard base64 encoding of data.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a standard base64 string. Line breaks are ignored.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Sequence mints ids of the form "<prefix>-<n>". Not safe for concurrent use.
type Sequence struct {
	prefix string
	next   uint64
}

// NewSequence returns a Sequence starting at 0.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next returns the next id.
func (s *Sequence) Next() string {
	id := s.prefix + "-" + strconv.FormatUint(s.next, 10)
	s.next++
	return id
}
