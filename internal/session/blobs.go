package session

import (
	"github.com/starford/decryptor/internal/checksum"
)

// DataURLs publishes decrypted files inline as data: URLs. It is the default
// BlobStore when none is configured.
type DataURLs struct{}

// Put returns a data: URL holding data.
func (DataURLs) Put(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + checksum.EncodeBase64(data)
}
