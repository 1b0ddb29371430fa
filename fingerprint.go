package chatrelay

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the lower-case hex SHA-256 digest of a message body.
// An attachment reference, when present, is folded in after a NUL byte so a
// text-only message never collides with the same text plus a file.
func Fingerprint(content, fileURL string) string {
	h := sha256.New()
	h.Write([]byte(content))
	if fileURL != "" {
		h.Write([]byte{0})
		h.Write([]byte(fileURL))
	}
	return hex.EncodeToString(h.Sum(nil))
}
