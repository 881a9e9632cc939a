// Package checksum fingerprints serialized notes and metadata.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of s.
func Sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// ETag returns a strong HTTP entity tag for s.
func ETag(s string) string {
	return `"` + Sum(s)[:32] + `"`
}
