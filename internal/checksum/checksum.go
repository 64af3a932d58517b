// Package checksum derives content digests for published frames.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns a strong HTTP entity tag for data, built from the first
// 64 bits of its digest.
func ETag(data []byte) string {
	return `"` + Sum(data)[:16] + `"`
}
