package aidetect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ContentHash returns the hex SHA-256 of raw bytes, used as the cache key.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ShortHash is the 16-character prefix reported as image_hash.
func ShortHash(contentHash string) string {
	if len(contentHash) > 16 {
		return contentHash[:16]
	}
	return contentHash
}

// fingerprint identifies a HeuristicConfig so results computed under
// different thresholds never share a cache key.
func (hc HeuristicConfig) fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%+v", hc)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
