package syncer

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns the SHA-256 digest of data as a lowercase hex string.
// The same fingerprint is written to blob metadata, recorded in catalog rows,
// and returned to clients in status responses.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
