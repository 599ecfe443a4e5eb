package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a raw API token the way it is stored.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
