package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes computes the SHA-256 hex digest of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// IsValidSHA256Hex reports whether s is a 64-character lowercase-insensitive
// hex string, the wire format for file and chunk digests.
func IsValidSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
