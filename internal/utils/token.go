package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// AccessTokenPrefix marks coursewire bearer tokens so secret scanning
	// tools can detect leaked credentials.
	AccessTokenPrefix = "cwire_"

	// AccessTokenRandomBytes is the entropy of a token (256 bits)
	AccessTokenRandomBytes = 32

	// AccessTokenLength is prefix (6) + hex-encoded random bytes (64)
	AccessTokenLength = 70

	// AccessTokenDisplayLength is how much of a token is kept for
	// identification: "cwire_" + first 2 hex chars
	AccessTokenDisplayLength = 8
)

// GenerateAccessToken creates a new bearer token. Returns the full token
// (shown to the user once) and the display prefix stored for identification.
func GenerateAccessToken() (fullToken, displayPrefix string, err error) {
	b := make([]byte, AccessTokenRandomBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullToken = AccessTokenPrefix + hex.EncodeToString(b)
	displayPrefix = fullToken[:AccessTokenDisplayLength]

	return fullToken, displayPrefix, nil
}

// HashAccessToken creates the SHA-256 hash stored in place of the token.
func HashAccessToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateAccessTokenFormat checks shape only, not validity.
func ValidateAccessTokenFormat(token string) bool {
	if !strings.HasPrefix(token, AccessTokenPrefix) {
		return false
	}
	if len(token) != AccessTokenLength {
		return false
	}
	_, err := hex.DecodeString(token[len(AccessTokenPrefix):])
	return err == nil
}
