package models

import "time"

// AccessToken is a bearer credential for the media API. Only the SHA-256 hash
// of the secret is stored; the plaintext is shown once at creation.
type AccessToken struct {
	ID         int64      `json:"id"`
	Subject    string     `json:"subject"`
	TokenHash  string     `json:"-"`
	Prefix     string     `json:"prefix"` // first 8 chars, for identification
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}
