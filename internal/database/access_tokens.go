package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/coursewire/coursewire/internal/models"
)

// CreateAccessToken stores the hash of a newly issued bearer token.
func CreateAccessToken(db *DB, t *models.AccessToken) error {
	query := db.rebind(`
		INSERT INTO access_tokens (subject, token_hash, prefix, created_at)
		VALUES (?, ?, ?, ?)
	`)

	res, err := db.Exec(query, t.Subject, t.TokenHash, t.Prefix, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}

	return nil
}

// GetAccessTokenByHash looks up a token by its SHA-256 hash.
// Returns (nil, nil) when no token matches.
func GetAccessTokenByHash(db *DB, tokenHash string) (*models.AccessToken, error) {
	query := db.rebind(`
		SELECT id, subject, token_hash, prefix, created_at, last_used_at
		FROM access_tokens
		WHERE token_hash = ?
	`)

	t := &models.AccessToken{}
	var lastUsed sql.NullTime
	err := db.QueryRow(query, tokenHash).Scan(
		&t.ID,
		&t.Subject,
		&t.TokenHash,
		&t.Prefix,
		&t.CreatedAt,
		&lastUsed,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}

	return t, nil
}

// TouchAccessToken updates last_used_at. Failures are not fatal to a request.
func TouchAccessToken(db *DB, id int64, now time.Time) error {
	query := db.rebind(`UPDATE access_tokens SET last_used_at = ? WHERE id = ?`)

	if _, err := db.Exec(query, now, id); err != nil {
		return fmt.Errorf("failed to touch access token: %w", err)
	}

	return nil
}
