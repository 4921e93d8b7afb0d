package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
    session_id TEXT PRIMARY KEY,
    subject TEXT NOT NULL,
    filename TEXT NOT NULL,
    file_size BIGINT NOT NULL,
    file_hash TEXT NOT NULL,
    chunk_size BIGINT NOT NULL,
    total_chunks INTEGER NOT NULL,
    uploaded_chunks INTEGER NOT NULL DEFAULT 0,
    mime_type TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    stored_name TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_hash ON upload_sessions(file_hash, file_size);
CREATE INDEX IF NOT EXISTS idx_upload_sessions_expires ON upload_sessions(expires_at);

CREATE TABLE IF NOT EXISTS video_progress (
    subject TEXT NOT NULL,
    video_id TEXT NOT NULL,
    last_watched_time REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (subject, video_id)
);

CREATE TABLE IF NOT EXISTS lesson_completions (
    subject TEXT NOT NULL,
    lesson_id TEXT NOT NULL,
    completed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (subject, lesson_id)
);

CREATE TABLE IF NOT EXISTS access_tokens (
    id INTEGER PRIMARY KEY,
    subject TEXT NOT NULL,
    token_hash TEXT UNIQUE NOT NULL,
    prefix TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    last_used_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_access_tokens_prefix ON access_tokens(prefix);
`

// sqlite-only pragmas for concurrency and durability
var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// DB wraps sql.DB with the driver name so queries written with '?'
// placeholders can be rebound for postgres.
type DB struct {
	*sql.DB
	driver string
}

// Open connects to the configured database and creates the schema.
// driver is "sqlite" (dsn = file path) or "postgres" (dsn = connection URL).
func Open(driver, dsn string) (*DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch driver {
	case "sqlite":
		db, err = sql.Open("sqlite", dsn)
	case "postgres":
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == "sqlite" {
		for _, pragma := range sqlitePragmas {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to set pragma: %w", err)
			}
		}
	}

	wrapped := &DB{DB: db, driver: driver}
	if err := wrapped.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return wrapped, nil
}

// migrate creates the schema. Statements are idempotent.
func (db *DB) migrate() error {
	s := schema
	if db.driver == "postgres" {
		// postgres has no INTEGER PRIMARY KEY rowid alias
		s = strings.Replace(s, "id INTEGER PRIMARY KEY,", "id BIGSERIAL PRIMARY KEY,", 1)
	}
	for _, stmt := range strings.Split(s, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}

// rebind converts '?' placeholders to '$N' for postgres. Queries in this
// package are written with '?' and never contain a literal question mark.
func (db *DB) rebind(query string) string {
	if db.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
