package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/coursewire/coursewire/internal/models"
)

// CreateUploadSession inserts a new upload session record
func CreateUploadSession(db *DB, s *models.UploadSession) error {
	query := db.rebind(`
		INSERT INTO upload_sessions (
			session_id, subject, filename, file_size, file_hash, chunk_size,
			total_chunks, uploaded_chunks, mime_type, status, stored_name,
			created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := db.Exec(query,
		s.SessionID,
		s.Subject,
		s.Filename,
		s.FileSize,
		s.FileHash,
		s.ChunkSize,
		s.TotalChunks,
		s.UploadedChunks,
		s.MimeType,
		s.Status,
		s.StoredName,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload session: %w", err)
	}

	return nil
}

// GetUploadSession retrieves a session by id. Returns (nil, nil) when absent.
func GetUploadSession(db *DB, sessionID string) (*models.UploadSession, error) {
	query := db.rebind(`
		SELECT session_id, subject, filename, file_size, file_hash, chunk_size,
		       total_chunks, uploaded_chunks, mime_type, status, stored_name,
		       created_at, expires_at
		FROM upload_sessions
		WHERE session_id = ?
	`)

	s := &models.UploadSession{}
	err := db.QueryRow(query, sessionID).Scan(
		&s.SessionID,
		&s.Subject,
		&s.Filename,
		&s.FileSize,
		&s.FileHash,
		&s.ChunkSize,
		&s.TotalChunks,
		&s.UploadedChunks,
		&s.MimeType,
		&s.Status,
		&s.StoredName,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}

	return s, nil
}

// FindResumableSession returns a non-terminal session for the same file hash
// and size owned by the subject, if one exists. Used to resume an interrupted
// upload instead of opening a second session for the same content.
func FindResumableSession(db *DB, subject, fileHash string, fileSize int64, now time.Time) (*models.UploadSession, error) {
	query := db.rebind(`
		SELECT session_id, subject, filename, file_size, file_hash, chunk_size,
		       total_chunks, uploaded_chunks, mime_type, status, stored_name,
		       created_at, expires_at
		FROM upload_sessions
		WHERE subject = ? AND file_hash = ? AND file_size = ?
		  AND status IN (?, ?) AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`)

	s := &models.UploadSession{}
	err := db.QueryRow(query, subject, fileHash, fileSize,
		models.SessionInitiated, models.SessionInProgress, now).Scan(
		&s.SessionID,
		&s.Subject,
		&s.Filename,
		&s.FileSize,
		&s.FileHash,
		&s.ChunkSize,
		&s.TotalChunks,
		&s.UploadedChunks,
		&s.MimeType,
		&s.Status,
		&s.StoredName,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find resumable session: %w", err)
	}

	return s, nil
}

// RecordChunkReceived advances uploaded_chunks by one and moves the session
// into IN_PROGRESS. Guarded on the current count so concurrent duplicate
// requests cannot double-count a chunk.
func RecordChunkReceived(db *DB, sessionID string, chunkNumber int) error {
	query := db.rebind(`
		UPDATE upload_sessions
		SET uploaded_chunks = uploaded_chunks + 1, status = ?
		WHERE session_id = ? AND uploaded_chunks = ?
	`)

	res, err := db.Exec(query, models.SessionInProgress, sessionID, chunkNumber)
	if err != nil {
		return fmt.Errorf("failed to record chunk: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("chunk %d was not the next expected chunk for session %s", chunkNumber, sessionID)
	}

	return nil
}

// SetSessionStatus updates the session status and, for COMPLETED sessions,
// the detected mime type and stored object name.
func SetSessionStatus(db *DB, sessionID, status, mimeType, storedName string) error {
	query := db.rebind(`
		UPDATE upload_sessions
		SET status = ?, mime_type = ?, stored_name = ?
		WHERE session_id = ?
	`)

	if _, err := db.Exec(query, status, mimeType, storedName, sessionID); err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}

	return nil
}

// DeleteUploadSession removes a session record entirely (client cancel).
func DeleteUploadSession(db *DB, sessionID string) error {
	query := db.rebind(`DELETE FROM upload_sessions WHERE session_id = ?`)

	if _, err := db.Exec(query, sessionID); err != nil {
		return fmt.Errorf("failed to delete upload session: %w", err)
	}

	return nil
}

// ExpireStaleSessions marks non-terminal sessions past their expiry as
// EXPIRED and returns their ids so the caller can delete their chunks.
func ExpireStaleSessions(db *DB, now time.Time) ([]string, error) {
	selectQuery := db.rebind(`
		SELECT session_id FROM upload_sessions
		WHERE status IN (?, ?) AND expires_at <= ?
	`)

	rows, err := db.Query(selectQuery, models.SessionInitiated, models.SessionInProgress, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale sessions: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	updateQuery := db.rebind(`
		UPDATE upload_sessions SET status = ?
		WHERE status IN (?, ?) AND expires_at <= ?
	`)
	if _, err := db.Exec(updateQuery, models.SessionExpired,
		models.SessionInitiated, models.SessionInProgress, now); err != nil {
		return nil, fmt.Errorf("failed to expire stale sessions: %w", err)
	}

	return ids, nil
}

// ListPurgeableSessions returns terminal EXPIRED/FAILED session ids older
// than the cutoff. The caller deletes each session's chunks before removing
// the row, so a failed chunk deletion is retried on the next sweep.
// Completed rows are kept as the record of stored objects.
func ListPurgeableSessions(db *DB, cutoff time.Time) ([]string, error) {
	query := db.rebind(`
		SELECT session_id FROM upload_sessions
		WHERE status IN (?, ?) AND expires_at <= ?
	`)

	rows, err := db.Query(query, models.SessionExpired, models.SessionFailed, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list purgeable sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purgeable sessions: %w", err)
	}

	return ids, nil
}
