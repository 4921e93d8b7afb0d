package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/coursewire/coursewire/internal/models"
)

// SaveVideoProgress upserts the last watched position for (subject, video).
// Saves are last-write-wins; clients fire them periodically and on teardown.
func SaveVideoProgress(db *DB, subject, videoID string, lastWatchedTime float64, now time.Time) error {
	query := db.rebind(`
		INSERT INTO video_progress (subject, video_id, last_watched_time, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subject, video_id) DO UPDATE SET
			last_watched_time = excluded.last_watched_time,
			updated_at = excluded.updated_at
	`)

	if _, err := db.Exec(query, subject, videoID, lastWatchedTime, now); err != nil {
		return fmt.Errorf("failed to save video progress: %w", err)
	}

	return nil
}

// GetVideoProgress returns the saved position for (subject, video).
// Returns (nil, nil) when no position has ever been saved.
func GetVideoProgress(db *DB, subject, videoID string) (*models.VideoProgress, error) {
	query := db.rebind(`
		SELECT subject, video_id, last_watched_time, updated_at
		FROM video_progress
		WHERE subject = ? AND video_id = ?
	`)

	p := &models.VideoProgress{}
	err := db.QueryRow(query, subject, videoID).Scan(
		&p.Subject,
		&p.VideoID,
		&p.LastWatchedTime,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video progress: %w", err)
	}

	return p, nil
}

// MarkLessonComplete records completion for (subject, lesson). Idempotent:
// a second completion keeps the original completed_at.
func MarkLessonComplete(db *DB, subject, lessonID string, now time.Time) error {
	query := db.rebind(`
		INSERT INTO lesson_completions (subject, lesson_id, completed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (subject, lesson_id) DO NOTHING
	`)

	if _, err := db.Exec(query, subject, lessonID, now); err != nil {
		return fmt.Errorf("failed to mark lesson complete: %w", err)
	}

	return nil
}

// IsLessonComplete reports whether the subject has completed the lesson.
func IsLessonComplete(db *DB, subject, lessonID string) (bool, error) {
	query := db.rebind(`
		SELECT 1 FROM lesson_completions
		WHERE subject = ? AND lesson_id = ?
	`)

	var one int
	err := db.QueryRow(query, subject, lessonID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check lesson completion: %w", err)
	}

	return true, nil
}
