package utils

import (
	"context"
	"log/slog"
	"time"

	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/storage"
)

// purgeRetention is how long EXPIRED/FAILED session rows are kept around for
// status queries before the sweeper deletes them.
const purgeRetention = 72 * time.Hour

// StartCleanupWorker runs a background loop that expires stale upload
// sessions, removes their chunks from storage, and purges old terminal rows.
func StartCleanupWorker(ctx context.Context, db *database.DB, backend storage.Backend, intervalMinutes int) {
	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	slog.Info("cleanup worker started", "interval_minutes", intervalMinutes)

	// Run cleanup immediately on start
	RunCleanup(ctx, db, backend)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker shutting down")
			return
		case <-ticker.C:
			RunCleanup(ctx, db, backend)
		}
	}
}

// RunCleanup performs one cleanup sweep.
func RunCleanup(ctx context.Context, db *database.DB, backend storage.Backend) {
	start := time.Now()

	expired, err := database.ExpireStaleSessions(db, start)
	if err != nil {
		slog.Error("session expiry sweep failed", "error", err)
		return
	}

	for _, sessionID := range expired {
		if err := backend.DeleteChunks(ctx, sessionID); err != nil {
			// the purge pass below retries before the row is removed
			slog.Error("failed to delete chunks for expired session",
				"session_id", sessionID, "error", err)
		}
	}

	purgeable, err := database.ListPurgeableSessions(db, start.Add(-purgeRetention))
	if err != nil {
		slog.Error("session purge failed", "error", err)
		return
	}

	// Chunks go before the row: a row with no chunks is harmless, but a
	// chunk directory with no row would never be revisited.
	purged := 0
	for _, sessionID := range purgeable {
		if err := backend.DeleteChunks(ctx, sessionID); err != nil {
			slog.Error("failed to delete chunks for purged session",
				"session_id", sessionID, "error", err)
			continue
		}
		if err := database.DeleteUploadSession(db, sessionID); err != nil {
			slog.Error("failed to purge session row",
				"session_id", sessionID, "error", err)
			continue
		}
		purged++
	}

	duration := time.Since(start)
	if len(expired) > 0 || purged > 0 {
		slog.Info("cleanup completed",
			"expired_sessions", len(expired),
			"purged_sessions", purged,
			"duration", duration,
		)
	} else {
		slog.Debug("cleanup completed", "duration", duration)
	}
}
