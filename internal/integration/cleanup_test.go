package integration

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/models"
	"github.com/coursewire/coursewire/internal/storage/filesystem"
	"github.com/coursewire/coursewire/internal/testutil"
	"github.com/coursewire/coursewire/internal/utils"
)

// TestCleanupSweepExpiresAbandonedSessions covers the sweeper end to end: an
// abandoned session past its expiry is marked EXPIRED and its chunks are
// removed from storage, while a live session is untouched.
func TestCleanupSweepExpiresAbandonedSessions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	ctx := context.Background()

	abandoned := testutil.NewTestSession(t, db, "learner-1", 3*1024, 1024)
	if _, err := db.Exec("UPDATE upload_sessions SET expires_at = ?, uploaded_chunks = 2, status = ? WHERE session_id = ?",
		time.Now().UTC().Add(-2*time.Hour), models.SessionInProgress, abandoned.SessionID); err != nil {
		t.Fatalf("failed to age session: %v", err)
	}
	for i := 0; i < 2; i++ {
		chunk := bytes.Repeat([]byte("a"), 1024)
		if err := backend.SaveChunk(ctx, abandoned.SessionID, i, bytes.NewReader(chunk), 1024); err != nil {
			t.Fatalf("failed to save chunk: %v", err)
		}
	}

	live := testutil.NewTestSession(t, db, "learner-1", 2*1024, 1024)
	if err := backend.SaveChunk(ctx, live.SessionID, 0, bytes.NewReader(bytes.Repeat([]byte("b"), 1024)), 1024); err != nil {
		t.Fatalf("failed to save chunk: %v", err)
	}

	utils.RunCleanup(ctx, db, backend)

	got, err := database.GetUploadSession(db, abandoned.SessionID)
	if err != nil || got == nil {
		t.Fatalf("failed to reload abandoned session: %v", err)
	}
	if got.Status != models.SessionExpired {
		t.Errorf("abandoned status = %q, want %q", got.Status, models.SessionExpired)
	}
	if exists, _, _ := backend.ChunkExists(ctx, abandoned.SessionID, 0); exists {
		t.Error("abandoned session chunks should be deleted")
	}

	kept, err := database.GetUploadSession(db, live.SessionID)
	if err != nil || kept == nil {
		t.Fatalf("failed to reload live session: %v", err)
	}
	if kept.Status == models.SessionExpired {
		t.Error("live session must not be expired")
	}
	if exists, _, _ := backend.ChunkExists(ctx, live.SessionID, 0); !exists {
		t.Error("live session chunks must survive the sweep")
	}
}

// TestCleanupSweepPurgesOldTerminalRows: EXPIRED and FAILED rows older than
// the retention window are removed on a later sweep, chunks first, so a
// session whose chunk deletion failed at expiry time still gets cleaned up.
func TestCleanupSweepPurgesOldTerminalRows(t *testing.T) {
	db := testutil.SetupTestDB(t)
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	ctx := context.Background()

	chunk := bytes.Repeat([]byte("c"), 1024)
	age := func(sessionID, status string, expiresAt time.Time) {
		t.Helper()
		if _, err := db.Exec("UPDATE upload_sessions SET status = ?, expires_at = ? WHERE session_id = ?",
			status, expiresAt, sessionID); err != nil {
			t.Fatalf("failed to age session: %v", err)
		}
	}

	oldExpired := testutil.NewTestSession(t, db, "learner-1", 1024, 1024)
	age(oldExpired.SessionID, models.SessionExpired, time.Now().UTC().Add(-100*time.Hour))
	if err := backend.SaveChunk(ctx, oldExpired.SessionID, 0, bytes.NewReader(chunk), 1024); err != nil {
		t.Fatalf("failed to save chunk: %v", err)
	}

	oldFailed := testutil.NewTestSession(t, db, "learner-1", 1024, 1024)
	age(oldFailed.SessionID, models.SessionFailed, time.Now().UTC().Add(-100*time.Hour))
	if err := backend.SaveChunk(ctx, oldFailed.SessionID, 0, bytes.NewReader(chunk), 1024); err != nil {
		t.Fatalf("failed to save chunk: %v", err)
	}

	recent := testutil.NewTestSession(t, db, "learner-1", 1024, 1024)
	age(recent.SessionID, models.SessionExpired, time.Now().UTC().Add(-2*time.Hour))

	utils.RunCleanup(ctx, db, backend)

	for _, id := range []string{oldExpired.SessionID, oldFailed.SessionID} {
		if got, err := database.GetUploadSession(db, id); err != nil {
			t.Fatalf("query failed: %v", err)
		} else if got != nil {
			t.Errorf("old terminal row %s should be purged", id)
		}
		if exists, _, _ := backend.ChunkExists(ctx, id, 0); exists {
			t.Errorf("chunks for purged session %s should be deleted", id)
		}
	}

	if got, err := database.GetUploadSession(db, recent.SessionID); err != nil {
		t.Fatalf("query failed: %v", err)
	} else if got == nil {
		t.Error("recently expired row must be kept for status queries")
	}
}

// flakyBackend fails chunk deletion on demand so the sweep's retry
// behavior can be observed.
type flakyBackend struct {
	*filesystem.Storage
	failDeleteChunks bool
}

func (b *flakyBackend) DeleteChunks(ctx context.Context, sessionID string) error {
	if b.failDeleteChunks {
		return errors.New("chunk store unavailable")
	}
	return b.Storage.DeleteChunks(ctx, sessionID)
}

// TestCleanupPurgeRetriesFailedChunkDeletion: when chunk deletion fails at
// purge time the row is kept, so the next sweep retries instead of leaving
// the chunk directory orphaned.
func TestCleanupPurgeRetriesFailedChunkDeletion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fs, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	backend := &flakyBackend{Storage: fs, failDeleteChunks: true}
	ctx := context.Background()

	doomed := testutil.NewTestSession(t, db, "learner-1", 1024, 1024)
	if _, err := db.Exec("UPDATE upload_sessions SET status = ?, expires_at = ? WHERE session_id = ?",
		models.SessionExpired, time.Now().UTC().Add(-100*time.Hour), doomed.SessionID); err != nil {
		t.Fatalf("failed to age session: %v", err)
	}
	if err := fs.SaveChunk(ctx, doomed.SessionID, 0, bytes.NewReader(bytes.Repeat([]byte("d"), 1024)), 1024); err != nil {
		t.Fatalf("failed to save chunk: %v", err)
	}

	utils.RunCleanup(ctx, db, backend)

	if got, err := database.GetUploadSession(db, doomed.SessionID); err != nil {
		t.Fatalf("query failed: %v", err)
	} else if got == nil {
		t.Fatal("row must survive until its chunks can be deleted")
	}

	backend.failDeleteChunks = false
	utils.RunCleanup(ctx, db, backend)

	if got, err := database.GetUploadSession(db, doomed.SessionID); err != nil {
		t.Fatalf("query failed: %v", err)
	} else if got != nil {
		t.Error("row should be purged once chunk deletion succeeds")
	}
	if exists, _, _ := fs.ChunkExists(ctx, doomed.SessionID, 0); exists {
		t.Error("chunks should be deleted on the retry sweep")
	}
}

// TestCleanupWorkerStops: the worker exits promptly when its context is
// cancelled.
func TestCleanupWorkerStops(t *testing.T) {
	db := testutil.SetupTestDB(t)
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		utils.StartCleanupWorker(ctx, db, backend, 60)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cleanup worker did not stop on context cancel")
	}
}
