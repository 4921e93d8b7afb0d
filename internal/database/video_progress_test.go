package database_test

import (
	"testing"
	"time"

	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/testutil"
)

func TestVideoProgressUpsert(t *testing.T) {
	db := testutil.SetupTestDB(t)

	got, err := database.GetVideoProgress(db, "learner-1", "video-1")
	if err != nil {
		t.Fatalf("GetVideoProgress failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no progress initially, got %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := database.SaveVideoProgress(db, "learner-1", "video-1", 42.5, now); err != nil {
		t.Fatalf("SaveVideoProgress failed: %v", err)
	}

	got, err = database.GetVideoProgress(db, "learner-1", "video-1")
	if err != nil {
		t.Fatalf("GetVideoProgress failed: %v", err)
	}
	if got == nil || got.LastWatchedTime != 42.5 {
		t.Fatalf("LastWatchedTime = %+v, want 42.5", got)
	}

	// last write wins
	if err := database.SaveVideoProgress(db, "learner-1", "video-1", 17.0, now.Add(time.Minute)); err != nil {
		t.Fatalf("SaveVideoProgress (update) failed: %v", err)
	}

	got, _ = database.GetVideoProgress(db, "learner-1", "video-1")
	if got.LastWatchedTime != 17.0 {
		t.Errorf("LastWatchedTime = %v, want 17.0 after overwrite", got.LastWatchedTime)
	}
}

func TestVideoProgressIsolatedPerSubject(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now().UTC()

	if err := database.SaveVideoProgress(db, "learner-1", "video-1", 30, now); err != nil {
		t.Fatalf("SaveVideoProgress failed: %v", err)
	}

	got, err := database.GetVideoProgress(db, "learner-2", "video-1")
	if err != nil {
		t.Fatalf("GetVideoProgress failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected no progress for other subject, got %+v", got)
	}
}

func TestLessonCompletionIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now().UTC()

	done, err := database.IsLessonComplete(db, "learner-1", "lesson-1")
	if err != nil {
		t.Fatalf("IsLessonComplete failed: %v", err)
	}
	if done {
		t.Fatal("lesson reported complete before any completion")
	}

	if err := database.MarkLessonComplete(db, "learner-1", "lesson-1", now); err != nil {
		t.Fatalf("MarkLessonComplete failed: %v", err)
	}
	// repeat completion must not error
	if err := database.MarkLessonComplete(db, "learner-1", "lesson-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("MarkLessonComplete (repeat) failed: %v", err)
	}

	done, err = database.IsLessonComplete(db, "learner-1", "lesson-1")
	if err != nil {
		t.Fatalf("IsLessonComplete failed: %v", err)
	}
	if !done {
		t.Error("lesson not reported complete after MarkLessonComplete")
	}
}
