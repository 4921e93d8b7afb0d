// Package testutil provides shared fixtures for handler and database tests.
package testutil

import (
	"bytes"
	"mime/multipart"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coursewire/coursewire/internal/config"
	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/models"
)

// SetupTestDB creates an in-memory SQLite database for testing.
// The database is automatically closed when the test completes.
func SetupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// Each pooled connection gets its own separate :memory: database, so
	// force a single connection to make all queries see the same schema.
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SetupTestConfig creates a test configuration with a temporary media dir.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Port:                   "8080",
		LogLevel:               "info",
		DBDriver:               "sqlite",
		DBPath:                 ":memory:",
		StorageBackend:         "filesystem",
		MediaDir:               t.TempDir(),
		MaxFileSize:            100 * 1024 * 1024,
		DefaultChunkSize:       1048576,
		MinChunkSize:           1024, // small chunks keep test uploads cheap
		MaxChunkSize:           10485760,
		MaxChunksPerUpload:     10000,
		SessionExpiryHours:     24,
		CleanupIntervalMinutes: 60,
	}
}

// NewTestSession inserts an upload session with sensible defaults and
// returns it. Fields can be adjusted afterwards with direct DB calls.
func NewTestSession(t *testing.T, db *database.DB, subject string, fileSize, chunkSize int64) *models.UploadSession {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	s := &models.UploadSession{
		SessionID:   uuid.New().String(),
		Subject:     subject,
		Filename:    "lecture.mp4",
		FileSize:    fileSize,
		FileHash:    "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		ChunkSize:   chunkSize,
		TotalChunks: models.TotalChunksFor(fileSize, chunkSize),
		Status:      models.SessionInitiated,
		CreatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	if err := database.CreateUploadSession(db, s); err != nil {
		t.Fatalf("failed to insert test session: %v", err)
	}

	return s
}

// MultipartChunk builds a multipart body carrying one chunk upload request.
// Returns the body and the content type for the request.
func MultipartChunk(t *testing.T, sessionID string, chunkNumber int, data []byte, chunkHash string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("sessionId", sessionID); err != nil {
		t.Fatalf("failed to write sessionId field: %v", err)
	}
	if err := w.WriteField("chunkNumber", strconv.Itoa(chunkNumber)); err != nil {
		t.Fatalf("failed to write chunkNumber field: %v", err)
	}
	if chunkHash != "" {
		if err := w.WriteField("chunkHash", chunkHash); err != nil {
			t.Fatalf("failed to write chunkHash field: %v", err)
		}
	}

	part, err := w.CreateFormFile("chunk", "chunk")
	if err != nil {
		t.Fatalf("failed to create chunk form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write chunk data: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	return &buf, w.FormDataContentType()
}
