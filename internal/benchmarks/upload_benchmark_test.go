package benchmarks

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/handlers"
	"github.com/coursewire/coursewire/internal/middleware"
	"github.com/coursewire/coursewire/internal/models"
	"github.com/coursewire/coursewire/internal/storage/filesystem"
	"github.com/coursewire/coursewire/internal/testutil"
)

// BenchmarkInitiateUpload benchmarks session creation through the handler.
func BenchmarkInitiateUpload(b *testing.B) {
	t := &testing.T{}
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)

	handler := handlers.InitiateUploadHandler(db, cfg)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		// Distinct hashes so every request creates a fresh session
		// instead of resuming the previous one.
		hash := sha256.Sum256([]byte(fmt.Sprintf("file-%d", i)))
		body := fmt.Sprintf(`{"filename":"lecture.mp4","fileSize":2097152,"fileHash":"%s","chunkSize":1048576}`,
			hex.EncodeToString(hash[:]))

		req := httptest.NewRequest("POST", "/api/storage/chunk-upload/initiate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(middleware.WithSubject(req.Context(), "learner-1"))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != 201 {
			b.Fatalf("initiate failed: status = %d", rr.Code)
		}
	}
}

// BenchmarkUploadChunk benchmarks receiving one 64KB chunk through the
// handler, including multipart parsing, hash verification, and storage.
func BenchmarkUploadChunk(b *testing.B) {
	t := &testing.T{}
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)

	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		b.Fatalf("failed to create backend: %v", err)
	}
	handler := handlers.UploadChunkHandler(db, cfg, backend)

	// An oversized session so the benchmark never reaches the final chunk
	// and triggers assembly.
	const chunkSize = 64 * 1024
	now := time.Now().UTC()
	session := &models.UploadSession{
		SessionID:   uuid.New().String(),
		Subject:     "learner-1",
		Filename:    "lecture.mp4",
		FileSize:    1 << 40,
		FileHash:    strings.Repeat("0", 64),
		ChunkSize:   chunkSize,
		TotalChunks: models.TotalChunksFor(1<<40, chunkSize),
		Status:      models.SessionInitiated,
		CreatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	if err := database.CreateUploadSession(db, session); err != nil {
		b.Fatalf("failed to insert session: %v", err)
	}

	chunk := bytes.Repeat([]byte("A"), chunkSize)
	sum := sha256.Sum256(chunk)
	chunkHash := hex.EncodeToString(sum[:])

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		body, contentType := testutil.MultipartChunk(t, session.SessionID, i, chunk, chunkHash)

		req := httptest.NewRequest("POST", "/api/storage/chunk-upload", body)
		req.Header.Set("Content-Type", contentType)
		req = req.WithContext(middleware.WithSubject(req.Context(), "learner-1"))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != 200 {
			b.Fatalf("chunk %d failed: status = %d", i, rr.Code)
		}
	}
}

// BenchmarkAssembleChunks benchmarks concatenating 8 x 256KB chunks into a
// stored object, the hot path of upload finalization.
func BenchmarkAssembleChunks(b *testing.B) {
	t := &testing.T{}
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		b.Fatalf("failed to create backend: %v", err)
	}
	ctx := context.Background()

	const totalChunks = 8
	const chunkSize = 256 * 1024
	sessionID := uuid.New().String()
	chunk := bytes.Repeat([]byte("B"), chunkSize)
	for i := 0; i < totalChunks; i++ {
		if err := backend.SaveChunk(ctx, sessionID, i, bytes.NewReader(chunk), chunkSize); err != nil {
			b.Fatalf("failed to save chunk: %v", err)
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		dest := fmt.Sprintf("objects/bench-%d.mp4", i)
		hash, written, err := backend.AssembleChunks(ctx, sessionID, totalChunks, dest)
		if err != nil {
			b.Fatalf("assembly failed: %v", err)
		}
		if written != totalChunks*chunkSize || hash == "" {
			b.Fatalf("assembled %d bytes, want %d", written, totalChunks*chunkSize)
		}
	}
}

// BenchmarkSaveVideoProgress benchmarks the upsert on the progress hot path.
// Players save every 10 seconds, so this is the most frequent write.
func BenchmarkSaveVideoProgress(b *testing.B) {
	t := &testing.T{}
	db := testutil.SetupTestDB(t)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		err := database.SaveVideoProgress(db, "learner-1", "video-101", float64(i), time.Now().UTC())
		if err != nil {
			b.Fatalf("save failed: %v", err)
		}
	}
}
