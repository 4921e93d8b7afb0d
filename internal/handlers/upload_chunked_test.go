package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/middleware"
	"github.com/coursewire/coursewire/internal/models"
	"github.com/coursewire/coursewire/internal/storage"
	"github.com/coursewire/coursewire/internal/storage/filesystem"
	"github.com/coursewire/coursewire/internal/testutil"
)

const testSubject = "learner-1"

// authedRequest builds a request with an authenticated subject on its context.
func authedRequest(t *testing.T, method, target string, body io.Reader) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(middleware.WithSubject(req.Context(), testSubject))
}

// decodeEnvelope unwraps {data: T, success: bool} into dst.
func decodeEnvelope(t *testing.T, body *bytes.Buffer, dst any) {
	t.Helper()
	var env struct {
		Data    json.RawMessage `json:"data"`
		Success bool            `json:"success"`
	}
	if err := json.Unmarshal(body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if !env.Success {
		t.Fatalf("expected success=true, body: %s", body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			t.Fatalf("failed to decode envelope data: %v", err)
		}
	}
}

func errorCode(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	var resp struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Success {
		t.Fatalf("expected success=false, body: %s", body.String())
	}
	return resp.Code
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestInitiateUploadHandler(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)
	handler := InitiateUploadHandler(db, cfg)

	validHash := strings.Repeat("ab", 32)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "valid request",
			body:       fmt.Sprintf(`{"filename":"lecture.mp4","fileSize":2560,"fileHash":"%s","chunkSize":1024}`, validHash),
			wantStatus: http.StatusCreated,
		},
		{
			name:       "default chunk size",
			body:       fmt.Sprintf(`{"filename":"intro.mp4","fileSize":500,"fileHash":"%s"}`, validHash),
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid json",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_JSON",
		},
		{
			name:       "missing filename",
			body:       fmt.Sprintf(`{"fileSize":2560,"fileHash":"%s"}`, validHash),
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_FILENAME",
		},
		{
			name:       "zero file size",
			body:       fmt.Sprintf(`{"filename":"a.mp4","fileSize":0,"fileHash":"%s"}`, validHash),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_FILE_SIZE",
		},
		{
			name:       "file too large",
			body:       fmt.Sprintf(`{"filename":"a.mp4","fileSize":999999999999,"fileHash":"%s"}`, validHash),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "FILE_TOO_LARGE",
		},
		{
			name:       "chunk size too small",
			body:       fmt.Sprintf(`{"filename":"a.mp4","fileSize":2560,"fileHash":"%s","chunkSize":16}`, validHash),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_CHUNK_SIZE",
		},
		{
			name:       "invalid file hash",
			body:       `{"filename":"a.mp4","fileSize":2560,"fileHash":"nothex"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_FILE_HASH",
		},
		{
			name:       "too many chunks",
			body:       fmt.Sprintf(`{"filename":"a.mp4","fileSize":20480000,"fileHash":"%s","chunkSize":1024}`, validHash),
			wantStatus: http.StatusBadRequest,
			wantCode:   "TOO_MANY_CHUNKS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload/initiate", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				if code := errorCode(t, w.Body); code != tt.wantCode {
					t.Errorf("error code = %q, want %q", code, tt.wantCode)
				}
			}
		})
	}

	t.Run("valid request fields", func(t *testing.T) {
		body := fmt.Sprintf(`{"filename":"deep-dive.mp4","fileSize":2560,"fileHash":"%s","chunkSize":1024}`, strings.Repeat("cd", 32))
		req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload/initiate", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
		}
		var dto models.UploadSessionDto
		decodeEnvelope(t, w.Body, &dto)
		if dto.SessionID == "" {
			t.Error("expected a session id")
		}
		if dto.TotalChunks != 3 {
			t.Errorf("totalChunks = %d, want 3", dto.TotalChunks)
		}
		if dto.Status != models.SessionInitiated {
			t.Errorf("status = %q, want %q", dto.Status, models.SessionInitiated)
		}
		if dto.UploadedChunks != 0 {
			t.Errorf("uploadedChunks = %d, want 0", dto.UploadedChunks)
		}
	})
}

func TestInitiateResumesByHash(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)
	handler := InitiateUploadHandler(db, cfg)

	hash := strings.Repeat("ef", 32)
	body := fmt.Sprintf(`{"filename":"lecture.mp4","fileSize":2560,"fileHash":"%s","chunkSize":1024}`, hash)

	req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload/initiate", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("initial initiate status = %d, body: %s", w.Code, w.Body.String())
	}
	var first models.UploadSessionDto
	decodeEnvelope(t, w.Body, &first)

	// simulate an interrupted upload with one chunk already landed
	if err := database.RecordChunkReceived(db, first.SessionID, 0); err != nil {
		t.Fatalf("failed to record chunk: %v", err)
	}

	req = authedRequest(t, http.MethodPost, "/api/storage/chunk-upload/initiate", strings.NewReader(body))
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("resume initiate status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	var resumed models.UploadSessionDto
	decodeEnvelope(t, w.Body, &resumed)

	if resumed.SessionID != first.SessionID {
		t.Errorf("resumed session id = %q, want original %q", resumed.SessionID, first.SessionID)
	}
	if resumed.UploadedChunks != 1 {
		t.Errorf("resumed uploadedChunks = %d, want 1", resumed.UploadedChunks)
	}

	// a different subject with the same hash must get a fresh session
	otherReq := httptest.NewRequest(http.MethodPost, "/api/storage/chunk-upload/initiate", strings.NewReader(body))
	otherReq = otherReq.WithContext(middleware.WithSubject(otherReq.Context(), "learner-2"))
	w = httptest.NewRecorder()
	handler(w, otherReq)
	if w.Code != http.StatusCreated {
		t.Fatalf("other subject initiate status = %d, want 201", w.Code)
	}
	var other models.UploadSessionDto
	decodeEnvelope(t, w.Body, &other)
	if other.SessionID == first.SessionID {
		t.Error("other subject must not resume someone else's session")
	}
}

// TestChunkedUploadFlow walks a full upload: initiate, three sequential
// chunks, assembly on the last one, and verifies the stored object.
func TestChunkedUploadFlow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	content := make([]byte, 2560)
	if _, err := rand.Read(content); err != nil {
		t.Fatalf("failed to generate content: %v", err)
	}
	fileHash := sha256Hex(content)

	initiate := InitiateUploadHandler(db, cfg)
	upload := UploadChunkHandler(db, cfg, backend)

	body := fmt.Sprintf(`{"filename":"lecture.mp4","fileSize":2560,"fileHash":"%s","chunkSize":1024}`, fileHash)
	req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload/initiate", strings.NewReader(body))
	w := httptest.NewRecorder()
	initiate(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("initiate status = %d, body: %s", w.Code, w.Body.String())
	}
	var session models.UploadSessionDto
	decodeEnvelope(t, w.Body, &session)

	chunks := [][]byte{content[0:1024], content[1024:2048], content[2048:2560]}
	for i, chunk := range chunks {
		buf, contentType := testutil.MultipartChunk(t, session.SessionID, i, chunk, sha256Hex(chunk))
		req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload", buf)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		upload(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("chunk %d status = %d, body: %s", i, w.Code, w.Body.String())
		}
		var dto models.UploadSessionDto
		decodeEnvelope(t, w.Body, &dto)
		if dto.UploadedChunks != i+1 {
			t.Errorf("chunk %d: uploadedChunks = %d, want %d", i, dto.UploadedChunks, i+1)
		}
		if i < len(chunks)-1 && dto.Status != models.SessionInProgress {
			t.Errorf("chunk %d: status = %q, want %q", i, dto.Status, models.SessionInProgress)
		}
		if i == len(chunks)-1 {
			if dto.Status != models.SessionCompleted {
				t.Errorf("final status = %q, want %q", dto.Status, models.SessionCompleted)
			}
			if dto.ProgressPercentage != 100 {
				t.Errorf("final progress = %v, want 100", dto.ProgressPercentage)
			}
		}
	}

	stored, err := database.GetUploadSession(db, session.SessionID)
	if err != nil || stored == nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if stored.Status != models.SessionCompleted {
		t.Errorf("stored status = %q, want %q", stored.Status, models.SessionCompleted)
	}
	if stored.StoredName == "" {
		t.Fatal("expected a stored object name")
	}

	rc, err := backend.Retrieve(req.Context(), stored.StoredName)
	if err != nil {
		t.Fatalf("failed to retrieve assembled object: %v", err)
	}
	defer rc.Close()
	assembled, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to read assembled object: %v", err)
	}
	if !bytes.Equal(assembled, content) {
		t.Error("assembled object does not match uploaded content")
	}

	// chunks are removed after a successful assembly
	exists, _, err := backend.ChunkExists(req.Context(), session.SessionID, 0)
	if err != nil {
		t.Fatalf("chunk existence check failed: %v", err)
	}
	if exists {
		t.Error("expected chunks to be deleted after assembly")
	}
}

func TestUploadChunkOrdering(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	upload := UploadChunkHandler(db, cfg, backend)

	session := testutil.NewTestSession(t, db, testSubject, 2560, 1024)
	chunk := bytes.Repeat([]byte("x"), 1024)

	send := func(chunkNumber int) *httptest.ResponseRecorder {
		buf, contentType := testutil.MultipartChunk(t, session.SessionID, chunkNumber, chunk, "")
		req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload", buf)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		upload(w, req)
		return w
	}

	// chunk 1 before chunk 0 is out of order
	if w := send(1); w.Code != http.StatusConflict {
		t.Fatalf("out-of-order chunk status = %d, want 409, body: %s", w.Code, w.Body.String())
	} else if code := errorCode(t, w.Body); code != "CHUNK_OUT_OF_ORDER" {
		t.Errorf("error code = %q, want CHUNK_OUT_OF_ORDER", code)
	}

	if w := send(0); w.Code != http.StatusOK {
		t.Fatalf("chunk 0 status = %d, body: %s", w.Code, w.Body.String())
	}

	// re-sending the chunk that just landed is answered idempotently
	w := send(0)
	if w.Code != http.StatusOK {
		t.Fatalf("re-sent chunk status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	var dto models.UploadSessionDto
	decodeEnvelope(t, w.Body, &dto)
	if dto.UploadedChunks != 1 {
		t.Errorf("uploadedChunks after re-send = %d, want 1", dto.UploadedChunks)
	}

	// skipping ahead is rejected
	if w := send(2); w.Code != http.StatusConflict {
		t.Errorf("skipped chunk status = %d, want 409", w.Code)
	}
}

func TestUploadChunkValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	upload := UploadChunkHandler(db, cfg, backend)

	session := testutil.NewTestSession(t, db, testSubject, 2560, 1024)

	t.Run("wrong chunk size", func(t *testing.T) {
		buf, contentType := testutil.MultipartChunk(t, session.SessionID, 0, []byte("short"), "")
		req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload", buf)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		upload(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if code := errorCode(t, w.Body); code != "CHUNK_SIZE_MISMATCH" {
			t.Errorf("error code = %q, want CHUNK_SIZE_MISMATCH", code)
		}
	})

	t.Run("chunk hash mismatch", func(t *testing.T) {
		chunk := bytes.Repeat([]byte("y"), 1024)
		buf, contentType := testutil.MultipartChunk(t, session.SessionID, 0, chunk, strings.Repeat("00", 32))
		req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload", buf)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		upload(w, req)

		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", w.Code)
		}
		if code := errorCode(t, w.Body); code != "CHUNK_HASH_MISMATCH" {
			t.Errorf("error code = %q, want CHUNK_HASH_MISMATCH", code)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		buf, contentType := testutil.MultipartChunk(t, "b2c3a1d4-0000-0000-0000-000000000000", 0, bytes.Repeat([]byte("z"), 1024), "")
		req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload", buf)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		upload(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("another subject's session", func(t *testing.T) {
		buf, contentType := testutil.MultipartChunk(t, session.SessionID, 0, bytes.Repeat([]byte("z"), 1024), "")
		req := httptest.NewRequest(http.MethodPost, "/api/storage/chunk-upload", buf)
		req = req.WithContext(middleware.WithSubject(req.Context(), "learner-2"))
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		upload(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestUploadChunkExpiredSession(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	upload := UploadChunkHandler(db, cfg, backend)

	session := testutil.NewTestSession(t, db, testSubject, 2560, 1024)
	_, err = db.Exec("UPDATE upload_sessions SET expires_at = ? WHERE session_id = ?",
		time.Now().UTC().Add(-time.Hour), session.SessionID)
	if err != nil {
		t.Fatalf("failed to expire session: %v", err)
	}

	buf, contentType := testutil.MultipartChunk(t, session.SessionID, 0, bytes.Repeat([]byte("x"), 1024), "")
	req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload", buf)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	upload(w, req)

	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410, body: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w.Body); code != "SESSION_EXPIRED" {
		t.Errorf("error code = %q, want SESSION_EXPIRED", code)
	}
}

// TestUploadFileHashMismatch uploads chunks whose assembled digest does not
// match the declared fileHash; the session must end up FAILED with no object.
func TestUploadFileHashMismatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	upload := UploadChunkHandler(db, cfg, backend)

	// NewTestSession uses a placeholder hash the content will not match
	session := testutil.NewTestSession(t, db, testSubject, 1024, 1024)

	buf, contentType := testutil.MultipartChunk(t, session.SessionID, 0, bytes.Repeat([]byte("x"), 1024), "")
	req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload", buf)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	upload(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w.Body); code != "FILE_HASH_MISMATCH" {
		t.Errorf("error code = %q, want FILE_HASH_MISMATCH", code)
	}

	stored, err := database.GetUploadSession(db, session.SessionID)
	if err != nil || stored == nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if stored.Status != models.SessionFailed {
		t.Errorf("stored status = %q, want %q", stored.Status, models.SessionFailed)
	}
}

func TestUploadStatusHandler(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := UploadStatusHandler(db)

	session := testutil.NewTestSession(t, db, testSubject, 2560, 1024)

	t.Run("known session", func(t *testing.T) {
		req := authedRequest(t, http.MethodGet, "/api/storage/chunk-upload/status/"+session.SessionID, nil)
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
		}
		var dto models.UploadSessionDto
		decodeEnvelope(t, w.Body, &dto)
		if dto.SessionID != session.SessionID {
			t.Errorf("sessionId = %q, want %q", dto.SessionID, session.SessionID)
		}
	})

	t.Run("invalid session id", func(t *testing.T) {
		req := authedRequest(t, http.MethodGet, "/api/storage/chunk-upload/status/not-a-uuid", nil)
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("another subject's session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/storage/chunk-upload/status/"+session.SessionID, nil)
		req = req.WithContext(middleware.WithSubject(req.Context(), "learner-2"))
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("expired session reports EXPIRED", func(t *testing.T) {
		stale := testutil.NewTestSession(t, db, testSubject, 2560, 1024)
		if _, err := db.Exec("UPDATE upload_sessions SET expires_at = ? WHERE session_id = ?",
			time.Now().UTC().Add(-time.Hour), stale.SessionID); err != nil {
			t.Fatalf("failed to expire session: %v", err)
		}

		req := authedRequest(t, http.MethodGet, "/api/storage/chunk-upload/status/"+stale.SessionID, nil)
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
		}
		var dto models.UploadSessionDto
		decodeEnvelope(t, w.Body, &dto)
		if dto.Status != models.SessionExpired {
			t.Errorf("status = %q, want %q", dto.Status, models.SessionExpired)
		}
	})
}

func TestUploadCancelHandler(t *testing.T) {
	db := testutil.SetupTestDB(t)
	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	handler := UploadCancelHandler(db, backend)

	session := testutil.NewTestSession(t, db, testSubject, 2560, 1024)
	if err := backend.SaveChunk(t.Context(), session.SessionID, 0, bytes.NewReader(bytes.Repeat([]byte("x"), 1024)), 1024); err != nil {
		t.Fatalf("failed to save chunk: %v", err)
	}

	req := authedRequest(t, http.MethodDelete, "/api/storage/chunk-upload/cancel/"+session.SessionID, nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	stored, err := database.GetUploadSession(db, session.SessionID)
	if err != nil {
		t.Fatalf("failed to query session: %v", err)
	}
	if stored != nil {
		t.Error("expected session row to be deleted")
	}

	exists, _, err := backend.ChunkExists(t.Context(), session.SessionID, 0)
	if err != nil {
		t.Fatalf("chunk existence check failed: %v", err)
	}
	if exists {
		t.Error("expected chunks to be deleted on cancel")
	}

	// cancelling twice is a 404
	w = httptest.NewRecorder()
	handler(w, authedRequest(t, http.MethodDelete, "/api/storage/chunk-upload/cancel/"+session.SessionID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second cancel status = %d, want 404", w.Code)
	}
}

// brokenAssemblyBackend fails assembly so finalize error handling can be
// exercised.
type brokenAssemblyBackend struct {
	storage.Backend
}

func (b *brokenAssemblyBackend) AssembleChunks(ctx context.Context, sessionID string, totalChunks int, destName string) (string, int64, error) {
	return "", 0, errors.New("chunk store offline")
}

// TestUploadFinalizeErrorFailsSession: when the final chunk is in but
// assembly errors, the session must go FAILED rather than sit IN_PROGRESS
// with all chunks uploaded, where a resuming client would have nothing left
// to send.
func TestUploadFinalizeErrorFailsSession(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.SetupTestConfig(t)
	fs, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	backend := &brokenAssemblyBackend{Backend: fs}

	content := make([]byte, 2048)
	if _, err := rand.Read(content); err != nil {
		t.Fatalf("failed to generate content: %v", err)
	}
	fileHash := sha256Hex(content)

	initiate := InitiateUploadHandler(db, cfg)
	upload := UploadChunkHandler(db, cfg, backend)

	body := fmt.Sprintf(`{"filename":"lecture.mp4","fileSize":2048,"fileHash":"%s","chunkSize":1024}`, fileHash)
	w := httptest.NewRecorder()
	initiate(w, authedRequest(t, http.MethodPost, "/api/storage/chunk-upload/initiate", strings.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("initiate status = %d, body: %s", w.Code, w.Body.String())
	}
	var session models.UploadSessionDto
	decodeEnvelope(t, w.Body, &session)

	chunks := [][]byte{content[0:1024], content[1024:2048]}
	for i, chunk := range chunks {
		buf, contentType := testutil.MultipartChunk(t, session.SessionID, i, chunk, sha256Hex(chunk))
		req := authedRequest(t, http.MethodPost, "/api/storage/chunk-upload", buf)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		upload(w, req)

		if i < len(chunks)-1 {
			if w.Code != http.StatusOK {
				t.Fatalf("chunk %d status = %d, body: %s", i, w.Code, w.Body.String())
			}
			continue
		}
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("final chunk status = %d, want 500, body: %s", w.Code, w.Body.String())
		}
		if code := errorCode(t, w.Body); code != "ASSEMBLY_ERROR" {
			t.Errorf("error code = %q, want ASSEMBLY_ERROR", code)
		}
	}

	stored, err := database.GetUploadSession(db, session.SessionID)
	if err != nil || stored == nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if stored.Status != models.SessionFailed {
		t.Errorf("stored status = %q, want %q", stored.Status, models.SessionFailed)
	}

	// a terminal session is skipped by resume-by-hash; the retry gets a
	// fresh session
	w = httptest.NewRecorder()
	initiate(w, authedRequest(t, http.MethodPost, "/api/storage/chunk-upload/initiate", strings.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("retry initiate status = %d, body: %s", w.Code, w.Body.String())
	}
	var fresh models.UploadSessionDto
	decodeEnvelope(t, w.Body, &fresh)
	if fresh.SessionID == session.SessionID {
		t.Error("retry initiate returned the failed session")
	}
}
