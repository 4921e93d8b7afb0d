package handlers

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/coursewire/coursewire/internal/config"
	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/metrics"
	"github.com/coursewire/coursewire/internal/middleware"
	"github.com/coursewire/coursewire/internal/models"
	"github.com/coursewire/coursewire/internal/storage"
	"github.com/coursewire/coursewire/internal/utils"
)

// sniffLen is how many leading bytes of the assembled object are read for
// MIME detection.
const sniffLen = 3072

// InitiateUploadHandler handles POST /api/storage/chunk-upload/initiate
func InitiateUploadHandler(db *database.DB, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		subject := middleware.Subject(r.Context())

		var req models.InitiateRequest
		if err := decodeJSON(r, &req); err != nil {
			sendError(w, "Invalid JSON request body", "INVALID_JSON", http.StatusBadRequest)
			return
		}

		if req.Filename == "" {
			sendError(w, "Filename is required", "MISSING_FILENAME", http.StatusBadRequest)
			return
		}
		req.Filename = utils.SanitizeFilename(req.Filename)

		if req.FileSize <= 0 {
			sendError(w, "File size must be positive", "INVALID_FILE_SIZE", http.StatusBadRequest)
			return
		}
		if req.FileSize > cfg.MaxFileSize {
			sendError(w,
				fmt.Sprintf("File size exceeds maximum of %d bytes", cfg.MaxFileSize),
				"FILE_TOO_LARGE",
				http.StatusRequestEntityTooLarge,
			)
			return
		}

		if req.ChunkSize == 0 {
			req.ChunkSize = cfg.DefaultChunkSize
		}
		if req.ChunkSize < cfg.MinChunkSize || req.ChunkSize > cfg.MaxChunkSize {
			sendError(w,
				fmt.Sprintf("Chunk size must be between %d and %d bytes", cfg.MinChunkSize, cfg.MaxChunkSize),
				"INVALID_CHUNK_SIZE",
				http.StatusBadRequest,
			)
			return
		}

		if !utils.IsValidSHA256Hex(req.FileHash) {
			sendError(w, "File hash must be a 64-character hex SHA-256 digest", "INVALID_FILE_HASH", http.StatusBadRequest)
			return
		}

		totalChunks := models.TotalChunksFor(req.FileSize, req.ChunkSize)
		if totalChunks > cfg.MaxChunksPerUpload {
			sendError(w,
				fmt.Sprintf("File requires too many chunks (maximum %d). Try increasing chunk size.", cfg.MaxChunksPerUpload),
				"TOO_MANY_CHUNKS",
				http.StatusBadRequest,
			)
			return
		}

		now := time.Now().UTC()

		// Resume by hash: an interrupted upload of the same content gets its
		// existing session back instead of a fresh one.
		existing, err := database.FindResumableSession(db, subject, strings.ToLower(req.FileHash), req.FileSize, now)
		if err != nil {
			slog.Error("failed to check for resumable session", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if existing != nil && existing.ChunkSize == req.ChunkSize {
			metrics.UploadSessionsTotal.WithLabelValues("resumed").Inc()
			slog.Info("chunked upload resumed",
				"session_id", existing.SessionID,
				"filename", existing.Filename,
				"uploaded_chunks", existing.UploadedChunks,
				"total_chunks", existing.TotalChunks,
				"client_ip", getClientIP(r),
			)
			sendData(w, existing.Dto(now), http.StatusOK)
			return
		}

		session := &models.UploadSession{
			SessionID:   uuid.New().String(),
			Subject:     subject,
			Filename:    req.Filename,
			FileSize:    req.FileSize,
			FileHash:    strings.ToLower(req.FileHash),
			ChunkSize:   req.ChunkSize,
			TotalChunks: totalChunks,
			MimeType:    req.MimeType,
			Status:      models.SessionInitiated,
			CreatedAt:   now,
			ExpiresAt:   now.Add(time.Duration(cfg.SessionExpiryHours) * time.Hour),
		}

		if err := database.CreateUploadSession(db, session); err != nil {
			slog.Error("failed to create upload session", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		metrics.UploadSessionsTotal.WithLabelValues("initiated").Inc()
		slog.Info("chunked upload initiated",
			"session_id", session.SessionID,
			"filename", session.Filename,
			"file_size", session.FileSize,
			"chunk_size", session.ChunkSize,
			"total_chunks", session.TotalChunks,
			"client_ip", getClientIP(r),
		)

		sendData(w, session.Dto(now), http.StatusCreated)
	}
}

// UploadChunkHandler handles POST /api/storage/chunk-upload
// Body is multipart form data: chunk (binary), sessionId, chunkNumber, chunkHash?
func UploadChunkHandler(db *database.DB, cfg *config.Config, backend storage.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxChunkSize+4096) // chunk + form overhead
		if err := r.ParseMultipartForm(cfg.MaxChunkSize + 4096); err != nil {
			sendError(w, "Chunk too large or invalid form data", "CHUNK_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}

		sessionID := r.FormValue("sessionId")
		if _, err := uuid.Parse(sessionID); err != nil {
			sendError(w, "Invalid sessionId", "INVALID_SESSION_ID", http.StatusBadRequest)
			return
		}

		chunkNumber, err := strconv.Atoi(r.FormValue("chunkNumber"))
		if err != nil || chunkNumber < 0 {
			sendError(w, "Invalid chunkNumber", "INVALID_CHUNK_NUMBER", http.StatusBadRequest)
			return
		}

		session, err := database.GetUploadSession(db, sessionID)
		if err != nil {
			slog.Error("failed to get upload session", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if session == nil || session.Subject != middleware.Subject(r.Context()) {
			sendError(w, "Upload session not found", "SESSION_NOT_FOUND", http.StatusNotFound)
			return
		}

		now := time.Now().UTC()
		if session.Status == models.SessionCompleted {
			sendError(w, "Upload already completed", "SESSION_COMPLETED", http.StatusConflict)
			return
		}
		if session.Terminal() || now.After(session.ExpiresAt) {
			sendError(w, "Upload session expired", "SESSION_EXPIRED", http.StatusGone)
			return
		}

		if chunkNumber >= session.TotalChunks {
			sendError(w,
				fmt.Sprintf("Chunk number %d exceeds total chunks %d", chunkNumber, session.TotalChunks),
				"CHUNK_NUMBER_OUT_OF_RANGE",
				http.StatusBadRequest,
			)
			return
		}

		// Chunks arrive strictly in order. A re-send of the previous chunk is
		// answered idempotently; anything else out of order is rejected.
		switch {
		case chunkNumber == session.UploadedChunks:
			// the expected next chunk
		case chunkNumber == session.UploadedChunks-1:
			slog.Debug("chunk re-sent (idempotent)",
				"session_id", sessionID,
				"chunk_number", chunkNumber,
			)
			sendData(w, session.Dto(now), http.StatusOK)
			return
		default:
			sendError(w,
				fmt.Sprintf("Chunk %d out of order: next expected chunk is %d", chunkNumber, session.UploadedChunks),
				"CHUNK_OUT_OF_ORDER",
				http.StatusConflict,
			)
			return
		}

		chunkFile, _, err := r.FormFile("chunk")
		if err != nil {
			sendError(w, "No chunk file provided", "NO_CHUNK", http.StatusBadRequest)
			return
		}
		defer chunkFile.Close()

		chunkData, err := io.ReadAll(chunkFile)
		if err != nil {
			slog.Error("failed to read chunk data", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		chunkSize := int64(len(chunkData))
		if want := expectedChunkSize(session, chunkNumber); chunkSize != want {
			sendError(w,
				fmt.Sprintf("Chunk size mismatch: expected %d, got %d", want, chunkSize),
				"CHUNK_SIZE_MISMATCH",
				http.StatusBadRequest,
			)
			return
		}

		if chunkHash := r.FormValue("chunkHash"); chunkHash != "" {
			if !utils.IsValidSHA256Hex(chunkHash) {
				sendError(w, "Invalid chunkHash", "INVALID_CHUNK_HASH", http.StatusBadRequest)
				return
			}
			if !strings.EqualFold(utils.HashBytes(chunkData), chunkHash) {
				sendError(w, "Chunk hash mismatch", "CHUNK_HASH_MISMATCH", http.StatusUnprocessableEntity)
				return
			}
		}

		if err := backend.SaveChunk(r.Context(), sessionID, chunkNumber, bytes.NewReader(chunkData), chunkSize); err != nil {
			slog.Error("failed to save chunk", "error", err, "session_id", sessionID)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		if err := database.RecordChunkReceived(db, sessionID, chunkNumber); err != nil {
			slog.Error("failed to record chunk", "error", err, "session_id", sessionID)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		session.UploadedChunks = chunkNumber + 1
		session.Status = models.SessionInProgress

		metrics.ChunksReceivedTotal.Inc()
		metrics.UploadBytesTotal.Add(float64(chunkSize))
		metrics.ChunkSizeBytes.Observe(float64(chunkSize))

		// Last chunk: assemble, verify the whole-file digest, detect MIME.
		if session.UploadedChunks == session.TotalChunks {
			if err := finalizeUpload(r, db, backend, session); err != nil {
				slog.Error("failed to finalize upload", "error", err, "session_id", sessionID)
				// all chunks are in; an IN_PROGRESS row here would strand
				// resume-by-hash clients with nothing left to send
				if err := database.SetSessionStatus(db, sessionID, models.SessionFailed, "", ""); err != nil {
					slog.Error("failed to mark session failed", "error", err, "session_id", sessionID)
				}
				metrics.UploadSessionsTotal.WithLabelValues("failed").Inc()
				sendError(w, "Failed to assemble uploaded file", "ASSEMBLY_ERROR", http.StatusInternalServerError)
				return
			}
			if session.Status == models.SessionFailed {
				metrics.UploadSessionsTotal.WithLabelValues("failed").Inc()
				sendError(w, "Uploaded content does not match the declared file hash", "FILE_HASH_MISMATCH", http.StatusUnprocessableEntity)
				return
			}
			metrics.UploadSessionsTotal.WithLabelValues("completed").Inc()
		}

		slog.Debug("chunk uploaded",
			"session_id", sessionID,
			"chunk_number", chunkNumber,
			"chunk_size", chunkSize,
			"uploaded_chunks", session.UploadedChunks,
			"total_chunks", session.TotalChunks,
		)

		sendData(w, session.Dto(now), http.StatusOK)
	}
}

// expectedChunkSize returns the exact byte count chunk chunkNumber must have.
func expectedChunkSize(s *models.UploadSession, chunkNumber int) int64 {
	if chunkNumber == s.TotalChunks-1 {
		if rem := s.FileSize % s.ChunkSize; rem != 0 {
			return rem
		}
	}
	return s.ChunkSize
}

// finalizeUpload assembles the chunks into the final object, verifies the
// whole-file digest, detects the MIME type, and updates the session. On a
// digest mismatch the session is marked FAILED and the object removed.
func finalizeUpload(r *http.Request, db *database.DB, backend storage.Backend, session *models.UploadSession) error {
	start := time.Now()
	storedName := "objects/" + uuid.New().String() + filepath.Ext(session.Filename)

	hash, written, err := backend.AssembleChunks(r.Context(), session.SessionID, session.TotalChunks, storedName)
	if err != nil {
		return err
	}
	metrics.AssemblyDuration.Observe(time.Since(start).Seconds())

	if written != session.FileSize || !strings.EqualFold(hash, session.FileHash) {
		backend.Delete(r.Context(), storedName)
		if err := database.SetSessionStatus(db, session.SessionID, models.SessionFailed, "", ""); err != nil {
			return err
		}
		session.Status = models.SessionFailed
		slog.Warn("assembled file failed integrity check",
			"session_id", session.SessionID,
			"expected_size", session.FileSize,
			"written", written,
		)
		// chunks are kept for inspection until the sweeper purges the session
		return nil
	}

	mimeType := session.MimeType
	if detected, err := detectMime(r, backend, storedName); err == nil && detected != "" {
		mimeType = detected
	}

	if err := database.SetSessionStatus(db, session.SessionID, models.SessionCompleted, mimeType, storedName); err != nil {
		return err
	}
	session.Status = models.SessionCompleted
	session.MimeType = mimeType
	session.StoredName = storedName

	if err := backend.DeleteChunks(r.Context(), session.SessionID); err != nil {
		// not fatal; the assembled object is already stored
		slog.Error("failed to delete chunks after assembly", "error", err, "session_id", session.SessionID)
	}

	slog.Info("chunked upload completed",
		"session_id", session.SessionID,
		"filename", session.Filename,
		"size", session.FileSize,
		"mime_type", mimeType,
		"total_chunks", session.TotalChunks,
		"duration", time.Since(start),
	)

	return nil
}

// detectMime sniffs the stored object's magic bytes.
func detectMime(r *http.Request, backend storage.Backend, storedName string) (string, error) {
	rc, err := backend.Retrieve(r.Context(), storedName)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return mimetype.Detect(head[:n]).String(), nil
}

// UploadStatusHandler handles GET /api/storage/chunk-upload/status/{sessionId}
func UploadStatusHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		sessionID := strings.TrimPrefix(r.URL.Path, "/api/storage/chunk-upload/status/")
		if _, err := uuid.Parse(sessionID); err != nil {
			sendError(w, "Invalid sessionId", "INVALID_SESSION_ID", http.StatusBadRequest)
			return
		}

		session, err := database.GetUploadSession(db, sessionID)
		if err != nil {
			slog.Error("failed to get upload session", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if session == nil || session.Subject != middleware.Subject(r.Context()) {
			sendError(w, "Upload session not found", "SESSION_NOT_FOUND", http.StatusNotFound)
			return
		}

		sendData(w, session.Dto(time.Now().UTC()), http.StatusOK)
	}
}

// UploadCancelHandler handles DELETE /api/storage/chunk-upload/cancel/{sessionId}
func UploadCancelHandler(db *database.DB, backend storage.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		sessionID := strings.TrimPrefix(r.URL.Path, "/api/storage/chunk-upload/cancel/")
		if _, err := uuid.Parse(sessionID); err != nil {
			sendError(w, "Invalid sessionId", "INVALID_SESSION_ID", http.StatusBadRequest)
			return
		}

		session, err := database.GetUploadSession(db, sessionID)
		if err != nil {
			slog.Error("failed to get upload session", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if session == nil || session.Subject != middleware.Subject(r.Context()) {
			sendError(w, "Upload session not found", "SESSION_NOT_FOUND", http.StatusNotFound)
			return
		}

		if err := backend.DeleteChunks(r.Context(), sessionID); err != nil {
			slog.Error("failed to delete chunks on cancel", "error", err, "session_id", sessionID)
			// continue: the session row still goes away, sweeper retries chunks
		}
		if err := database.DeleteUploadSession(db, sessionID); err != nil {
			slog.Error("failed to delete upload session", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		metrics.UploadSessionsTotal.WithLabelValues("cancelled").Inc()
		slog.Info("chunked upload cancelled",
			"session_id", sessionID,
			"filename", session.Filename,
			"uploaded_chunks", session.UploadedChunks,
			"client_ip", getClientIP(r),
		)

		sendData(w, nil, http.StatusOK)
	}
}
