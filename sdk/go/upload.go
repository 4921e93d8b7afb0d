package coursewire

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// DefaultChunkSize is the chunk size used when UploadOptions does not
// override it.
const DefaultChunkSize int64 = 1 << 20 // 1 MiB

// Uploader drives resumable chunked uploads. At most one upload runs per
// Uploader at a time; a second concurrent UploadFile call fails immediately
// with ErrUploadInFlight without touching the network.
type Uploader struct {
	client *Client

	mu        sync.Mutex
	inFlight  bool
	cancelled bool
	session   *UploadSession
	lastErr   error
}

// NewUploader creates an Uploader bound to a client.
func NewUploader(client *Client) *Uploader {
	return &Uploader{client: client}
}

// Session returns the most recent upload session state, or nil when no
// upload has been started since the last reset.
func (u *Uploader) Session() *UploadSession {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session
}

// Err returns the error from the most recent failed upload, if any.
func (u *Uploader) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastErr
}

// ResetUpload clears session, progress, and error state. It does not touch
// the server; use CancelCurrentUpload to abandon a running upload.
func (u *Uploader) ResetUpload() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.session = nil
	u.lastErr = nil
	u.cancelled = false
}

// CancelCurrentUpload aborts the running upload, if any. The chunk loop
// observes the cancellation at its next iteration boundary; the session's
// server-side chunks are discarded best-effort. Once the cancelled
// UploadFile call returns, Session and Err report no upload, as after
// ResetUpload. Calling this with no upload in flight is a no-op.
func (u *Uploader) CancelCurrentUpload(ctx context.Context) {
	u.mu.Lock()
	if !u.inFlight {
		u.mu.Unlock()
		return
	}
	u.cancelled = true
	session := u.session
	u.mu.Unlock()

	if session != nil {
		// best effort; the loop error is what the caller sees
		_ = u.client.CancelUpload(ctx, session.SessionID)
	}
}

// UploadFile uploads a file as a sequence of chunks and returns the final
// session state. The file is hashed first so an interrupted upload of the
// same content resumes its existing session rather than starting over.
// Chunks are sent strictly in order with no per-chunk retry; any failure is
// terminal for the call.
func (u *Uploader) UploadFile(ctx context.Context, path string, opts *UploadOptions) (*UploadSession, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}

	u.mu.Lock()
	if u.inFlight {
		u.mu.Unlock()
		return nil, ErrUploadInFlight
	}
	u.inFlight = true
	u.cancelled = false
	u.session = nil
	u.lastErr = nil
	u.mu.Unlock()

	session, err := u.run(ctx, path, opts)

	u.mu.Lock()
	u.inFlight = false
	if errors.Is(err, ErrUploadCancelled) {
		// a resolved cancel leaves no session, progress, or error behind
		u.session = nil
		u.lastErr = nil
		u.cancelled = false
		session = nil
	} else {
		u.session = session
		u.lastErr = err
	}
	u.mu.Unlock()

	if err != nil {
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return session, err
	}
	if opts.OnComplete != nil {
		opts.OnComplete(session)
	}
	return session, nil
}

func (u *Uploader) run(ctx context.Context, path string, opts *UploadOptions) (*UploadSession, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("getting file info: %w", err)
	}
	if info.IsDir() {
		return nil, &ValidationError{Field: "path", Message: "is a directory"}
	}
	if info.Size() == 0 {
		return nil, &ValidationError{Field: "path", Message: "file is empty"}
	}

	fileSize := info.Size()
	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < 0 {
		return nil, &ValidationError{Field: "ChunkSize", Message: "cannot be negative"}
	}

	fileHash, err := hashFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("hashing file: %w", err)
	}

	session, err := u.initiate(ctx, initiateRequest{
		Filename:  filepath.Base(absPath),
		FileSize:  fileSize,
		FileHash:  fileHash,
		ChunkSize: chunkSize,
		MimeType:  opts.MimeType,
	})
	if err != nil {
		return nil, err
	}
	if err := validateSessionID(session.SessionID); err != nil {
		return nil, fmt.Errorf("server returned invalid session id: %w", err)
	}

	// publish the session so CancelCurrentUpload can reach it mid-upload
	u.mu.Lock()
	u.session = session
	u.mu.Unlock()

	file, err := os.Open(absPath)
	if err != nil {
		return session, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	// A resumed session reports chunks the server already holds; continue
	// from there rather than re-sending from zero.
	startChunk := session.UploadedChunks
	if startChunk > 0 {
		if _, err := file.Seek(int64(startChunk)*session.ChunkSize, io.SeekStart); err != nil {
			return session, fmt.Errorf("seeking to resume offset: %w", err)
		}
	}

	buf := make([]byte, session.ChunkSize)
	for chunkNum := startChunk; chunkNum < session.TotalChunks; chunkNum++ {
		// cancellation is cooperative: checked between chunks, never mid-chunk
		if err := u.checkCancelled(ctx); err != nil {
			return session, &ChunkedUploadError{SessionID: session.SessionID, ChunkNumber: chunkNum, Err: err}
		}

		n, err := io.ReadFull(file, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return session, &ChunkedUploadError{
				SessionID:   session.SessionID,
				ChunkNumber: chunkNum,
				Err:         fmt.Errorf("reading chunk: %w", err),
			}
		}

		updated, err := u.sendChunk(ctx, session.SessionID, chunkNum, buf[:n])
		if err != nil {
			return session, &ChunkedUploadError{SessionID: session.SessionID, ChunkNumber: chunkNum, Err: err}
		}
		session = updated
		u.mu.Lock()
		u.session = session
		u.mu.Unlock()

		if opts.OnProgress != nil {
			opts.OnProgress(session.ProgressPercentage)
		}
	}

	// The last accepted chunk already carries the terminal state, but a
	// final status query confirms assembly for resumed sessions that had
	// nothing left to send.
	final, err := u.client.GetUploadStatus(ctx, session.SessionID)
	if err != nil {
		return session, &ChunkedUploadError{SessionID: session.SessionID, ChunkNumber: -1, Err: err}
	}
	if final.Status != StatusCompleted {
		return final, &ChunkedUploadError{
			SessionID:   session.SessionID,
			ChunkNumber: -1,
			Err:         fmt.Errorf("upload finished in status %s", final.Status),
		}
	}

	return final, nil
}

func (u *Uploader) checkCancelled(ctx context.Context) error {
	u.mu.Lock()
	cancelled := u.cancelled
	u.mu.Unlock()
	if cancelled {
		return ErrUploadCancelled
	}
	return ctx.Err()
}

func (u *Uploader) initiate(ctx context.Context, req initiateRequest) (*UploadSession, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling initiate request: %w", err)
	}

	resp, err := u.client.request(ctx, http.MethodPost, "/api/storage/chunk-upload/initiate", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}

	var session UploadSession
	if err := handleResponse(resp, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (u *Uploader) sendChunk(ctx context.Context, sessionID string, chunkNum int, chunk []byte) (*UploadSession, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("sessionId", sessionID); err != nil {
		return nil, fmt.Errorf("writing sessionId field: %w", err)
	}
	if err := writer.WriteField("chunkNumber", fmt.Sprintf("%d", chunkNum)); err != nil {
		return nil, fmt.Errorf("writing chunkNumber field: %w", err)
	}
	sum := sha256.Sum256(chunk)
	if err := writer.WriteField("chunkHash", hex.EncodeToString(sum[:])); err != nil {
		return nil, fmt.Errorf("writing chunkHash field: %w", err)
	}

	part, err := writer.CreateFormFile("chunk", "chunk")
	if err != nil {
		return nil, fmt.Errorf("creating chunk form: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, fmt.Errorf("writing chunk: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing chunk writer: %w", err)
	}

	resp, err := u.client.request(ctx, http.MethodPost, "/api/storage/chunk-upload", &buf, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var session UploadSession
	if err := handleResponse(resp, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// hashFile computes the SHA-256 hex digest of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
