package models

import "time"

// Upload session status values. A session moves from INITIATED through
// IN_PROGRESS to a terminal COMPLETED, FAILED, or EXPIRED.
const (
	SessionInitiated  = "INITIATED"
	SessionInProgress = "IN_PROGRESS"
	SessionCompleted  = "COMPLETED"
	SessionFailed     = "FAILED"
	SessionExpired    = "EXPIRED"
)

// UploadSession represents a chunked upload session.
type UploadSession struct {
	SessionID      string    `json:"sessionId"`
	Subject        string    `json:"-"` // owner, resolved from the access token
	Filename       string    `json:"filename"`
	FileSize       int64     `json:"fileSize"`
	FileHash       string    `json:"-"` // whole-file SHA-256, never exposed
	ChunkSize      int64     `json:"chunkSize"`
	TotalChunks    int       `json:"totalChunks"`
	UploadedChunks int       `json:"uploadedChunks"`
	MimeType       string    `json:"mimeType,omitempty"`
	Status         string    `json:"status"`
	StoredName     string    `json:"-"` // object key after assembly
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// ProgressPercentage reports uploadedChunks/totalChunks as a percentage.
func (s *UploadSession) ProgressPercentage() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.UploadedChunks) / float64(s.TotalChunks) * 100
}

// Terminal reports whether the session can accept no further chunks.
func (s *UploadSession) Terminal() bool {
	switch s.Status {
	case SessionCompleted, SessionFailed, SessionExpired:
		return true
	}
	return false
}

// TotalChunksFor computes ceil(fileSize/chunkSize).
func TotalChunksFor(fileSize, chunkSize int64) int {
	n := int(fileSize / chunkSize)
	if fileSize%chunkSize != 0 {
		n++
	}
	return n
}

// InitiateRequest is the body of POST /api/storage/chunk-upload/initiate.
type InitiateRequest struct {
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileHash  string `json:"fileHash"`
	ChunkSize int64  `json:"chunkSize"`
	MimeType  string `json:"mimeType,omitempty"`
}

// UploadSessionDto is the wire representation of a session, returned by the
// initiate, chunk, and status endpoints.
type UploadSessionDto struct {
	SessionID          string    `json:"sessionId"`
	Filename           string    `json:"filename"`
	FileSize           int64     `json:"fileSize"`
	ChunkSize          int64     `json:"chunkSize"`
	TotalChunks        int       `json:"totalChunks"`
	UploadedChunks     int       `json:"uploadedChunks"`
	Status             string    `json:"status"`
	ExpiresAt          time.Time `json:"expiresAt"`
	ProgressPercentage float64   `json:"progressPercentage"`
}

// Dto converts a session to its wire representation, computing EXPIRED for
// sessions whose expiry has passed without a terminal status.
func (s *UploadSession) Dto(now time.Time) UploadSessionDto {
	status := s.Status
	if !s.Terminal() && now.After(s.ExpiresAt) {
		status = SessionExpired
	}
	return UploadSessionDto{
		SessionID:          s.SessionID,
		Filename:           s.Filename,
		FileSize:           s.FileSize,
		ChunkSize:          s.ChunkSize,
		TotalChunks:        s.TotalChunks,
		UploadedChunks:     s.UploadedChunks,
		Status:             status,
		ExpiresAt:          s.ExpiresAt,
		ProgressPercentage: s.ProgressPercentage(),
	}
}
