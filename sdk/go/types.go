// Package coursewire provides a Go client SDK for the coursewire media
// service: resumable chunked uploads, playback progress tracking, lesson
// completion, and adaptive streaming quality selection.
package coursewire

import "time"

// Upload session statuses.
const (
	StatusInitiated  = "INITIATED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusExpired    = "EXPIRED"
)

// ClientConfig configures a coursewire API client.
type ClientConfig struct {
	// BaseURL is the server URL, e.g. "https://media.example.com".
	BaseURL string
	// AccessToken is the bearer token for authenticated endpoints.
	AccessToken string
	// Timeout is the per-request timeout. Defaults to 5 minutes.
	Timeout time.Duration
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// UploadSession represents the server-side state of a chunked upload.
type UploadSession struct {
	// SessionID is the unique identifier for this upload session.
	SessionID string `json:"sessionId"`
	// Filename is the original filename.
	Filename string `json:"filename"`
	// FileSize is the total file size in bytes.
	FileSize int64 `json:"fileSize"`
	// ChunkSize is the size of each chunk in bytes (last chunk may be smaller).
	ChunkSize int64 `json:"chunkSize"`
	// TotalChunks is the expected number of chunks.
	TotalChunks int `json:"totalChunks"`
	// UploadedChunks is the number of chunks received so far.
	UploadedChunks int `json:"uploadedChunks"`
	// Status is one of INITIATED, IN_PROGRESS, COMPLETED, FAILED, EXPIRED.
	Status string `json:"status"`
	// ExpiresAt is when the session expires.
	ExpiresAt time.Time `json:"expiresAt"`
	// ProgressPercentage is the upload progress (0-100).
	ProgressPercentage float64 `json:"progressPercentage"`
}

// UploadOptions configures a chunked upload.
type UploadOptions struct {
	// ChunkSize overrides the 1 MiB default chunk size.
	ChunkSize int64
	// MimeType is the declared content type; the server may refine it after
	// assembly by sniffing the file.
	MimeType string
	// OnProgress is called after each accepted chunk with the percentage
	// of bytes uploaded (0-100).
	OnProgress func(percent float64)
	// OnComplete is called once when the session reaches COMPLETED.
	OnComplete func(session *UploadSession)
	// OnError is called when the upload fails, before UploadFile returns
	// the same error.
	OnError func(err error)
}

// VideoProgress is the saved playhead position for one video.
type VideoProgress struct {
	VideoID         string  `json:"videoId"`
	LastWatchedTime float64 `json:"lastWatchedTime"`
}

// QualityLevel is one selectable rendition of a video stream.
type QualityLevel struct {
	// Value identifies the level: the vertical resolution in pixels, or -1
	// for automatic selection.
	Value int
	// Label is the display name, e.g. "720p" or "Auto".
	Label string
}

// AutoQuality selects the rendition automatically.
var AutoQuality = QualityLevel{Value: -1, Label: "Auto"}

type initiateRequest struct {
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileHash  string `json:"fileHash"`
	ChunkSize int64  `json:"chunkSize,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
}

type completeResponse struct {
	Completed bool `json:"completed"`
}
