package coursewire

import (
	"errors"
	"fmt"
)

// Standard errors returned by the SDK.
var (
	// ErrValidation indicates invalid input parameters.
	ErrValidation = errors.New("validation error")
	// ErrAuthentication indicates the access token was missing or rejected.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")
	// ErrSessionExpired indicates the upload session expired server-side.
	ErrSessionExpired = errors.New("upload session expired")
	// ErrFileTooLarge indicates the file exceeds the server's size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrRateLimit indicates too many requests.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrUploadInFlight indicates an upload is already running on this Uploader.
	ErrUploadInFlight = errors.New("an upload is already in progress")
	// ErrUploadCancelled indicates the upload was cancelled by the caller.
	ErrUploadCancelled = errors.New("upload cancelled")
)

// APIError represents an error response from the coursewire API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Message is the server's error message.
	Message string
	// Code is the machine-readable error code, e.g. "CHUNK_OUT_OF_ORDER".
	Code string
	// Err is the mapped sentinel error, if any.
	Err error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (status %d)", e.Err.Error(), e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Unwrap returns the mapped sentinel for errors.Is support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ValidationError represents a client-side input validation failure.
type ValidationError struct {
	// Field is the name of the invalid field.
	Field string
	// Message describes what's wrong.
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap returns ErrValidation for errors.Is support.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ChunkedUploadError represents a failure during a chunked upload.
type ChunkedUploadError struct {
	// SessionID is the upload session ID.
	SessionID string
	// ChunkNumber is the chunk that failed, or -1 when the failure was not
	// chunk-specific.
	ChunkNumber int
	// Err is the underlying error.
	Err error
}

func (e *ChunkedUploadError) Error() string {
	if e.ChunkNumber >= 0 {
		return fmt.Sprintf("chunked upload failed (session=%s, chunk=%d): %v", e.SessionID, e.ChunkNumber, e.Err)
	}
	return fmt.Sprintf("chunked upload failed (session=%s): %v", e.SessionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ChunkedUploadError) Unwrap() error {
	return e.Err
}

// Stream error kinds.
const (
	StreamErrorNetwork = "network"
	StreamErrorMedia   = "media"
	StreamErrorUnknown = "unknown"
)

// StreamError classifies a fatal streaming failure.
type StreamError struct {
	// Kind is one of StreamErrorNetwork, StreamErrorMedia, StreamErrorUnknown.
	Kind string
	// Err is the underlying error.
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error (%s): %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Message returns a user-facing description of the failure.
func (e *StreamError) Message() string {
	switch e.Kind {
	case StreamErrorNetwork:
		return "A network error occurred while loading the video. Check your connection and try again."
	case StreamErrorMedia:
		return "This video cannot be played because its stream data is invalid or unsupported."
	default:
		return "An unexpected error occurred while loading the video."
	}
}

// newAPIError maps an HTTP error response to an APIError with a sentinel.
func newAPIError(statusCode int, message, code string) *APIError {
	err := &APIError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}

	switch statusCode {
	case 400:
		err.Err = ErrValidation
	case 401:
		err.Err = ErrAuthentication
	case 404:
		err.Err = ErrNotFound
	case 410:
		err.Err = ErrSessionExpired
	case 413:
		err.Err = ErrFileTooLarge
	case 429:
		err.Err = ErrRateLimit
	}

	return err
}
