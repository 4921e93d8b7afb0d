// Package storage abstracts where chunks and assembled media objects live,
// so handlers work identically against local disk and S3-compatible stores.
package storage

import (
	"context"
	"io"
)

// Backend stores upload chunks, assembled objects, and streaming manifests.
type Backend interface {
	// SaveChunk persists one chunk for an upload session.
	// chunkNum is the 0-indexed chunk number.
	SaveChunk(ctx context.Context, sessionID string, chunkNum int, data io.Reader, size int64) error

	// ChunkExists reports whether a chunk is present and its stored size.
	ChunkExists(ctx context.Context, sessionID string, chunkNum int) (exists bool, size int64, err error)

	// GetChunk returns a reader for a stored chunk.
	// The caller is responsible for closing the returned ReadCloser.
	GetChunk(ctx context.Context, sessionID string, chunkNum int) (io.ReadCloser, error)

	// DeleteChunks removes all chunks for an upload session.
	DeleteChunks(ctx context.Context, sessionID string) error

	// AssembleChunks concatenates chunks 0..totalChunks-1 into the object
	// named destName. Returns the SHA-256 hex digest and byte count of the
	// assembled object.
	AssembleChunks(ctx context.Context, sessionID string, totalChunks int, destName string) (hash string, written int64, err error)

	// Retrieve returns a reader for a stored object (assembled media or a
	// streaming manifest). The caller closes the returned ReadCloser.
	Retrieve(ctx context.Context, name string) (io.ReadCloser, error)

	// Store writes an object directly (used for manifests and imports).
	Store(ctx context.Context, name string, data io.Reader) error

	// Delete removes a stored object.
	Delete(ctx context.Context, name string) error
}

// Error wraps storage failures with the operation and path for context.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return e.Op + " " + e.Path + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given details.
func NewError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}
