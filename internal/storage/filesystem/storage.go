// Package filesystem implements storage.Backend on the local filesystem.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/coursewire/coursewire/internal/storage"
)

const (
	// partialDir holds per-session chunk directories under the root.
	partialDir = ".partial"

	chunkFilePattern = "chunk_%06d"
)

// Storage stores chunks and objects under a single root directory.
type Storage struct {
	root string
}

// New creates the root directory if needed and returns a Storage.
func New(root string) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root cannot be empty")
	}
	if err := os.MkdirAll(filepath.Join(root, partialDir), 0o750); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &Storage{root: root}, nil
}

// objectPath resolves an object name inside the root, rejecting traversal.
func (s *Storage) objectPath(name string) (string, error) {
	clean := filepath.Clean("/" + name)
	if strings.Contains(name, "..") || clean == "/" {
		return "", storage.NewError("resolve", name, fmt.Errorf("invalid object name"))
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Storage) chunkPath(sessionID string, chunkNum int) string {
	return filepath.Join(s.root, partialDir, sessionID, fmt.Sprintf(chunkFilePattern, chunkNum))
}

// SaveChunk writes a chunk atomically (temp file + rename) so a crashed
// write never leaves a truncated chunk that passes an existence check.
func (s *Storage) SaveChunk(ctx context.Context, sessionID string, chunkNum int, data io.Reader, size int64) error {
	dir := filepath.Join(s.root, partialDir, sessionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return storage.NewError("SaveChunk", dir, err)
	}

	dest := s.chunkPath(sessionID, chunkNum)
	tmp, err := os.CreateTemp(dir, "chunk_*.tmp")
	if err != nil {
		return storage.NewError("SaveChunk", dest, err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return storage.NewError("SaveChunk", dest, err)
	}
	if size >= 0 && written != size {
		os.Remove(tmpName)
		return storage.NewError("SaveChunk", dest, fmt.Errorf("wrote %d bytes, expected %d", written, size))
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return storage.NewError("SaveChunk", dest, err)
	}
	return nil
}

// ChunkExists reports whether the chunk file is present and its size.
func (s *Storage) ChunkExists(ctx context.Context, sessionID string, chunkNum int) (bool, int64, error) {
	info, err := os.Stat(s.chunkPath(sessionID, chunkNum))
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, storage.NewError("ChunkExists", s.chunkPath(sessionID, chunkNum), err)
	}
	return true, info.Size(), nil
}

// GetChunk opens a stored chunk for reading.
func (s *Storage) GetChunk(ctx context.Context, sessionID string, chunkNum int) (io.ReadCloser, error) {
	f, err := os.Open(s.chunkPath(sessionID, chunkNum))
	if err != nil {
		return nil, storage.NewError("GetChunk", s.chunkPath(sessionID, chunkNum), err)
	}
	return f, nil
}

// DeleteChunks removes the session's chunk directory.
func (s *Storage) DeleteChunks(ctx context.Context, sessionID string) error {
	dir := filepath.Join(s.root, partialDir, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return storage.NewError("DeleteChunks", dir, err)
	}
	return nil
}

// AssembleChunks streams chunks 0..totalChunks-1 into destName, hashing as
// it writes. The destination is written via temp file + rename.
func (s *Storage) AssembleChunks(ctx context.Context, sessionID string, totalChunks int, destName string) (string, int64, error) {
	destPath, err := s.objectPath(destName)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return "", 0, storage.NewError("AssembleChunks", destPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "assemble_*.tmp")
	if err != nil {
		return "", 0, storage.NewError("AssembleChunks", destPath, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	hasher := sha256.New()
	out := io.MultiWriter(tmp, hasher)

	var written int64
	for i := 0; i < totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			cleanup()
			return "", 0, err
		}

		chunk, err := os.Open(s.chunkPath(sessionID, i))
		if err != nil {
			cleanup()
			return "", 0, storage.NewError("AssembleChunks", s.chunkPath(sessionID, i), err)
		}
		n, err := io.Copy(out, chunk)
		chunk.Close()
		if err != nil {
			cleanup()
			return "", 0, storage.NewError("AssembleChunks", destPath, err)
		}
		written += n
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", 0, storage.NewError("AssembleChunks", destPath, err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return "", 0, storage.NewError("AssembleChunks", destPath, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}

// Retrieve opens a stored object for reading.
func (s *Storage) Retrieve(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := s.objectPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, storage.NewError("Retrieve", path, err)
	}
	return f, nil
}

// Store writes an object directly.
func (s *Storage) Store(ctx context.Context, name string, data io.Reader) error {
	path, err := s.objectPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return storage.NewError("Store", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "store_*.tmp")
	if err != nil {
		return storage.NewError("Store", path, err)
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return storage.NewError("Store", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return storage.NewError("Store", path, err)
	}
	return nil
}

// Delete removes a stored object.
func (s *Storage) Delete(ctx context.Context, name string) error {
	path, err := s.objectPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return storage.NewError("Delete", path, err)
	}
	return nil
}
