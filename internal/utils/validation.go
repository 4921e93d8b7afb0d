package utils

import (
	"path/filepath"
	"strings"
)

// SanitizeFilename strips any path components and control characters from a
// client-supplied filename, returning a name safe to store and log.
func SanitizeFilename(name string) string {
	// Drop directory components from either path convention
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.TrimSpace(b.String())

	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

// IsValidFilename reports whether a filename is acceptable as-is. Used by
// clients before initiating an upload; the server sanitizes regardless.
func IsValidFilename(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return false
	}
	return true
}
