// Package content stores the on-disk mirror of each entry's markdown.
//
// The mirror is a convenience copy for external tools; the index database is
// authoritative. Paths are relative and slash-separated (e.g.
// "entries/<id>.md").
package content

import (
	"context"
	"path"
	"strings"

	"github.com/hpungsan/momentum/internal/errors"
)

// Store reads and writes mirror files.
type Store interface {
	// Write atomically replaces the file at p with data, creating parents.
	Write(ctx context.Context, p string, data []byte) error

	// Read returns the file contents, or a NOT_FOUND error.
	Read(ctx context.Context, p string) ([]byte, error)

	// Delete removes the file. Deleting a missing file is not an error.
	Delete(ctx context.Context, p string) error
}

// CleanPath validates a store-relative path and returns its clean form.
// Absolute paths and ".." components are rejected.
func CleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
		return "", errors.NewInvalidRequest("path must be relative: " + p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", errors.NewInvalidRequest("path must not contain directory traversal (..)")
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", errors.NewInvalidRequest("path must name a file")
	}
	return cleaned, nil
}
