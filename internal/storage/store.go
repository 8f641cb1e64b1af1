// Package storage holds blob store implementations for inspection artifacts
// (signature images, photos).
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidPath = errors.New("invalid blob path")
)

// BlobStore is implemented by every backend.
type BlobStore interface {
	// Put writes data at path and returns the storage path to persist.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// SignedURL returns a time-limited URL for reading path.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// CleanPath normalizes a logical key and rejects traversal.
func CleanPath(path string) (string, error) {
	p := strings.TrimPrefix(strings.TrimSpace(path), "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return p, nil
}
