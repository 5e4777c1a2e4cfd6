package repository

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by Get for paths with no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the narrow key-value persistence collaborator used for
// weight blobs, kill-switch state, session snapshots and version metadata.
// Callers never depend on which physical tier serves a path.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, path string) error
}
