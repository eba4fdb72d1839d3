// Package blob stores opaque archives under slash separated keys.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned for a key with no blob.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key/value store for archive files.
type Store interface {
	// Put writes content under key, replacing any previous blob.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the blob stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	Delete(ctx context.Context, key string) error
}
