package storage

import (
	"context"
	"io"
)

// Backend is the interface that wraps the flat blob namespace holding chunks and assembled files.
type Backend interface {
	// Name returns the name of the backend implementation.
	Name() string

	// Exist reports whether the given key is present.
	Exist(ctx context.Context, key string) (bool, error)
	// Keys lists all the keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Reader returns a ReadCloser of the blob. It fails with ErrNotFound when key is absent.
	Reader(ctx context.Context, key string) (io.ReadCloser, error)
	// Promote atomically moves the local file filename under key, replacing any previous blob.
	// The blob is never visible partially written.
	Promote(ctx context.Context, filename, key string) error

	// Remove deletes the given key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
