// Package blobstore abstracts the remote sinks training checkpoints are
// mirrored to. Implementations exist for the local filesystem, memory
// (tests), MinIO and AWS S3.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
// The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store is a flat namespace of immutable named blobs.
type Store interface {
	// Put uploads size bytes from r under name, replacing any existing
	// blob atomically.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Open opens the named blob for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// List returns every blob name with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the named blob. Deleting a missing blob is not an
	// error.
	Delete(ctx context.Context, name string) error
}
