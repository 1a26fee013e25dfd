package storage

import (
	"context"
	"errors"
	"io"
)

// ErrBlobNotFound is returned when no blob exists at the requested path
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidPath is returned for paths that would escape the storage root
var ErrInvalidPath = errors.New("invalid blob path")

// BlobStorage defines the interface for artifact storage
type BlobStorage interface {
	// Put saves content at the given path and returns its public URL
	Put(ctx context.Context, path string, content io.Reader, contentType string) (string, error)

	// Retrieve gets content from the given path
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes content at the given path. Missing blobs are not an error.
	Delete(ctx context.Context, path string) error

	// Exists checks if content exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// URL returns the public address of the blob at path
	URL(path string) string
}
