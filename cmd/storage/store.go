// Package storage writes archive artifacts to durable object storage.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectExists is returned when a write would replace an existing object
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound is returned when reading a missing object
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectStore is a write-once object namespace
type ObjectStore interface {
	// PutIfAbsent stores body under key and returns only after the backend
	// acknowledged the write. It never replaces an existing object.
	PutIfAbsent(ctx context.Context, key string, body []byte, contentType string) error

	// Get opens an existing object for reading
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Location renders a human readable URI for key
	Location(key string) string
}
