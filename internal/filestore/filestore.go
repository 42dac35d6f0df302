// Package filestore is a content-addressed blob cache, used for
// listing images fetched from the backend.
package filestore

import (
	"io"
)

// FileStore stores and retrieves blobs by key (a hash).
type FileStore interface {
	// Save stores the content under key. It is idempotent: an
	// existing entry with the same key is left untouched.
	Save(r io.Reader, key string) error

	// Get retrieves the content for key.
	Get(key string) (io.ReadCloser, error)
}
