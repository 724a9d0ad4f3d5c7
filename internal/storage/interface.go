// Package storage keeps rendered report artifacts.
package storage

import (
	"context"
)

// ArtifactStorage stores report files by key.
type ArtifactStorage interface {
	// Put writes data under key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the stored bytes, or an error wrapping domain.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a location for the object, empty when it has none.
	URL(key string) string
}
