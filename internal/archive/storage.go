// Package archive moves closed, immutable daily history into cold storage.
// The hot cache answers requests; the archive is the durable copy that
// survives cache restarts and lets a fresh node backfill without burning
// provider quota.
package archive

import "context"

// Storage is the blob backend contract. Backends are dumb byte stores;
// layout and encoding live in the Archiver.
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}
