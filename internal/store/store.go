// Package store provides the durable key-value storage behind the occupancy
// ledger and daily statistics. The real implementation is a SQLite file; the
// memory implementation is a test double.
package store

// Store is a flat key-value mapping loaded once at startup and written through
// on every mutation.
type Store interface {
	// Load returns every stored key and value.
	Load() (map[string]string, error)

	// Put writes all values in a single transaction.
	Put(values map[string]string) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(keys ...string) error

	// Close releases the underlying resources.
	Close() error
}
