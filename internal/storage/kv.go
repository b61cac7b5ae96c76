package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("store closed")
)

// Store is a small key-value store for element objects.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns a copy of the value, or ErrKeyNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores a key-value pair.
	Set(ctx context.Context, key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan visits keys with prefix in order until fn returns false.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Close releases the store.
	Close() error
}

// Config configures a Badger store.
type Config struct {
	// Dir is the storage directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory; nothing survives Close.
	InMemory bool

	// GCInterval is the interval between value log GC runs.
	// Zero disables the GC loop.
	GCInterval time.Duration

	// GCThreshold is the discard ratio that triggers a value log rewrite.
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// SyncWrites fsyncs after each write.
	SyncWrites bool
}

// DefaultConfig returns the default configuration for dir. An empty dir
// selects an in-memory store.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		InMemory:    dir == "",
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		CacheSize:   8 << 20, // 8MB
		SyncWrites:  true,
	}
}
