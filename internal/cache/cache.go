// Package cache provides a multi-backend cache client.
//
// Backends:
//   - Memory (in-process, dev/testing)
//   - Redis (shared, production)
//
// Clients are injected by constructor; nothing in this package is a
// process-wide singleton mutated ad hoc.
package cache

import (
	"context"
	"time"
)

// Client defines the cache operations.
type Client interface {
	// Get returns the value or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with an optional TTL. ttl == 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver string // "memory" | "redis"
	Addr   string
	DB     int
	Prefix string
}

var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "cache: key not found" }

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New builds a client for the configured backend. Unknown drivers fall back
// to memory.
func New(cfg Config) Client {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg.Addr, cfg.DB, cfg.Prefix)
	default:
		return NewMemory(cfg.Prefix)
	}
}
