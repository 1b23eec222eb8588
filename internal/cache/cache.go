package cache

import (
	"context"
	"errors"
	"fmt"
)

// Supported conversation cache backends.
const (
	TypeMemory   = "memory"
	TypeRedis    = "redis"
	TypePostgres = "postgres"
)

var (
	// ErrInvalidIdentifier means a user or conversation ID failed its format
	// check. Raised before any store I/O; a caller bug, never retried.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidConfiguration means the factory was given an unsupported
	// backend type. Fatal at startup.
	ErrInvalidConfiguration = errors.New("invalid cache configuration")

	// ErrBackendUnavailable wraps connection/timeout failures of a remote
	// backend. The handler decides whether to soft-fail (treat a Get as a
	// miss) or surface it.
	ErrBackendUnavailable = errors.New("cache backend unavailable")
)

// Cache stores per-conversation history, addressed by a compound
// user/conversation key. All backends validate identifiers through the
// shared key codec before touching storage, and guarantee that concurrent
// InsertOrAppend calls on one key never lose or duplicate turns.
//
// Implemented by InMemoryCache (dev, exact LRU), RedisCache and
// PostgresCache.
type Cache interface {
	// Get returns the conversation's turns oldest-first, or nil if the key
	// was never written or has been evicted.
	Get(ctx context.Context, userID, conversationID string) ([]CacheEntry, error)

	// InsertOrAppend creates the conversation with a single turn, or appends
	// the turn to the existing sequence. Either way the key becomes the most
	// recently used one.
	InsertOrAppend(ctx context.Context, userID, conversationID string, entry CacheEntry) error

	// Ready reports whether the backend can serve traffic. Wired to the
	// readiness probe.
	Ready(ctx context.Context) error
}

// unavailable tags a backend I/O failure so callers can match
// ErrBackendUnavailable while keeping the underlying cause.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
}
