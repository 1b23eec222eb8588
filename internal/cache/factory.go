package cache

import (
	"context"
	"fmt"
	"sync"
)

// Config selects and parameterizes one conversation cache backend.
type Config struct {
	Type string // memory | redis | postgres

	// MaxEntries is the in-process capacity in distinct conversations.
	MaxEntries int

	Redis    RedisConfig
	Postgres PostgresConfig
}

// The in-process store is shared by every request handler in the process.
// Constructing the memory backend twice must not reset or resize it, so the
// first construction wins; this guard is separate from the store's own
// operation mutex and is never taken on the hot path.
var (
	memoryOnce  sync.Once
	memoryStore *InMemoryCache
)

// NewConversationCache builds the backend named by cfg.Type. It is called
// once at startup and the result is handed to the request handlers; remote
// backends fail fast here when their server is unreachable.
func NewConversationCache(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Type {
	case TypeMemory:
		memoryOnce.Do(func() {
			memoryStore = NewInMemoryCache(cfg.MaxEntries)
		})
		return memoryStore, nil
	case TypeRedis:
		return NewRedisCache(ctx, cfg.Redis)
	case TypePostgres:
		return NewPostgresCache(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("%w: unknown cache type %q (use %q, %q or %q)",
			ErrInvalidConfiguration, cfg.Type, TypeMemory, TypeRedis, TypePostgres)
	}
}
