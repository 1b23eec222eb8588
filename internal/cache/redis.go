package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// casAttempts bounds the optimistic-locking retry loop in InsertOrAppend.
const casAttempts = 10

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Eviction is delegated to the server. When set, these are applied via
	// CONFIG SET at construction (e.g. "100mb" / "allkeys-lru").
	MaxMemory       string
	MaxMemoryPolicy string
}

// RedisCache stores each conversation under its compound key as a JSON
// entry sequence. Capacity and eviction are the server's concern, driven by
// the configured maxmemory policy.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects, fails fast on an unreachable server, and applies
// the configured memory limits.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, unavailable("redis ping", err)
	}
	if cfg.MaxMemory != "" {
		if err := client.ConfigSet(ctx, "maxmemory", cfg.MaxMemory).Err(); err != nil {
			return nil, unavailable("redis config maxmemory", err)
		}
	}
	if cfg.MaxMemoryPolicy != "" {
		if err := client.ConfigSet(ctx, "maxmemory-policy", cfg.MaxMemoryPolicy).Err(); err != nil {
			return nil, unavailable("redis config maxmemory-policy", err)
		}
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client. Used by tests.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, userID, conversationID string) ([]CacheEntry, error) {
	key, err := ConversationKey(userID, conversationID)
	if err != nil {
		return nil, err
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("redis get", err)
	}
	entries, err := unmarshalEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return entries, nil
}

// InsertOrAppend appends the turn under WATCH/MULTI-EXEC. A plain GET
// followed by SET would lose one of two concurrent appends to the same key;
// here EXEC aborts if the key changed after WATCH, and the read-append-write
// is retried.
func (c *RedisCache) InsertOrAppend(ctx context.Context, userID, conversationID string, entry CacheEntry) error {
	key, err := ConversationKey(userID, conversationID)
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		var entries []CacheEntry
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// first turn of this conversation
		case err != nil:
			return err
		default:
			if entries, err = unmarshalEntries(raw); err != nil {
				return err
			}
		}

		entries = append(entries, entry)
		buf, err := marshalEntries(entries)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		err := c.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// the key changed between WATCH and EXEC; retry
			continue
		}
		return unavailable("redis insert_or_append", err)
	}
	return unavailable("redis insert_or_append",
		fmt.Errorf("optimistic lock gave up after %d attempts", casAttempts))
}

func (c *RedisCache) Ready(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
