package cache

import (
	"context"
	"time"

	"ragline-assistant/internal/metrics"
	"ragline-assistant/pkg/logging/logging"

	"go.uber.org/zap"
)

// LoggingCache wraps a Cache with logging + metrics. Observability is a
// caller-side concern; the backends themselves stay silent.
type LoggingCache struct {
	inner Cache
}

// sizer is satisfied by the in-process backend; remote backends don't know
// their size.
type sizer interface {
	Len() int
}

// NewLoggingCache returns a cache that logs and records metrics per call.
func NewLoggingCache(inner Cache) *LoggingCache {
	return &LoggingCache{inner: inner}
}

func (c *LoggingCache) Get(ctx context.Context, userID, conversationID string) ([]CacheEntry, error) {
	start := time.Now()
	entries, err := c.inner.Get(ctx, userID, conversationID)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case entries != nil:
		result = "hit"
		metrics.ConversationCacheHitsTotal.Inc()
	default:
		metrics.ConversationCacheMissesTotal.Inc()
	}

	fields := []zap.Field{
		zap.String("cache_op", "get"),
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID),
		zap.String("cache_result", result), // hit | miss | error
		zap.Int("turns", len(entries)),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Error("conversation_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Info("conversation_cache_get", fields...)
	}

	return entries, err
}

func (c *LoggingCache) InsertOrAppend(ctx context.Context, userID, conversationID string, entry CacheEntry) error {
	start := time.Now()
	err := c.inner.InsertOrAppend(ctx, userID, conversationID, entry)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	fields := []zap.Field{
		zap.String("cache_op", "insert_or_append"),
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Error("conversation_cache_insert", append(fields, zap.Error(err))...)
	} else {
		logger.Info("conversation_cache_insert", fields...)
		if s, ok := c.inner.(sizer); ok {
			metrics.ConversationCacheSize.Set(float64(s.Len()))
		}
	}

	return err
}

func (c *LoggingCache) Ready(ctx context.Context) error {
	return c.inner.Ready(ctx)
}
