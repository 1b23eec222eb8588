package cache

import (
	"container/list"
	"context"
	"sync"
)

// conversationNode is what the recency list elements hold.
type conversationNode struct {
	key     string
	entries []CacheEntry
}

// InMemoryCache is a fixed-capacity in-process conversation cache with exact
// LRU eviction in O(1). Capacity counts distinct conversations, not turns.
//
// A single mutex covers each whole logical operation (lookup, append, evict,
// recency update), so a concurrent append can never lose another caller's
// turn and a reader can never observe a half-written sequence. The list and
// map always hold exactly the same key set.
type InMemoryCache struct {
	capacity int

	mu      sync.Mutex
	items   map[string]*list.Element
	recency *list.List // front = most recently used
}

// NewInMemoryCache creates a store holding at most capacity conversations.
// Capacity is fixed for the store's lifetime; values below 1 are clamped.
func NewInMemoryCache(capacity int) *InMemoryCache {
	if capacity < 1 {
		capacity = 1
	}
	return &InMemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		recency:  list.New(),
	}
}

// Get returns a copy of the conversation's turns and promotes the key to
// most recently used. A miss returns nil and leaves the ordering untouched.
func (c *InMemoryCache) Get(_ context.Context, userID, conversationID string) ([]CacheEntry, error) {
	key, err := ConversationKey(userID, conversationID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	c.recency.MoveToFront(elem)

	// Copy so a later append cannot mutate what the caller holds.
	node := elem.Value.(*conversationNode)
	out := make([]CacheEntry, len(node.entries))
	copy(out, node.entries)
	return out, nil
}

// InsertOrAppend appends the turn to an existing conversation, or inserts a
// new one, evicting the least recently used conversation when at capacity.
// The evicted conversation is discarded without notification.
func (c *InMemoryCache) InsertOrAppend(_ context.Context, userID, conversationID string, entry CacheEntry) error {
	key, err := ConversationKey(userID, conversationID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		node := elem.Value.(*conversationNode)
		node.entries = append(node.entries, entry)
		c.recency.MoveToFront(elem)
		return nil
	}

	if c.recency.Len() >= c.capacity {
		if oldest := c.recency.Back(); oldest != nil {
			c.recency.Remove(oldest)
			delete(c.items, oldest.Value.(*conversationNode).key)
		}
	}

	elem := c.recency.PushFront(&conversationNode{
		key:     key,
		entries: []CacheEntry{entry},
	})
	c.items[key] = elem
	return nil
}

// Ready always succeeds; the store is memory-only.
func (c *InMemoryCache) Ready(context.Context) error {
	return nil
}

// Len returns the number of conversations currently cached.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Capacity returns the maximum number of conversations the store holds.
func (c *InMemoryCache) Capacity() int {
	return c.capacity
}
