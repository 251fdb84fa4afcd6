package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is the single-process stand-in for RedisCache: entries are
// kept as JSON so readers never share memory with writers, expire after
// their TTL and are evicted least recently used first.
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[string]*memoryEntry
	maxSize     int
	ttl         time.Duration
	accessOrder []string
	now         func() time.Time
}

func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}

	return &MemoryCache{
		entries:     make(map[string]*memoryEntry),
		maxSize:     maxSize,
		ttl:         ttl,
		accessOrder: make([]string, 0),
		now:         time.Now,
	}
}

func (c *MemoryCache) Name() string {
	return "memory"
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return ErrNotFound
	}
	if c.expired(entry) {
		c.remove(key)
		return ErrNotFound
	}

	c.touch(key)

	if err := json.Unmarshal(entry.data, dest); err != nil {
		return fmt.Errorf("erro ao deserializar: %w", err)
	}
	return nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("erro ao serializar: %w", err)
	}

	expiration := c.ttl
	if len(ttl) > 0 {
		expiration = ttl[0]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupExpired()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize && len(c.accessOrder) > 0 {
		c.remove(c.accessOrder[0])
	}

	entry := &memoryEntry{data: data}
	if expiration > 0 {
		entry.expiresAt = c.now().Add(expiration)
	}
	c.entries[key] = entry
	c.touch(key)

	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remove(key)
	return nil
}

func (c *MemoryCache) HealthCheck(ctx context.Context) error {
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}

func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(e *memoryEntry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

// touch moves key to the most recently used end.
func (c *MemoryCache) touch(key string) {
	c.dropFromOrder(key)
	c.accessOrder = append(c.accessOrder, key)
}

func (c *MemoryCache) remove(key string) {
	delete(c.entries, key)
	c.dropFromOrder(key)
}

func (c *MemoryCache) dropFromOrder(key string) {
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			return
		}
	}
}

func (c *MemoryCache) cleanupExpired() {
	for key, entry := range c.entries {
		if c.expired(entry) {
			c.remove(key)
		}
	}
}
