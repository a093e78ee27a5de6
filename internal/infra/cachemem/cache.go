// Package cachemem is a bounded in-memory cache for verification results.
// Entries expire by TTL and are dropped lazily on read; when the cache is
// full, expired entries are swept and, failing that, an arbitrary entry is
// evicted so a burst of distinct identifiers cannot grow it without bound.
package cachemem

import (
	"context"
	"sync"
	"time"

	"trajectoryd/internal/domain"
	"trajectoryd/internal/usecase"
)

const defaultMaxEntries = 4096

type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
}

type entry struct {
	value     domain.VerificationResult
	expiresAt time.Time
}

func New() *Cache {
	return NewWithLimit(defaultMaxEntries)
}

func NewWithLimit(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
	}
}

func (c *Cache) Get(ctx context.Context, key string) (*domain.VerificationResult, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := e.value
	return &value, true, nil
}

func (c *Cache) Put(ctx context.Context, key string, value domain.VerificationResult, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.makeRoom()
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// Len reports the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// makeRoom frees at least one slot: expired entries first, then an
// arbitrary victim. Caller holds the lock.
func (c *Cache) makeRoom() {
	now := time.Now()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

var _ usecase.VerificationCache = (*Cache)(nil)
