package session

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache used when Redis is not configured.
// Expired entries are dropped lazily on Get.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl falls back to
// DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, phone string) (State, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[phone]
	if !ok {
		return State{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.items, phone)
		return State{}, false, nil
	}
	return entry.state, true, nil
}

func (c *MemoryCache) Put(ctx context.Context, phone string, state State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state.UpdatedAt = c.now()
	c.items[phone] = memoryEntry{
		state:     state,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, phone)
	return nil
}

var _ Cache = (*MemoryCache)(nil)
