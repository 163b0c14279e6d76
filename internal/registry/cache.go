package registry

import (
	"sync"
	"time"

	"github.com/ashita-ai/cortex/internal/model"
)

// statusEntry is a cached brain status lookup.
type statusEntry struct {
	status    model.BrainStatus
	vertical  string
	expiresAt time.Time
}

// StatusCache is a TTL cache for brain status lookups. Seeding and insight
// writes check brain status on every call; the cache keeps those checks off
// the store's hot path. It is an explicit component with its own invalidation
// hooks, not an implicit side effect of reads.
type StatusCache struct {
	mu      sync.RWMutex
	entries map[string]statusEntry
	ttl     time.Duration
	done    chan struct{}
}

// NewStatusCache creates a cache with the given TTL and starts a background
// eviction loop.
func NewStatusCache(ttl time.Duration) *StatusCache {
	c := &StatusCache{
		entries: make(map[string]statusEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// Get returns the cached status and vertical for a brain, if present and
// unexpired.
func (c *StatusCache) Get(brainID string) (model.BrainStatus, string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[brainID]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return "", "", false
	}
	return entry.status, entry.vertical, true
}

// Set records a brain's status and vertical.
func (c *StatusCache) Set(brainID string, status model.BrainStatus, vertical string) {
	c.mu.Lock()
	c.entries[brainID] = statusEntry{
		status:    status,
		vertical:  vertical,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Invalidate drops a brain's cached entry. Called on delete; transitions
// overwrite via Set instead.
func (c *StatusCache) Invalidate(brainID string) {
	c.mu.Lock()
	delete(c.entries, brainID)
	c.mu.Unlock()
}

// Len returns the number of cached entries, including expired ones not yet
// evicted.
func (c *StatusCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the eviction loop.
func (c *StatusCache) Close() {
	close(c.done)
}

// evictLoop removes expired entries periodically so the map does not grow
// unbounded with brains that are never read again.
func (c *StatusCache) evictLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for id, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, id)
				}
			}
			c.mu.Unlock()
		}
	}
}
