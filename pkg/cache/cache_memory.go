package cache

import (
	"maps"
	"sync"

	"github.com/sepich/mhtml-cache/pkg/metrics"
	"github.com/sepich/mhtml-cache/pkg/model"
)

// MemoryCache is a process-wide Store guarded by a single RWMutex.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*model.CacheEntry
	metrics *metrics.Metrics
}

var _ Store = (*MemoryCache)(nil)

// NewMemoryCache returns an empty cache. m may be nil.
func NewMemoryCache(m *metrics.Metrics) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*model.CacheEntry),
		metrics: m,
	}
}

func (c *MemoryCache) Get(key string) (*model.CacheEntry, bool) {
	entry, ok := c.Peek(key)
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHit()
		} else {
			c.metrics.CacheMiss()
		}
	}
	return entry, ok
}

func (c *MemoryCache) Peek(key string) (*model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

func (c *MemoryCache) Put(key string, entry *model.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	c.updateGauge()
}

func (c *MemoryCache) PutAll(entries map[string]*model.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	maps.Copy(c.entries, entries)
	c.updateGauge()
}

// Clear drops every entry. There is no partial invalidation.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*model.CacheEntry)
	c.updateGauge()
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// must be called with mu held
func (c *MemoryCache) updateGauge() {
	if c.metrics != nil {
		c.metrics.CacheEntries.Set(float64(len(c.entries)))
	}
}
