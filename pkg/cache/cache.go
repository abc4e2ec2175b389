package cache

import (
	"github.com/sepich/mhtml-cache/pkg/model"
)

// Store is the resource cache. Lookups are exact-match only.
type Store interface {
	// Get is a resource lookup and is counted in the hit/miss metrics.
	Get(key string) (*model.CacheEntry, bool)
	// Peek is Get without metrics, for internal bookkeeping lookups.
	Peek(key string) (*model.CacheEntry, bool)
	// Put overwrites silently.
	Put(key string, entry *model.CacheEntry)
	// PutAll makes every entry visible at once; readers never observe a
	// partially populated batch.
	PutAll(entries map[string]*model.CacheEntry)
	Clear()
	Len() int
}
