package cache

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/sepich/mhtml-cache/pkg/model"
)

// KeyFromLocator returns the cache key for an asset locator: the locator with
// any "#fragment" suffix removed.
func KeyFromLocator(locator string) string {
	key, _, _ := strings.Cut(locator, "#")
	return strings.TrimSpace(key)
}

// NewEntry builds a cache entry, stamping it with a content hash ETag.
func NewEntry(contentType string, content []byte) *model.CacheEntry {
	sum := blake3.Sum256(content)
	return &model.CacheEntry{
		ContentType: contentType,
		Content:     content,
		ETag:        `"` + hex.EncodeToString(sum[:16]) + `"`,
		CacheDate:   time.Now(),
	}
}
