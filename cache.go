package semjoin

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the normalization cache capacity used when none is set.
const DefaultCacheSize = 100_000

type cacheKey struct {
	kind       DType
	raw        string
	normalizer string
}

// NormalizationCache memoizes (raw value, normalizer) -> canonical string.
// It is a bounded LRU: once full, each insert evicts the least recently
// used entry. It is safe for concurrent use.
type NormalizationCache struct {
	entries  *lru.Cache[cacheKey, string]
	capacity atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Size     int
	Capacity int
	Hits     int64
	Misses   int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewNormalizationCache creates a cache holding at most size entries.
func NewNormalizationCache(size int) *NormalizationCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[cacheKey, string](size)
	if err != nil {
		// only returned for non-positive sizes, which are replaced above
		panic(err)
	}
	c := &NormalizationCache{entries: entries}
	c.capacity.Store(int64(size))
	return c
}

// Normalize returns n.Normalize(v), consulting and filling the cache.
func (c *NormalizationCache) Normalize(n Normalizer, v any) string {
	if isMissing(v) {
		return ""
	}
	key := cacheKey{kind: dtypeOf(v), raw: formatValue(v), normalizer: n.Name()}
	if out, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return out
	}
	c.misses.Add(1)
	out := safeNormalize(n, v)
	c.entries.Add(key, out)
	return out
}

// Resize changes the capacity, evicting least recently used entries.
func (c *NormalizationCache) Resize(size int) {
	if size > 0 {
		c.entries.Resize(size)
		c.capacity.Store(int64(size))
	}
}

// Clear drops every entry and resets the counters.
func (c *NormalizationCache) Clear() {
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns a snapshot of the counters.
func (c *NormalizationCache) Stats() CacheStats {
	return CacheStats{
		Size:     c.entries.Len(),
		Capacity: int(c.capacity.Load()),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}
