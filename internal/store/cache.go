// Package store provides in-memory caching of provider query results using an LRU cache and
// a Bloom filter.
package store

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"trackmirror/pkg/mirror"
)

const (
	// DefaultCapacity is used when a non-positive capacity is requested.
	DefaultCapacity = 1000
	// DefaultFalsePositiveRate is used when an out-of-range rate is requested.
	DefaultFalsePositiveRate = 0.001
	// bloomRebuildFactor bounds how many identifiers the filter may have seen,
	// relative to capacity, before it is rebuilt from the live set.
	bloomRebuildFactor = 2
)

// SearchCache caches query results by identifier. Results with tracks live in an LRU;
// identifiers that found nothing are kept in a second LRU of the same capacity, which is
// the exact set, prefiltered by a Bloom filter. It is safe for concurrent use.
type SearchCache struct {
	results    *lru.Cache[string, mirror.LoadResult]
	noMatches  *lru.Cache[string, struct{}]
	bloom      *bloom.BloomFilter
	bloomAdds  int
	mutex      sync.RWMutex
	capacity   int
	falseRate  float64
	hits       uint64
	misses     uint64
	statsMutex sync.Mutex
}

// NewSearchCache creates a cache holding up to capacity results and capacity no-match entries.
func NewSearchCache(capacity int, falsePositiveRate float64) *SearchCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = DefaultFalsePositiveRate
	}

	// lru.New only fails for a non-positive size.
	results, _ := lru.New[string, mirror.LoadResult](capacity)
	noMatches, _ := lru.New[string, struct{}](capacity)

	return &SearchCache{
		results:    results,
		noMatches:  noMatches,
		bloom:      bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		capacity:   capacity,
		falseRate:  falsePositiveRate,
	}
}

// Get returns the cached result for identifier. Cached no-match entries come back as
// mirror.NoMatch.
func (c *SearchCache) Get(identifier string) (mirror.LoadResult, bool) {
	result, ok := c.lookup(identifier)

	c.statsMutex.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.statsMutex.Unlock()

	return result, ok
}

func (c *SearchCache) lookup(identifier string) (mirror.LoadResult, bool) {
	if result, ok := c.results.Get(identifier); ok {
		return cloneResult(result), true
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.bloom.TestString(identifier) {
		return mirror.LoadResult{}, false
	}
	if _, exists := c.noMatches.Get(identifier); exists {
		return mirror.NoMatch, true
	}
	return mirror.LoadResult{}, false
}

// Put stores result for identifier. Empty results are recorded as no-match entries.
func (c *SearchCache) Put(identifier string, result mirror.LoadResult) {
	if !result.Empty() {
		c.results.Add(identifier, cloneResult(result))
		c.forgetNoMatch(identifier)
		return
	}

	c.results.Remove(identifier)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.noMatches.Contains(identifier) {
		return
	}

	// Adding beyond capacity evicts the least recently used no-match entry.
	c.noMatches.Add(identifier, struct{}{})
	c.bloom.AddString(identifier)
	c.bloomAdds++

	if c.bloomAdds > c.capacity*bloomRebuildFactor {
		c.rebuildBloom()
	}
}

// Size returns the number of cached results and no-match entries.
func (c *SearchCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.results.Len() + c.noMatches.Len()
}

// Clear removes every entry.
func (c *SearchCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.results.Purge()
	c.noMatches.Purge()
	c.bloom = bloom.NewWithEstimates(uint(c.capacity), c.falseRate)
	c.bloomAdds = 0
}

// Stats returns cache statistics for monitoring.
func (c *SearchCache) Stats() Stats {
	c.mutex.RLock()
	stats := Stats{
		Results:   c.results.Len(),
		NoMatches: c.noMatches.Len(),
		Capacity:  c.capacity,
	}
	c.mutex.RUnlock()

	c.statsMutex.Lock()
	stats.Hits = c.hits
	stats.Misses = c.misses
	c.statsMutex.Unlock()

	return stats
}

// Stats contains search cache statistics.
type Stats struct {
	Results   int    `json:"results"`
	NoMatches int    `json:"no_matches"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
}

func (c *SearchCache) forgetNoMatch(identifier string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// The Bloom filter keeps the identifier; the exact set decides.
	c.noMatches.Remove(identifier)
}

func (c *SearchCache) rebuildBloom() {
	c.bloom = bloom.NewWithEstimates(uint(c.capacity), c.falseRate)
	for _, identifier := range c.noMatches.Keys() {
		c.bloom.AddString(identifier)
	}
	c.bloomAdds = c.noMatches.Len()
}

func cloneResult(result mirror.LoadResult) mirror.LoadResult {
	clone := mirror.LoadResult{Kind: result.Kind}
	if result.Track != nil {
		track := *result.Track
		clone.Track = &track
	}
	if result.Tracks != nil {
		clone.Tracks = append([]mirror.Track(nil), result.Tracks...)
	}
	return clone
}

// CachedLoader wraps a mirror.Loader with a SearchCache. Errors are never cached.
type CachedLoader struct {
	loader mirror.Loader
	cache  *SearchCache
}

// NewCachedLoader creates a loader that consults cache before loader.
func NewCachedLoader(loader mirror.Loader, cache *SearchCache) *CachedLoader {
	return &CachedLoader{loader: loader, cache: cache}
}

// Load returns the cached result for identifier or loads and caches it.
func (l *CachedLoader) Load(ctx context.Context, identifier string) (mirror.LoadResult, error) {
	if result, ok := l.cache.Get(identifier); ok {
		return result, nil
	}

	result, err := l.loader.Load(ctx, identifier)
	if err != nil {
		return result, err
	}

	l.cache.Put(identifier, result)
	return result, nil
}
