// Package profiler obtains (total_bytes, file_count, dir_count) for a
// directory by driving the copier in list-only mode, and caches the result
// with an age bound and an approximate-LRU eviction policy.
package profiler

import (
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"replicurse/internal/types"
)

// Cache holds recently profiled directories, keyed by a normalized path.
// Safe for concurrent use by multiple goroutines (profile_many workers and
// the chunker calling profile serially).
type Cache struct {
	mu         sync.Mutex
	entries    map[string]types.DirectoryProfile
	maxEntries int
	maxAge     time.Duration
}

// NewCache builds a cache that holds at most approximately maxEntries
// entries (eviction triggers at 1.10x that count) and treats entries older
// than maxAge as stale.
func NewCache(maxEntries int, maxAge time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		entries:    make(map[string]types.DirectoryProfile),
		maxEntries: maxEntries,
		maxAge:     maxAge,
	}
}

// normalizeKey folds forward slashes to backslashes, trims trailing
// separators (except for a bare drive root like "C:\"), and lowercases for
// ordinal case-insensitive comparison.
func normalizeKey(path string) string {
	p := strings.ReplaceAll(path, "/", `\`)
	for len(p) > 3 && strings.HasSuffix(p, `\`) {
		p = p[:len(p)-1]
	}
	return strings.ToLower(p)
}

// Get returns the cached profile for path if present and not stale.
func (c *Cache) Get(path string, now time.Time) (types.DirectoryProfile, bool) {
	key := normalizeKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return types.DirectoryProfile{}, false
	}
	if entry.Stale(now, c.maxAge) {
		return types.DirectoryProfile{}, false
	}
	return entry, true
}

// Put inserts or refreshes an entry, evicting if the cache has grown past
// its capacity threshold.
func (c *Cache) Put(profile types.DirectoryProfile) {
	key := normalizeKey(profile.Path)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = profile
	c.evictLocked()
}

// Invalidate drops one entry, used by the fsnotify-driven early
// invalidation path when a profiled directory changes before it goes
// stale on its own.
func (c *Cache) Invalidate(path string) {
	key := normalizeKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// evictLocked implements the approximate-LRU eviction policy: once the
// entry count exceeds maxEntries*1.10, sample 5x the excess at random,
// sort the sample by LastScanned, and remove the oldest `excess` of them.
// The sample is the head of a shuffle of every key, so only the sort is
// limited to the sample. It runs with c.mu held, so no Put or Invalidate
// can interleave with it.
func (c *Cache) evictLocked() {
	threshold := int(float64(c.maxEntries) * 1.10)
	if len(c.entries) <= threshold {
		return
	}
	excess := len(c.entries) - c.maxEntries
	if excess <= 0 {
		return
	}

	sampleSize := 5 * excess
	if sampleSize > len(c.entries) {
		sampleSize = len(c.entries)
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	sample := keys[:sampleSize]

	sort.Slice(sample, func(i, j int) bool {
		return c.entries[sample[i]].LastScanned.Before(c.entries[sample[j]].LastScanned)
	})

	for i := 0; i < excess && i < len(sample); i++ {
		delete(c.entries, sample[i])
	}
}

// Len reports the current entry count, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cleanPathForDisplay is a small helper used by the profiler: filepath.Clean
// the path for the profile's display Path without touching the cache key
// normalization rules above.
func cleanPathForDisplay(path string) string {
	return filepath.Clean(path)
}
