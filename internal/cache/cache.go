// Package cache provides a process-wide TTL memoization layer shared by the
// feature sources. Entries expire on read; there is no background eviction.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	value    any
	storedAt time.Time
}

// Cache is a mutex-protected in-memory store keyed by caller-built strings.
// Construct with New and inject into each source; there is deliberately no
// package-level instance.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time

	hits   uint64
	misses uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds a deterministic cache key from a source name and its ordered
// arguments. Float arguments are rendered verbatim (%v), so two coordinates
// must be bitwise-equal to share an entry; grouping of near-duplicates is an
// explicit dataset-level step, never a cache concern.
func Key(source string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, source)
	for _, a := range args {
		parts = append(parts, fmt.Sprintf("%v", a))
	}
	return strings.Join(parts, "|")
}

// GetOrCompute returns the cached value for key if it is younger than ttl,
// otherwise invokes fn, stores its result, and returns it. Errors from fn
// propagate and are never cached: a failed computation must not be mistaken
// for a value.
func GetOrCompute[T any](c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.storedAt) < ttl {
		// A type mismatch means two sources collided on a key; recompute
		// rather than returning a wrong-typed value.
		if v, ok := e.value.(T); ok {
			c.hits++
			c.mu.Unlock()
			zap.L().Debug("cache hit", zap.String("key", key))
			return v, nil
		}
	}
	c.misses++
	c.mu.Unlock()

	v, err := fn()
	if err != nil {
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = entry{value: v, storedAt: c.now()}
	c.mu.Unlock()
	return v, nil
}

// Lookup returns the cached value for key if present, younger than ttl, and
// of type T. It never computes; batched sources use it to split a request
// into cached and pending coordinates.
func Lookup[T any](c *Cache, key string, ttl time.Duration) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.storedAt) < ttl {
		if v, ok := e.value.(T); ok {
			c.hits++
			return v, true
		}
	}
	c.misses++
	var zero T
	return zero, false
}

// Put stores a value under key with the current timestamp.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: c.now()}
}

// Clear empties the store.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Stats describes the cache contents for observability.
type Stats struct {
	Entries int      `json:"entries"`
	Hits    uint64   `json:"hits"`
	Misses  uint64   `json:"misses"`
	Keys    []string `json:"keys"`
}

// Stats returns the entry count, hit/miss counters, and key list.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses, Keys: keys}
}
