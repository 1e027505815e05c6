package dd

import (
	"strconv"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Cache memoises test outcomes for the configurations of one reduction.
type Cache interface {
	Lookup(config []int) (Outcome, bool)
	Add(config []int, outcome Outcome)
	Clear()
}

// CacheFactory creates a cache for a level whose contents are rendered by build.
type CacheFactory func(build Builder) Cache

// NoCache remembers nothing.
type NoCache struct{}

// NewNoCache returns a cache that never hits.
func NewNoCache(Builder) Cache { return NoCache{} }

// Lookup always misses.
func (NoCache) Lookup([]int) (Outcome, bool) { return Pass, false }

// Add does nothing.
func (NoCache) Add([]int, Outcome) {}

// Clear does nothing.
func (NoCache) Clear() {}

// ConfigCache keys outcomes by the exact list of element indices.
type ConfigCache struct {
	entries map[string]Outcome
}

// NewConfigCache returns an empty ConfigCache.
func NewConfigCache(Builder) Cache {
	return &ConfigCache{entries: make(map[string]Outcome)}
}

// Lookup returns the outcome recorded for config.
func (c *ConfigCache) Lookup(config []int) (Outcome, bool) {
	o, ok := c.entries[configKey(config)]
	return o, ok
}

// Add records the outcome of config.
func (c *ConfigCache) Add(config []int, outcome Outcome) {
	c.entries[configKey(config)] = outcome
}

// Clear drops every entry.
func (c *ConfigCache) Clear() {
	c.entries = make(map[string]Outcome)
}

func configKey(config []int) string {
	var b strings.Builder
	for i, idx := range config {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(idx))
	}
	return b.String()
}

// ContentCache keys outcomes by a BLAKE3 digest of the rendered content, so
// different configurations that render the same text share one entry.
type ContentCache struct {
	build   Builder
	entries map[[32]byte]Outcome
}

// NewContentCache returns an empty ContentCache rendering with build.
func NewContentCache(build Builder) Cache {
	return &ContentCache{build: build, entries: make(map[[32]byte]Outcome)}
}

// Lookup returns the outcome recorded for the content of config.
func (c *ContentCache) Lookup(config []int) (Outcome, bool) {
	o, ok := c.entries[blake3.Sum256(c.build(config))]
	return o, ok
}

// Add records the outcome of the content of config.
func (c *ContentCache) Add(config []int, outcome Outcome) {
	c.entries[blake3.Sum256(c.build(config))] = outcome
}

// Clear drops every entry.
func (c *ContentCache) Clear() {
	c.entries = make(map[[32]byte]Outcome)
}

// SharedCache serialises access to a cache that is not safe for concurrent use.
type SharedCache struct {
	mu    sync.Mutex
	inner Cache
}

// NewSharedCache wraps inner.
func NewSharedCache(inner Cache) *SharedCache {
	return &SharedCache{inner: inner}
}

// Shared decorates a cache factory so every cache it creates can be used by
// several workers at once.
func Shared(factory CacheFactory) CacheFactory {
	return func(build Builder) Cache {
		return NewSharedCache(factory(build))
	}
}

// Inner returns the wrapped cache.
func (s *SharedCache) Inner() Cache {
	return s.inner
}

// Lookup calls the wrapped cache under the lock.
func (s *SharedCache) Lookup(config []int) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Lookup(config)
}

// Add calls the wrapped cache under the lock.
func (s *SharedCache) Add(config []int, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.Add(config, outcome)
}

// Clear calls the wrapped cache under the lock.
func (s *SharedCache) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.Clear()
}
