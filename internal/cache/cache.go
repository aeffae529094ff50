// Package cache provides the time-boxed read cache for query results.
// Entries are keyed by (collection, query fingerprint) and invalidated
// by collection on every write, so readers never observe a snapshot
// older than the TTL or the last local mutation.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/snapdoc/snapdoc/internal/value"
)

const DefaultSize = 256

// Cache is an expirable LRU over cached record slices. A nil or
// zero-TTL cache is disabled and every operation is a no-op.
type Cache struct {
	lru *expirable.LRU[string, []value.Record]
}

// New creates a cache with the given capacity and TTL. ttl <= 0 disables
// caching entirely.
func New(size int, ttl time.Duration) *Cache {
	if ttl <= 0 {
		return &Cache{}
	}
	if size <= 0 {
		size = DefaultSize
	}
	return &Cache{lru: expirable.NewLRU[string, []value.Record](size, nil, ttl)}
}

// Enabled reports whether the cache stores anything at all.
func (c *Cache) Enabled() bool {
	return c != nil && c.lru != nil
}

// Key builds the cache key for a query fingerprint scoped to one
// collection. The separator cannot appear in collection names produced
// by the engine, so invalidation by prefix is unambiguous.
func Key(collection, fingerprint string) string {
	return collection + "\x00" + fingerprint
}

// Get returns the cached records for a key, if present and fresh.
func (c *Cache) Get(key string) ([]value.Record, bool) {
	if !c.Enabled() {
		return nil, false
	}
	return c.lru.Get(key)
}

// Set stores records under a key.
func (c *Cache) Set(key string, records []value.Record) {
	if !c.Enabled() {
		return
	}
	c.lru.Add(key, records)
}

// InvalidateCollection drops every cached entry scoped to the named
// collection.
func (c *Cache) InvalidateCollection(collection string) {
	if !c.Enabled() {
		return
	}
	prefix := collection + "\x00"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// InvalidateAll drops everything. Used when the snapshot file changes
// under our feet (external writer).
func (c *Cache) InvalidateAll() {
	if !c.Enabled() {
		return
	}
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if !c.Enabled() {
		return 0
	}
	return c.lru.Len()
}
