// Package cache provides an expiring LRU cache that loads on miss and coalesces
// concurrent loads for the same key.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// LoaderCache caches values by string key for at most ttl. On a miss only one
// goroutine runs the loader for a key; concurrent callers wait for and share
// its result. A load that started before Invalidate never repopulates the key.
type LoaderCache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group

	mu          sync.Mutex
	epoch       uint64
	generations map[string]uint64
}

// token identifies the cache state a load started from
type token struct {
	epoch, gen uint64
}

// NewLoaderCache creates a loader cache holding at most maxEntries values, each
// for at most ttl
func NewLoaderCache[V any](maxEntries int, ttl time.Duration) *LoaderCache[V] {
	return &LoaderCache[V]{
		lru:         expirable.NewLRU[string, V](maxEntries, nil, ttl),
		generations: make(map[string]uint64),
	}
}

// Get returns the cached value for key, loading it on miss. hit reports whether
// the value came from the cache. Load errors are not cached.
func (c *LoaderCache[V]) Get(ctx context.Context, key string, load func(context.Context, string) (V, error)) (v V, hit bool, err error) {
	if cached, ok := c.lru.Get(key); ok {
		return cached, true, nil
	}

	tok := c.token(key)
	// Callers arriving after an invalidation start a new flight rather than
	// joining one that may be reading pre-invalidation state.
	flight := key + "\x00" + strconv.FormatUint(tok.epoch, 10) + "." + strconv.FormatUint(tok.gen, 10)

	val, err, _ := c.group.Do(flight, func() (any, error) {
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return nil, loadErr
		}
		c.mu.Lock()
		if c.epoch == tok.epoch && c.generations[key] == tok.gen {
			c.lru.Add(key, loaded)
		}
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return val.(V), false, nil
}

func (c *LoaderCache[V]) token(key string) token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return token{epoch: c.epoch, gen: c.generations[key]}
}

// Invalidate removes the entry for key and discards any load in flight for it
func (c *LoaderCache[V]) Invalidate(key string) {
	c.mu.Lock()
	c.generations[key]++
	c.lru.Remove(key)
	c.mu.Unlock()
}

// InvalidateAll removes all entries and discards every load in flight
func (c *LoaderCache[V]) InvalidateAll() {
	c.mu.Lock()
	c.epoch++
	c.lru.Purge()
	c.mu.Unlock()
}

// Len returns the number of entries in the cache
func (c *LoaderCache[V]) Len() int {
	return c.lru.Len()
}
