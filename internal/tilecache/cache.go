// Package tilecache is a bounded, refcounted, linearizable cache of decoded
// tile pixel buffers keyed on (backend handle, level, col, row, channel), per
// spec.md §4.D/§5. Eviction skips entries currently pinned by a reader;
// concurrent decode misses on the same key are single-flighted so only the
// first arrival decodes and late arrivals join its result.
//
// Grounded on the teacher's internal/cache/memory_cache.go (LRU shape) and
// openslide's _openslide_cache_get/put pin/unref contract.
package tilecache

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Key identifies one decoded tile. Handle distinguishes backends (and
// slides) that otherwise share (Level, Col, Row, Channel) coordinates;
// callers pass a stable, comparable identifier for the backend they are
// reading from.
type Key struct {
	Handle  uintptr
	Level   uint32
	Col     uint32
	Row     uint32
	Channel uint32
}

type entry struct {
	value    []byte
	refcount int32
}

// Cache is a bounded LRU of decoded tile buffers with refcount-aware
// eviction and single-flighted fills.
type Cache struct {
	mu    sync.Mutex
	store *lru.Cache[Key, *entry]
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a Cache holding at most maxEntries decoded tiles.
func New(maxEntries int) (*Cache, error) {
	c := &Cache{}
	store, err := lru.NewWithEvict[Key, *entry](maxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("tilecache: %w", err)
	}
	c.store = store
	return c, nil
}

// onEvict runs when capacity (or Purge) forces an eviction, on the goroutine
// whose store.Add/Purge call triggered it, after golang-lru has released its
// internal lock; it takes c.mu itself, so no caller may hold c.mu around
// store.Add or store.Purge. A pinned entry cannot be dropped, so it is re-added — this
// temporarily lets the cache exceed maxEntries rather than hand out a
// buffer a reader still holds a reference to.
func (c *Cache) onEvict(key Key, e *entry) {
	c.mu.Lock()
	pinned := e.refcount > 0
	c.mu.Unlock()
	if pinned {
		c.store.Add(key, e)
	}
}

// Release is returned by Acquire/Fill and must be called exactly once when
// the caller is done reading the tile buffer.
type Release func()

// Acquire returns the cached buffer for key, pinning it, or ok=false on a
// miss. Callers must call the returned Release when done.
func (c *Cache) Acquire(key Key) (value []byte, release Release, ok bool) {
	c.mu.Lock()
	e, found := c.store.Get(key)
	if found {
		e.refcount++
	}
	c.mu.Unlock()

	if !found {
		c.misses.Add(1)
		return nil, nil, false
	}
	c.hits.Add(1)
	return e.value, c.releaseFunc(e), true
}

// Fill returns the cached buffer for key if present, otherwise calls decode
// exactly once even under concurrent callers for the same key, inserts the
// result, and returns it pinned. Every caller — the singleflight leader and
// every follower — acquires its own independent pin after the shared decode
// resolves, since singleflight.Do hands the same return value to all
// waiters and a shared Release would let one waiter's release unpin a
// buffer another waiter is still using.
func (c *Cache) Fill(key Key, decode func() ([]byte, error)) (value []byte, release Release, err error) {
	if v, rel, ok := c.Acquire(key); ok {
		return v, rel, nil
	}

	skey := fmt.Sprintf("%+v", key)
	_, err, _ = c.group.Do(skey, func() (any, error) {
		if c.store.Contains(key) {
			return nil, nil
		}

		data, err := decode()
		if err != nil {
			return nil, err
		}

		c.store.Add(key, &entry{value: data})
		return nil, nil
	})
	if err != nil {
		return nil, nil, err
	}

	// Pin without going through Acquire: the Acquire at the top of Fill has
	// already counted this call's one hit or miss.
	c.mu.Lock()
	e, ok := c.store.Get(key)
	if ok {
		e.refcount++
	}
	c.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("tilecache: entry for %+v vanished before it could be read", key)
	}
	return e.value, c.releaseFunc(e), nil
}

func (c *Cache) releaseFunc(e *entry) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if e.refcount > 0 {
				e.refcount--
			}
			c.mu.Unlock()
		})
	}
}

// Stats reports cumulative hit/miss counts for metrics export.
type Stats struct {
	Hits   int64
	Misses int64
	Len    int
}

func (c *Cache) StatsSnapshot() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Len:    c.store.Len(),
	}
}

// Clear evicts every unpinned entry.
func (c *Cache) Clear() {
	c.store.Purge()
}
