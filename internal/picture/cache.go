package picture

import (
	"context"
	"sync"

	"github.com/fhoech/goopi/internal/oplog"
)

// DefaultCacheBudget is the decode cache memory budget when the caller
// passes none.
const DefaultCacheBudget = 256 << 20

// Cache provides thread-safe read-through caching of decoded pictures
// keyed by file path, bounded by a byte budget.
//
// Concurrent loads of the same path decode at most once; the losers
// block until the winner finishes. When the budget is exceeded, entries
// with the fewest hits are purged first. The entry being loaded is
// never purged.
type Cache struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	pic  *Picture
	err  error
	size int64
	hits int
}

// NewCache creates an empty cache with the given byte budget; budget
// values below 1 fall back to DefaultCacheBudget.
func NewCache(budget int64) *Cache {
	if budget < 1 {
		budget = DefaultCacheBudget
	}
	return &Cache{budget: budget, entries: make(map[string]*cacheEntry)}
}

// Load returns the decoded picture for path, decoding on first use.
// Decode failures are cached as failures: a broken file is reported
// once per run, not re-read per directive.
//
// Callers must not modify the returned Picture.
func (c *Cache) Load(path string, log oplog.Logger) (*Picture, error) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		e = &cacheEntry{}
		c.entries[path] = e
	}
	e.hits++
	c.mu.Unlock()

	e.once.Do(func() {
		e.pic, e.err = DecodeFile(path, log)
		if e.err == nil {
			e.size = e.pic.Size()
			c.account(path, e)
		}
	})
	return e.pic, e.err
}

// LoadContext is Load bounded by ctx. The read and decode themselves
// cannot be interrupted, so when ctx expires first LoadContext returns
// ctx.Err() and the load finishes in the background; a later call for
// the same path picks up the cached result.
func (c *Cache) LoadContext(ctx context.Context, path string, log oplog.Logger) (*Picture, error) {
	type result struct {
		pic *Picture
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pic, err := c.Load(path, log)
		ch <- result{pic, err}
	}()
	select {
	case r := <-ch:
		return r.pic, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// account adds the entry's footprint and purges coldest entries while
// over budget.
func (c *Cache) account(path string, keep *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used += keep.size
	for c.used > c.budget {
		var coldest string
		var victim *cacheEntry
		for p, e := range c.entries {
			if e == keep || e.pic == nil {
				continue
			}
			if victim == nil || e.hits < victim.hits {
				coldest, victim = p, e
			}
		}
		if victim == nil {
			break
		}
		c.used -= victim.size
		delete(c.entries, coldest)
	}
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.used = 0
}
