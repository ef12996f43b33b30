package memory

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a user's ranked memory list stays servable.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	items     []Item
	updatedAt time.Time
}

// Cache is a per-user read-through cache of ranked memory lists. Entries
// are replaced whole; a stale entry is deleted on read, never refreshed
// in place. The mutex guards the maps, entries are immutable.
//
// Every write to a user's entry bumps that user's generation. Writers that
// built their list from an earlier read use PutIfGeneration so a slow
// writer cannot overwrite newer data.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	gens    map[string]uint64
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the user's items if the entry is younger than the TTL.
// Stale entries are evicted.
func (c *Cache) Get(userID string) ([]Item, bool) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.updatedAt) < c.ttl {
		return e.items, true
	}

	c.mu.Lock()
	// only evict the entry we saw; a concurrent Put may have replaced it
	if cur, ok := c.entries[userID]; ok && cur.updatedAt.Equal(e.updatedAt) {
		delete(c.entries, userID)
	}
	c.mu.Unlock()
	return nil, false
}

// Generation returns the user's current write generation. Read it before
// loading the data that will later be passed to PutIfGeneration.
func (c *Cache) Generation(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.gens[userID]; !ok {
		c.gens[userID] = 0
	}
	return c.gens[userID]
}

// Put replaces the user's entry with a copy of items.
func (c *Cache) Put(userID string, items []Item) {
	cp := copyItems(items)
	c.mu.Lock()
	c.put(userID, cp)
	c.mu.Unlock()
}

// PutIfGeneration stores items only if no Put, Invalidate or Clear touched
// the user since gen was read. It reports whether the entry was written.
func (c *Cache) PutIfGeneration(userID string, gen uint64, items []Item) bool {
	cp := copyItems(items)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return false
	}
	c.put(userID, cp)
	return true
}

func (c *Cache) put(userID string, items []Item) {
	c.entries[userID] = cacheEntry{items: items, updatedAt: c.now()}
	c.gens[userID]++
}

func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.gens[userID]++
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	for id := range c.gens {
		c.gens[id]++
	}
	c.mu.Unlock()
}

func copyItems(items []Item) []Item {
	cp := make([]Item, len(items))
	copy(cp, items)
	return cp
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
