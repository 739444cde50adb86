// Package cache keeps recent address-book verdicts so repeated renders of
// mail from the same sender do not hit the contacts service each time.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// Status represents the cache lookup result.
type Status string

const (
	StatusHit     Status = "hit"
	StatusMiss    Status = "miss"
	StatusExpired Status = "expired"
)

// Entry is the cached answer for one address.
type Entry struct {
	Found     bool
	ExpiresAt time.Time
}

// Cache is a thread-safe, in-memory LRU cache with TTL and a bound on the
// number of entries. Keys are addresses and compare case-insensitively.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	ttl        time.Duration
	maxEntries int
	now        func() time.Time // injectable for testing
}

type cacheItem struct {
	key   string
	entry Entry
}

// New creates a cache with the given TTL holding at most maxEntries
// addresses. maxEntries <= 0 means one entry.
func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func key(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Get returns the entry for addr. Expired entries are returned with
// StatusExpired and are not refreshed in LRU order.
func (c *Cache) Get(addr string) (*Entry, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key(addr)]
	if !ok {
		return nil, StatusMiss
	}

	item := elem.Value.(*cacheItem)
	if c.now().After(item.entry.ExpiresAt) {
		e := item.entry
		return &e, StatusExpired
	}

	c.order.MoveToFront(elem)
	e := item.entry
	return &e, StatusHit
}

// Put stores the verdict for addr. Evicts LRU entries if necessary.
func (c *Cache) Put(addr string, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(addr)
	entry := Entry{Found: found, ExpiresAt: c.now().Add(c.ttl)}

	if elem, ok := c.items[k]; ok {
		elem.Value.(*cacheItem).entry = entry
		c.order.MoveToFront(elem)
		return
	}

	c.items[k] = c.order.PushFront(&cacheItem{key: k, entry: entry})
	c.evict()
}

// Delete drops addr from the cache.
func (c *Cache) Delete(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key(addr)]; ok {
		delete(c.items, elem.Value.(*cacheItem).key)
		c.order.Remove(elem)
	}
}

// evict removes LRU entries until the bound holds. Must be called with mu held.
func (c *Cache) evict() {
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		delete(c.items, oldest.Value.(*cacheItem).key)
		c.order.Remove(oldest)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
