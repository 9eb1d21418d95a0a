package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	timestamp time.Time
	ttl       time.Duration
}

type slot struct {
	key string
	ts  time.Time
}

// Cache is a process-local TTL map. Entries expire on read once their ttl has
// elapsed; the oldest entries are dropped when capacity is exceeded.
type Cache struct {
	mu       sync.Mutex
	items    map[string]entry
	order    []slot
	capacity int
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache holding at most capacity entries.
func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	c := &Cache{
		items:    make(map[string]entry, capacity),
		order:    make([]slot, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key if it has not expired.
func (c *Cache) Get(key string) (any, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if now.Sub(e.timestamp) >= e.ttl {
		delete(c.items, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl is a no-op.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry{value: value, timestamp: now, ttl: ttl}
	c.order = append(c.order, slot{key: key, ts: now})
	c.compact(now)
}

// Invalidate removes the given keys.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		delete(c.items, k)
	}
}

// Clear drops every entry and returns how many were held.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	c.items = make(map[string]entry, c.capacity)
	c.order = c.order[:0]
	return n
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) compact(now time.Time) {
	if len(c.order) > 2*c.capacity {
		c.reindex()
	}
	for len(c.order) > 0 {
		oldest := c.order[0]
		e, ok := c.items[oldest.key]
		live := ok && e.timestamp.Equal(oldest.ts)
		if live && len(c.items) <= c.capacity && now.Sub(e.timestamp) < e.ttl {
			return
		}
		c.order = c.order[1:]
		if live {
			delete(c.items, oldest.key)
		}
	}
}

// reindex drops order slots left behind by overwrites and invalidations.
func (c *Cache) reindex() {
	live := c.order[:0]
	for _, s := range c.order {
		if e, ok := c.items[s.key]; ok && e.timestamp.Equal(s.ts) {
			live = append(live, s)
		}
	}
	c.order = live
}

// Typed reads a cached value of type T. A stored value of another type is a miss.
func Typed[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
