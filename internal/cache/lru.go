// Package cache provides the small generic LRU used to serve repeated
// month reads without a store round trip.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache holds up to maxSize values for at most ttl, evicting the
// least recently used entry when full.
type LRUCache[T any] struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	order *list.List
	index map[string]*list.Element
}

type entry[T any] struct {
	key     string
	value   T
	staleAt time.Time
}

func (e *entry[T]) stale(now time.Time) bool {
	return now.After(e.staleAt)
}

func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		cap:   maxSize,
		ttl:   ttl,
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.index[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[T])
	if e.stale(time.Now()) {
		c.drop(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.index[key]; ok {
		e := el.Value.(*entry[T])
		e.value = value
		e.staleAt = now.Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	c.index[key] = c.order.PushFront(&entry[T]{
		key:     key,
		value:   value,
		staleAt: now.Add(c.ttl),
	})
	for c.order.Len() > c.cap {
		c.drop(c.order.Back())
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CleanExpired removes all expired entries and reports how many.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry[T]).stale(now) {
			c.drop(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *LRUCache[T]) drop(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}
