// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache provides the LRU used by query runners to keep prepared
// statements open per connection.
package cache

import (
	"container/list"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 256

// Cache is a string-keyed LRU of closable values. Values dropped from the
// cache, by eviction, replacement, Remove or Clear, are closed.
type Cache[V io.Closer] struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type entry[V io.Closer] struct {
	key   string
	value V
}

// New returns an empty cache holding at most capacity values.
func New[V io.Closer](capacity int) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[V]{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the value stored under key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return elem.Value.(*entry[V]).value, true
}

// Put stores value under key. A replaced value or an evicted least recently
// used value is closed and its close error returned.
func (c *Cache[V]) Put(key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		e := elem.Value.(*entry[V])
		old := e.value
		e.value = value
		return old.Close()
	}

	var err error
	if c.order.Len() >= c.capacity {
		err = c.evictOldest()
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value})
	return err
}

// must hold c.mu
func (c *Cache[V]) evictOldest() error {
	elem := c.order.Back()
	if elem == nil {
		return nil
	}
	c.order.Remove(elem)
	e := elem.Value.(*entry[V])
	delete(c.items, e.key)
	c.evictions.Add(1)
	return e.value.Close()
}

// Remove closes and drops the value stored under key, if any.
func (c *Cache[V]) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil
	}
	c.order.Remove(elem)
	delete(c.items, key)
	return elem.Value.(*entry[V]).value.Close()
}

// Len reports the number of cached values.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear closes every cached value and empties the cache. All close errors
// are joined.
func (c *Cache[V]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if err := elem.Value.(*entry[V]).value.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	return errors.Join(errs...)
}

// Stats holds cache counters.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64 // hits / (hits + misses)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	size := c.Len()
	hits := c.hits.Load()
	misses := c.misses.Load()

	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Size:      size,
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   rate,
	}
}
