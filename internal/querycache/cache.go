// Package querycache is an in-memory, key-addressed cache with staleness
// windows and garbage collection. It is constructed explicitly and handed
// to the sync layers, so tests run against isolated instances.
package querycache

import (
	"context"
	"sync"
	"time"
)

// Key addresses one cached query result.
type Key struct {
	Op     string
	UserID string
	Params string
}

type State int

const (
	Missing State = iota
	Fresh
	Stale
)

type entry struct {
	data       any
	fetchedAt  time.Time
	staleAfter time.Duration
	gcAfter    time.Duration
	gcDeadline time.Time
	stale      bool
}

type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	subs    map[Key]map[int]func(any)
	nextSub int

	// Now is replaceable in tests.
	Now func() time.Time
}

func New() *Cache {
	return &Cache{
		entries: make(map[Key]*entry),
		subs:    make(map[Key]map[int]func(any)),
		Now:     time.Now,
	}
}

// Get returns the cached data and whether it is still within its staleness
// window. Reading an entry pushes its GC deadline out: only unobserved
// entries get collected.
func (c *Cache) Get(key Key) (any, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, Missing
	}

	now := c.Now()
	e.gcDeadline = now.Add(e.gcAfter)
	if e.stale || now.Sub(e.fetchedAt) > e.staleAfter {
		return e.data, Stale
	}
	return e.data, Fresh
}

// Set stores data under key with the given staleness window and GC
// lifetime, and notifies subscribers.
func (c *Cache) Set(key Key, data any, staleAfter, gcAfter time.Duration) {
	c.mu.Lock()
	now := c.Now()
	c.entries[key] = &entry{
		data:       data,
		fetchedAt:  now,
		staleAfter: staleAfter,
		gcAfter:    gcAfter,
		gcDeadline: now.Add(gcAfter),
	}
	subs := c.snapshotSubs(key)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(data)
	}
}

// Patch applies fn to the cached data in place, without touching the fetch
// timestamp. A missing entry is left missing. This is the optimistic-update
// half of the patch-plus-invalidate strategy.
func (c *Cache) Patch(key Key, fn func(data any) any) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	e.data = fn(e.data)
	data := e.data
	subs := c.snapshotSubs(key)
	c.mu.Unlock()

	for _, s := range subs {
		s(data)
	}
	return true
}

// Invalidate marks the entry stale so the next reader refetches. The data
// itself stays available until then.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
	c.mu.Unlock()
}

// InvalidateOp marks every entry of the given operation stale, regardless
// of user or parameters.
func (c *Cache) InvalidateOp(op string) {
	c.mu.Lock()
	for key, e := range c.entries {
		if key.Op == op {
			e.stale = true
		}
	}
	c.mu.Unlock()
}

// Subscribe registers fn to run on every Set or Patch of key. The returned
// function unsubscribes.
func (c *Cache) Subscribe(key Key, fn func(data any)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.subs[key] == nil {
		c.subs[key] = make(map[int]func(any))
	}
	c.subs[key][id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs[key], id)
		c.mu.Unlock()
	}
}

func (c *Cache) snapshotSubs(key Key) []func(any) {
	var out []func(any)
	for _, fn := range c.subs[key] {
		out = append(out, fn)
	}
	return out
}

// Collect evicts entries whose GC deadline has passed.
func (c *Cache) Collect() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	evicted := 0
	for key, e := range c.entries {
		if now.After(e.gcDeadline) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// StartGC runs Collect on the given interval until ctx is done.
func (c *Cache) StartGC(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Collect()
			}
		}
	}()
}

// Do is the fetch-or-cache helper all sync layers share: a fresh entry is
// returned as-is, anything else is refetched and stored. A failed refetch
// of a stale entry surfaces the error; staleness never silently serves.
func (c *Cache) Do(ctx context.Context, key Key, staleAfter, gcAfter time.Duration, fetch func(ctx context.Context) (any, error)) (any, error) {
	if data, state := c.Get(key); state == Fresh {
		return data, nil
	}

	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, data, staleAfter, gcAfter)
	return data, nil
}
