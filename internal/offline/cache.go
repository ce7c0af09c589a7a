// Package offline is the offline cache worker: a caching proxy in front of
// the data service that serves shell assets cache-first, API reads
// network-first with a bounded staleness fallback, and records failed
// mutations for background replay.
package offline

import (
	"net/http"
	"sync"
)

// CachedAtHeader stamps stored API responses with the capture time in epoch
// milliseconds. Internal convention, never part of the upstream contract.
const CachedAtHeader = "sw-cached-at"

type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

// responseCache is one named, versioned response cache.
type responseCache struct {
	name string

	mu      sync.RWMutex
	entries map[string]*cachedResponse
}

func newResponseCache(name string) *responseCache {
	return &responseCache{name: name, entries: make(map[string]*cachedResponse)}
}

func (c *responseCache) match(key string) (*cachedResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *responseCache) put(key string, r *cachedResponse) {
	c.mu.Lock()
	c.entries[key] = r
	c.mu.Unlock()
}

func (c *responseCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cacheRegistry tracks every named cache ever opened in this process, so
// activation can drop the ones whose version no longer matches.
type cacheRegistry struct {
	mu     sync.Mutex
	caches map[string]*responseCache
}

func newCacheRegistry() *cacheRegistry {
	return &cacheRegistry{caches: make(map[string]*responseCache)}
}

func (r *cacheRegistry) open(name string) *responseCache {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[name]; ok {
		return c
	}
	c := newResponseCache(name)
	r.caches[name] = c
	return c
}

// purgeExcept deletes every cache whose name is not in keep, returning the
// dropped names.
func (r *cacheRegistry) purgeExcept(keep ...string) []string {
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []string
	for name := range r.caches {
		if !keepSet[name] {
			delete(r.caches, name)
			dropped = append(dropped, name)
		}
	}
	return dropped
}
