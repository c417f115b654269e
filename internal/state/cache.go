package state

import (
	"sync"

	"github.com/sriharshay/web-resource-processor/internal/inspect"
)

// ResultCache holds inspected resources keyed by URL so a URL referenced
// from several places is fetched once and its outcome reused.
type ResultCache struct {
	mu      sync.RWMutex
	results map[string]*inspect.Resource
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{results: make(map[string]*inspect.Resource)}
}

// Store records the inspected resource for its URL, replacing any earlier
// entry.
func (c *ResultCache) Store(res *inspect.Resource) {
	if res == nil {
		return
	}
	c.mu.Lock()
	c.results[res.URL] = res
	c.mu.Unlock()
}

// Load returns the cached resource for url.
func (c *ResultCache) Load(url string) (*inspect.Resource, bool) {
	c.mu.RLock()
	res, ok := c.results[url]
	c.mu.RUnlock()
	return res, ok
}

// Len returns the number of cached resources.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}
