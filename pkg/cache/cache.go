// Package cache provides the process-lifetime result cache the
// orchestrator uses for deduplication and sealed-result sharing. Entries
// are replace-only: a key is either absent or holds one complete sealed
// envelope, never a partial update.
package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/vitalview/vitalcore/pkg/domain"
	"github.com/vitalview/vitalcore/pkg/membrane"
)

const keyPrefix = "core/orchestrator"

// Key builds the canonical cache key for one (domain, mode, params)
// combination. Params are serialized as JSON with sorted map keys, so
// logically equal parameter sets share an entry.
func Key(key domain.Key, demo bool, params any) string {
	mode := "live"
	if demo {
		mode = "demo"
	}

	serialized := "null"
	if params != nil {
		if data, err := json.Marshal(params); err == nil {
			serialized = string(data)
		} else {
			// Unserializable params still need a stable key.
			serialized = fmt.Sprintf("%#v", params)
		}
	}

	return strings.Join([]string{keyPrefix, string(key), mode, serialized}, "/")
}

// ResultCache is an in-memory cache of sealed envelopes. It is the only
// resource intentionally shared across widgets requesting the same key.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*membrane.Sealed
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{entries: make(map[string]*membrane.Sealed)}
}

// Get returns the cached envelope for the key, if any.
func (c *ResultCache) Get(key string) (*membrane.Sealed, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sealed, ok := c.entries[key]
	return sealed, ok
}

// Set replaces the entry for the key.
func (c *ResultCache) Set(key string, sealed *membrane.Sealed) {
	c.mu.Lock()
	c.entries[key] = sealed
	c.mu.Unlock()
}

// Invalidate removes the entry for the key.
func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateDomain removes every entry for the given vital-sign domain,
// demo and live alike.
func (c *ResultCache) InvalidateDomain(key domain.Key) {
	prefix := keyPrefix + "/" + string(key) + "/"
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
