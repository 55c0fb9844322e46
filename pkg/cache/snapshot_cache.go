package cache

import (
	"sync"
	"time"
)

type entry struct {
	value      interface{}
	expiration int64
}

// SnapshotCache is a TTL cache for venue snapshots that change slowly
// relative to how often the broker reads them (spot metadata, token
// maps). A zero TTL stores the value without expiry.
type SnapshotCache struct {
	entries sync.Map
}

// NewSnapshotCache creates a cache and starts its sweeper.
func NewSnapshotCache() *SnapshotCache {
	c := &SnapshotCache{}
	go c.sweep()
	return c
}

// Set stores a value under key for the given TTL.
func (c *SnapshotCache) Set(key string, value interface{}, ttl time.Duration) {
	expiration := int64(0)
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}
	c.entries.Store(key, &entry{value: value, expiration: expiration})
}

// Get returns the cached value, or false when absent or expired.
func (c *SnapshotCache) Get(key string) (interface{}, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if e.expiration > 0 && time.Now().UnixNano() > e.expiration {
		c.entries.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Delete removes one key.
func (c *SnapshotCache) Delete(key string) {
	c.entries.Delete(key)
}

// Clear removes every key.
func (c *SnapshotCache) Clear() {
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
}

// sweep drops expired entries so abandoned keys do not accumulate.
func (c *SnapshotCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now().UnixNano()
		c.entries.Range(func(key, value interface{}) bool {
			e := value.(*entry)
			if e.expiration > 0 && now > e.expiration {
				c.entries.Delete(key)
			}
			return true
		})
	}
}
