// Package cache implements the sharded hot cache (component C, §4.4.3):
// TTL-bounded entries, lazy plus periodic eviction, and memory-pressure
// cleanup that writes dirty entries through to the blob store before
// dropping anything.
//
// Grounded on aimodule.Cache (single-map, TTL, background cleanup
// goroutine), expanded from one flat map into N shards — the same N as
// the instance registry (pkg/shard) — and given the write-through/
// read-through behavior §4.4.3/§4.4.4 require that a pure response cache
// doesn't need.
package cache

import (
	"sync"
	"time"

	"github.com/fluxorio/fsmruntime/pkg/shard"
)

// Entry is one cached value (§3.1's Cache Entry).
type Entry struct {
	TableID   string
	Key       string
	Value     interface{}
	ExpiresAt time.Time
	InsertedAt time.Time
	dirty     bool // true until persisted to the blob store
}

// Persister is the blob-store write/read-through target. In production it
// is implemented by pkg/registry's snapshotPersister, which wraps
// *pkg/store.Blob (store.Blob's methods are snapshot-typed; Cache stays
// value-agnostic by depending on this interface instead of importing store
// directly, avoiding a cache<->store coupling neither side needs).
type Persister interface {
	Persist(tableID, key string, value interface{}) error
	Load(tableID, key string) (interface{}, bool, error)
}

type shardMap struct {
	mu      sync.Mutex
	entries map[string]*Entry // key = tableID + "\x00" + key
}

// Cache is the sharded TTL cache. Shards are sized to match the instance
// registry's shard count.
type Cache struct {
	shards      []*shardMap
	n           int
	ttl         time.Duration
	thresholdBytes int64
	persister   Persister

	stopCh chan struct{}
}

// New builds a Cache with n shards, entryTTL default lifetime, a periodic
// sweep interval, a memory-pressure threshold in bytes, and an optional
// Persister for read-through/write-through (nil disables both).
func New(n int, entryTTL, sweepInterval time.Duration, thresholdBytes int64, persister Persister) *Cache {
	shards := make([]*shardMap, n)
	for i := range shards {
		shards[i] = &shardMap{entries: make(map[string]*Entry)}
	}
	c := &Cache{shards: shards, n: n, ttl: entryTTL, thresholdBytes: thresholdBytes, persister: persister, stopCh: make(chan struct{})}
	go c.sweepLoop(sweepInterval)
	return c
}

// Close stops the background sweep goroutine.
func (c *Cache) Close() { close(c.stopCh) }

func (c *Cache) shardFor(tableID, key string) *shardMap {
	return c.shards[shard.Of(tableID+key, c.n)]
}

func entryKey(tableID, key string) string { return tableID + "\x00" + key }

// Get is read-through: a cache hit returns immediately; a miss consults
// the persister (if set) and repopulates the cache with a fresh TTL
// (§4.4.4's "cache misses that resolve from disk must populate with a
// fresh TTL").
func (c *Cache) Get(tableID, key string) (interface{}, bool) {
	s := c.shardFor(tableID, key)
	ek := entryKey(tableID, key)

	s.mu.Lock()
	e, ok := s.entries[ek]
	if ok && time.Now().Before(e.ExpiresAt) {
		v := e.Value
		s.mu.Unlock()
		return v, true
	}
	s.mu.Unlock()

	if c.persister == nil {
		return nil, false
	}
	v, found, err := c.persister.Load(tableID, key)
	if err != nil || !found {
		return nil, false
	}
	c.putLocal(tableID, key, v, false)
	return v, true
}

// Put is write-through: the value lands in the cache immediately, and is
// persisted synchronously if persistImmediately is set, or marked dirty
// otherwise; a dirty entry is written through by the next pressure-cleanup
// pass, or by the sweep that finds it expired, before it is dropped (§4.4.3).
func (c *Cache) Put(tableID, key string, value interface{}, persistImmediately bool) error {
	c.putLocal(tableID, key, value, !persistImmediately)
	if persistImmediately && c.persister != nil {
		return c.persister.Persist(tableID, key, value)
	}
	return nil
}

func (c *Cache) putLocal(tableID, key string, value interface{}, dirty bool) {
	s := c.shardFor(tableID, key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey(tableID, key)] = &Entry{
		TableID: tableID, Key: key, Value: value,
		ExpiresAt: time.Now().Add(c.ttl), InsertedAt: time.Now(), dirty: dirty,
	}
}

// Delete removes an entry from both the cache and, if a persister is
// configured, the backing store (§4.4.4: "deletion removes both cache and
// blob").
func (c *Cache) Delete(tableID, key string) error {
	s := c.shardFor(tableID, key)
	s.mu.Lock()
	delete(s.entries, entryKey(tableID, key))
	s.mu.Unlock()
	if c.persister != nil {
		return c.persister.Persist(tableID, key, nil)
	}
	return nil
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired()
			if c.estimateBytes() > c.thresholdBytes {
				c.cleanupUnderPressure()
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) evictExpired() {
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if now.After(e.ExpiresAt) {
				if e.dirty && c.persister != nil {
					if err := c.persister.Persist(e.TableID, e.Key, e.Value); err != nil {
						continue // keep it until it can be written through
					}
				}
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}

// estimateBytes is a coarse proxy (entry count) standing in for a real
// byte-size accounting; exact sizing depends on value types this package
// is intentionally agnostic about.
func (c *Cache) estimateBytes() int64 {
	var n int64
	for _, s := range c.shards {
		s.mu.Lock()
		n += int64(len(s.entries))
		s.mu.Unlock()
	}
	return n * 256
}

// cleanupUnderPressure runs the §4.4.3 three-step pass: persist dirty
// entries, drop expired ones, then if still over threshold evict
// oldest-inserted entries per shard down to 50% of the threshold
// ("emergency cleanup").
func (c *Cache) cleanupUnderPressure() {
	if c.persister != nil {
		for _, s := range c.shards {
			s.mu.Lock()
			for _, e := range s.entries {
				if e.dirty {
					if err := c.persister.Persist(e.TableID, e.Key, e.Value); err == nil {
						e.dirty = false
					}
				}
			}
			s.mu.Unlock()
		}
	}

	c.evictExpired()

	if c.estimateBytes() <= c.thresholdBytes {
		return
	}

	target := c.thresholdBytes / 2
	for c.estimateBytes() > target {
		evictedAny := false
		for _, s := range c.shards {
			s.mu.Lock()
			oldestKey, oldestTime := "", time.Time{}
			for k, e := range s.entries {
				if e.dirty && c.persister != nil {
					continue // its write-through failed above; never drop it unpersisted
				}
				if oldestKey == "" || e.InsertedAt.Before(oldestTime) {
					oldestKey, oldestTime = k, e.InsertedAt
				}
			}
			if oldestKey != "" {
				delete(s.entries, oldestKey)
				evictedAny = true
			}
			s.mu.Unlock()
		}
		if !evictedAny {
			break
		}
	}
}
