package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// opaqueValueSize is charged against the memory budget for values that
// cannot be JSON encoded.
const opaqueValueSize = 256

type entry struct {
	value      any
	expiresAt  time.Time
	createdAt  time.Time
	accessedAt time.Time
	size       int64
	tags       []string
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

func (e *entry) hasTag(tag string) bool {
	for _, t := range e.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Cache is a bounded in-memory cache. Entries expire by TTL, the entry
// count is bounded with least-recently-used eviction, and an optional
// memory budget evicts the oldest entries when crossed. Entries can carry
// tags for group invalidation.
//
// All methods are safe for concurrent use. A single lock guards the
// store; eviction decisions need a coherent view of recency and age
// across every entry, so the cache is deliberately not sharded.
type Cache struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]*entry
	bytes   int64

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	group singleflight.Group

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries     int
	MemoryBytes int64
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

// New creates a cache and starts its background sweeper unless the
// config disables it. When a Store is configured, its last snapshot is
// restored first; a corrupt or unreadable snapshot is reported through
// OnPersistError and the cache starts empty. Call Close to stop the
// sweeper.
func New(cfg Config) *Cache {
	c := &Cache{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	if c.cfg.Store != nil {
		if err := c.LoadFrom(context.Background(), c.cfg.Store); err != nil && !errors.Is(err, ErrNoSnapshot) {
			c.persistErr(err)
		}
	}
	if c.cfg.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweep()
	}
	return c
}

// Get retrieves a value. Returns (nil, false) on miss or expiry; expired
// entries are removed on the spot. A hit refreshes the entry's recency.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expired(now) {
		c.removeLocked(key, e)
		c.expirations++
		c.misses++
		return nil, false
	}
	e.accessedAt = now
	c.hits++
	return e.value, true
}

// Has reports whether key holds a live entry, without refreshing its
// recency.
func (c *Cache) Has(key string) bool {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return ok && !e.expired(now)
}

// Set stores a value. The TTL comes from WithTTL or the configured
// default, clamped to MaxTTL. Storing may evict other entries to honor
// the entry and memory bounds; a value that alone exceeds the memory
// budget is rejected with ErrValueTooLarge.
func (c *Cache) Set(_ context.Context, key string, value any, opts ...EntryOption) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	var o entryOptions
	for _, opt := range opts {
		opt(&o)
	}

	size := entrySize(key, value)
	if c.cfg.MaxMemoryBytes > 0 && size > c.cfg.MaxMemoryBytes {
		return ErrValueTooLarge
	}

	now := time.Now()
	e := &entry{
		value:      value,
		expiresAt:  now.Add(c.cfg.EffectiveTTL(o.ttl)),
		createdAt:  now,
		accessedAt: now,
		size:       size,
		tags:       o.tags,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.bytes -= old.size
	}
	c.entries[key] = e
	c.bytes += size

	c.enforceCapsLocked(key)
	return nil
}

// GetOrCompute returns the cached value for key, or runs compute to
// produce and store it. Concurrent callers for the same key share a
// single compute; they all receive its value or its error. Nothing is
// stored when compute fails. A computed value too large for the memory
// budget is returned to the caller without being cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (any, error), opts ...EntryOption) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A racing caller may have stored the value while we queued.
		if v, ok := c.Get(ctx, key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		_ = c.Set(ctx, key, v, opts...)
		return v, nil
	})
	return v, err
}

// Delete removes an entry, reporting whether one existed.
func (c *Cache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(key, e)
	return true
}

// InvalidateTag removes every entry carrying tag and returns how many
// were removed.
func (c *Cache) InvalidateTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if e.hasTag(tag) {
			c.removeLocked(k, e)
			n++
		}
	}
	return n
}

// Clear removes all entries. Cumulative counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.bytes = 0
	c.mu.Unlock()
}

// Len returns the number of stored entries, including any not yet
// swept expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the stored keys in no particular order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:     len(c.entries),
		MemoryBytes: c.bytes,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// Close stops the background sweeper and, when a Store is configured,
// saves a final snapshot. The cache stays usable afterwards; expiry is
// then enforced only lazily on reads. Safe to call more than once.
func (c *Cache) Close() {
	persist := false
	c.closeOnce.Do(func() {
		close(c.done)
		persist = c.cfg.Store != nil
	})
	c.wg.Wait()
	if persist {
		c.persist()
	}
}

func (c *Cache) sweep() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.ClearExpired()
			if c.cfg.Store != nil {
				c.persist()
			}
		}
	}
}

func (c *Cache) persist() {
	if err := c.SaveTo(context.Background(), c.cfg.Store); err != nil {
		c.persistErr(err)
	}
}

func (c *Cache) persistErr(err error) {
	if c.cfg.OnPersistError != nil {
		c.cfg.OnPersistError(err)
	}
}

// ClearExpired removes every expired entry immediately and returns how
// many were removed. The background sweeper calls this on its interval;
// callers can force a pass between sweeps.
func (c *Cache) ClearExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(k, e)
			c.expirations++
			n++
		}
	}
	return n
}

// enforceCapsLocked applies the entry-count and memory bounds after an
// insert. justSet is never chosen as a victim.
func (c *Cache) enforceCapsLocked(justSet string) {
	for c.cfg.MaxEntries > 0 && len(c.entries) > c.cfg.MaxEntries {
		victim := c.lruVictimLocked(justSet)
		if victim == "" {
			break
		}
		c.removeLocked(victim, c.entries[victim])
		c.evictions++
	}

	if c.cfg.MaxMemoryBytes > 0 && c.bytes > c.cfg.MaxMemoryBytes {
		// Drain to 80% of the budget so every overflow does not evict
		// exactly one entry and immediately overflow again.
		target := c.cfg.MaxMemoryBytes * 8 / 10
		for c.bytes > target {
			victim := c.oldestVictimLocked(justSet)
			if victim == "" {
				break
			}
			c.removeLocked(victim, c.entries[victim])
			c.evictions++
		}
	}
}

// lruVictimLocked returns the least recently accessed key, skipping skip.
func (c *Cache) lruVictimLocked(skip string) string {
	var victim string
	var oldest time.Time
	for k, e := range c.entries {
		if k == skip {
			continue
		}
		if victim == "" || e.accessedAt.Before(oldest) {
			victim, oldest = k, e.accessedAt
		}
	}
	return victim
}

// oldestVictimLocked returns the key with the earliest creation time,
// skipping skip.
func (c *Cache) oldestVictimLocked(skip string) string {
	var victim string
	var oldest time.Time
	for k, e := range c.entries {
		if k == skip {
			continue
		}
		if victim == "" || e.createdAt.Before(oldest) {
			victim, oldest = k, e.createdAt
		}
	}
	return victim
}

func (c *Cache) removeLocked(key string, e *entry) {
	delete(c.entries, key)
	c.bytes -= e.size
}

// entrySize estimates an entry's footprint from its JSON encoding plus
// the key. Values that cannot be encoded are charged a flat size.
func entrySize(key string, value any) int64 {
	n := int64(len(key))
	if b, err := json.Marshal(value); err == nil {
		n += int64(len(b))
	} else {
		n += opaqueValueSize
	}
	return n
}
