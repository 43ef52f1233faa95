// Package cache provides a bounded in-memory cache for service call
// results.
//
// # Behavior
//
// Entries expire by TTL, enforced lazily on reads and periodically by a
// background sweeper. The entry count is bounded with least-recently-used
// eviction, and an optional memory budget evicts the oldest entries once
// crossed. Entries can carry tags, so one InvalidateTag call drops every
// result derived from the same upstream data.
//
//	c := cache.New(cache.Config{
//	    DefaultTTL: 10 * time.Minute,
//	    MaxEntries: 500,
//	})
//	defer c.Close()
//
//	_ = c.Set(ctx, key, definition, cache.WithTags("word:resilience"))
//	if v, ok := c.Get(ctx, key); ok {
//	    // hit
//	    _ = v
//	}
//
// GetOrCompute collapses concurrent misses for the same key into a
// single computation:
//
//	v, err := c.GetOrCompute(ctx, key, func(ctx context.Context) (any, error) {
//	    return fetchDefinition(ctx, word)
//	})
//
// # Keys
//
// Keyer derives deterministic keys from service, operation, and call
// parameters; equal parameters produce equal keys regardless of map
// ordering.
//
// # Persistence
//
// Snapshot and Restore serialize the live entries as JSON for warm
// starts. A Store moves snapshots to durable storage: FileStore writes a
// file atomically, RedisStore keeps the snapshot in Redis. Corrupt
// snapshots are discarded with ErrSnapshotCorrupt rather than poisoning
// the cache.
package cache
