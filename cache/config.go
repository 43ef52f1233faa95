package cache

import "time"

// Config configures a Cache.
type Config struct {
	// DefaultTTL applies to entries stored without an explicit TTL.
	// Defaults to 5 minutes.
	DefaultTTL time.Duration

	// MaxTTL clamps per-entry TTL overrides. Zero means no clamp.
	MaxTTL time.Duration

	// MaxEntries bounds the entry count; inserting beyond it evicts the
	// least recently used entry. Defaults to 1024.
	MaxEntries int

	// MaxMemoryBytes bounds the estimated memory footprint. Crossing it
	// evicts the oldest entries until usage drops to 80% of the budget.
	// Sizes are estimated from the JSON encoding of each value plus its
	// key, so this is a budget, not exact accounting. Zero disables the
	// budget.
	MaxMemoryBytes int64

	// SweepInterval is how often the background sweeper removes expired
	// entries. Expiry is also enforced lazily on reads. Defaults to 1
	// minute; negative disables the sweeper.
	SweepInterval time.Duration

	// Store, when set, persists a snapshot after every sweep and on
	// Close, and restores one on construction. Persistence failures are
	// non-fatal: the in-memory cache keeps working without it.
	Store Store

	// MaxSnapshotBytes bounds the encoded snapshot size. The most
	// recently accessed entries are kept; the rest are left out of the
	// snapshot (not evicted). Zero means no bound.
	MaxSnapshotBytes int64

	// OnPersistError is invoked when saving or restoring a snapshot
	// fails. Nil drops the error.
	OnPersistError func(error)
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:    5 * time.Minute,
		MaxTTL:        time.Hour,
		MaxEntries:    1024,
		SweepInterval: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 5 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1024
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	return c
}

// EffectiveTTL returns the TTL an entry would receive: the override when
// positive, otherwise DefaultTTL, clamped to MaxTTL when one is set.
func (c Config) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = c.DefaultTTL
	}
	if c.MaxTTL > 0 && ttl > c.MaxTTL {
		ttl = c.MaxTTL
	}
	return ttl
}
