package cache

import (
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")

	// ErrValueTooLarge is returned by Set when a single value cannot fit
	// inside the configured memory budget.
	ErrValueTooLarge = errors.New("cache: value exceeds memory budget")

	// ErrSnapshotCorrupt is returned by Restore when persisted state
	// cannot be decoded. The cache is left empty and usable.
	ErrSnapshotCorrupt = errors.New("cache: snapshot is corrupt")

	// ErrNoSnapshot is returned by a Store when nothing has been saved
	// yet.
	ErrNoSnapshot = errors.New("cache: no snapshot available")
)

// ValidateKey checks if a key is usable for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

// EntryOption customizes a single Set or GetOrCompute entry.
type EntryOption func(*entryOptions)

type entryOptions struct {
	ttl  time.Duration
	tags []string
}

// WithTTL overrides the configured default TTL for this entry. The value
// is still clamped to the cache's MaxTTL.
func WithTTL(d time.Duration) EntryOption {
	return func(o *entryOptions) { o.ttl = d }
}

// WithTags attaches invalidation tags to the entry. InvalidateTag removes
// every entry carrying a given tag in one call.
func WithTags(tags ...string) EntryOption {
	return func(o *entryOptions) { o.tags = append(o.tags, tags...) }
}
