package client

import (
	"time"

	"github.com/vocablens/callops/cache"
)

type callOptions struct {
	noCache   bool
	entryOpts []cache.EntryOption
}

// CallOption adjusts a single Call.
type CallOption func(*callOptions)

// WithTTL overrides the cache TTL for this call's result.
func WithTTL(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.entryOpts = append(o.entryOpts, cache.WithTTL(d))
	}
}

// WithTags attaches invalidation tags to this call's cached result.
func WithTags(tags ...string) CallOption {
	return func(o *callOptions) {
		o.entryOpts = append(o.entryOpts, cache.WithTags(tags...))
	}
}

// NoCache bypasses the cache for this call; the result is not stored.
func NoCache() CallOption {
	return func(o *callOptions) { o.noCache = true }
}
