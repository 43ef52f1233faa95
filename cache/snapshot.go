package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Store persists encoded cache snapshots.
type Store interface {
	// Save persists an encoded snapshot, replacing any previous one.
	Save(ctx context.Context, data []byte) error

	// Load returns the last saved snapshot, or ErrNoSnapshot when
	// nothing has been saved.
	Load(ctx context.Context) ([]byte, error)
}

// snapshotFile is the persisted shape. Timestamps are unix milliseconds.
type snapshotFile struct {
	Timestamp int64           `json:"timestamp"`
	Entries   []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	Key    string          `json:"key"`
	Data   json.RawMessage `json:"data"`
	Expiry int64           `json:"expiry"`
	Tags   []string        `json:"tags,omitempty"`
}

// Snapshot encodes the live entries as JSON. Entries already expired and
// values that cannot be JSON encoded are left out. When MaxSnapshotBytes
// is set, the most recently accessed entries are kept up to the budget
// and the rest are simply not persisted.
func (c *Cache) Snapshot() ([]byte, error) {
	now := time.Now()

	type liveEntry struct {
		key      string
		raw      json.RawMessage
		expiry   int64
		tags     []string
		accessed time.Time
	}

	c.mu.RLock()
	live := make([]liveEntry, 0, len(c.entries))
	for k, e := range c.entries {
		if e.expired(now) {
			continue
		}
		raw, err := json.Marshal(e.value)
		if err != nil {
			continue
		}
		live = append(live, liveEntry{
			key:      k,
			raw:      raw,
			expiry:   e.expiresAt.UnixMilli(),
			tags:     e.tags,
			accessed: e.accessedAt,
		})
	}
	c.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool {
		return live[i].accessed.After(live[j].accessed)
	})

	snap := snapshotFile{
		Timestamp: now.UnixMilli(),
		Entries:   make([]snapshotEntry, 0, len(live)),
	}
	var used int64
	for _, le := range live {
		// Rough per-entry cost: key, value, and JSON framing.
		cost := int64(len(le.key)+len(le.raw)) + 64
		if c.cfg.MaxSnapshotBytes > 0 && used+cost > c.cfg.MaxSnapshotBytes {
			break
		}
		used += cost
		snap.Entries = append(snap.Entries, snapshotEntry{
			Key:    le.key,
			Data:   le.raw,
			Expiry: le.expiry,
			Tags:   le.tags,
		})
	}

	return json.Marshal(snap)
}

// Restore replaces the cache contents with a snapshot. Entries whose
// expiry has passed are dropped, and the configured bounds are enforced
// on what remains. A snapshot that cannot be decoded empties the cache
// and returns ErrSnapshotCorrupt; the cache stays usable.
//
// Restored values carry JSON types: objects come back as map[string]any,
// arrays as []any, numbers as float64.
func (c *Cache) Restore(data []byte) error {
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		c.Clear()
		return fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	now := time.Now()
	entries := make(map[string]*entry, len(snap.Entries))
	var total int64
	for _, se := range snap.Entries {
		if ValidateKey(se.Key) != nil {
			continue
		}
		exp := time.UnixMilli(se.Expiry)
		if !exp.After(now) {
			continue
		}
		var v any
		if err := json.Unmarshal(se.Data, &v); err != nil {
			continue
		}
		size := entrySize(se.Key, v)
		entries[se.Key] = &entry{
			value:      v,
			expiresAt:  exp,
			createdAt:  now,
			accessedAt: now,
			size:       size,
			tags:       se.Tags,
		}
		total += size
	}

	c.mu.Lock()
	c.entries = entries
	c.bytes = total
	c.enforceCapsLocked("")
	c.mu.Unlock()
	return nil
}

// SaveTo snapshots the cache into store.
func (c *Cache) SaveTo(ctx context.Context, store Store) error {
	data, err := c.Snapshot()
	if err != nil {
		return err
	}
	return store.Save(ctx, data)
}

// LoadFrom restores the cache from store. When the store has no snapshot
// yet, ErrNoSnapshot is returned and the cache is left untouched.
func (c *Cache) LoadFrom(ctx context.Context, store Store) error {
	data, err := store.Load(ctx)
	if err != nil {
		return err
	}
	return c.Restore(data)
}

// FileStore persists snapshots to a single file. Saves go through a temp
// file and rename, so a crash mid-write never corrupts the previous
// snapshot.
type FileStore struct {
	// Path is the snapshot file location.
	Path string
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(_ context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("cache: write snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("cache: write snapshot: %w", err)
	}
	return nil
}

// Load reads the last saved snapshot.
func (s *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read snapshot: %w", err)
	}
	return data, nil
}

var _ Store = (*FileStore)(nil)
