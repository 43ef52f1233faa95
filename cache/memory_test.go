package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "hello"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, ok := c.Get(ctx, "k")
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if v != "hello" {
		t.Errorf("Get() = %v, want %q", v, "hello")
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()

	if v, ok := c.Get(context.Background(), "absent"); ok {
		t.Errorf("Get() on empty cache = (%v, true), want miss", v)
	}

	st := c.Stats()
	if st.Misses != 1 {
		t.Errorf("Stats().Misses = %d, want 1", st.Misses)
	}
}

func TestCache_KeyValidation(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"empty", "", ErrInvalidKey},
		{"whitespace", "   ", ErrInvalidKey},
		{"newline", "a\nb", ErrInvalidKey},
		{"too long", strings.Repeat("x", MaxKeyLength+1), ErrKeyTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Set(ctx, tt.key, 1); !errors.Is(err, tt.want) {
				t.Errorf("Set(%q) error = %v, want %v", tt.key, err, tt.want)
			}
		})
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", WithTTL(30*time.Millisecond)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("Get() before expiry missed")
	}
	if !c.Has("k") {
		t.Fatal("Has() before expiry = false")
	}

	time.Sleep(50 * time.Millisecond)

	if v, ok := c.Get(ctx, "k"); ok {
		t.Errorf("Get() after expiry = (%v, true), want miss", v)
	}
	if c.Has("k") {
		t.Error("Has() after expiry = true")
	}

	st := c.Stats()
	if st.Expirations != 1 {
		t.Errorf("Stats().Expirations = %d, want 1", st.Expirations)
	}
}

func TestCache_ClearExpired(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "short1", "v", WithTTL(20*time.Millisecond))
	c.Set(ctx, "short2", "v", WithTTL(20*time.Millisecond))
	c.Set(ctx, "long", "v", WithTTL(time.Hour))

	time.Sleep(40 * time.Millisecond)

	if n := c.ClearExpired(); n != 2 {
		t.Errorf("ClearExpired() = %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() after clear = %d, want 1", c.Len())
	}
	if n := c.ClearExpired(); n != 0 {
		t.Errorf("second ClearExpired() = %d, want 0", n)
	}
}

func TestCache_MaxTTLClamp(t *testing.T) {
	c := New(Config{MaxTTL: 20 * time.Millisecond, SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	// The requested hour is clamped to 20ms.
	if err := c.Set(ctx, "k", "v", WithTTL(time.Hour)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get() after MaxTTL = hit, want miss")
	}
}

func TestCache_Delete(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", 1)

	if !c.Delete(ctx, "k") {
		t.Error("Delete() existing = false, want true")
	}
	if c.Delete(ctx, "k") {
		t.Error("Delete() absent = true, want false")
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get() after Delete() = hit")
	}
}

func TestCache_InvalidateTag(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1, WithTags("word:run"))
	_ = c.Set(ctx, "b", 2, WithTags("word:run", "lang:en"))
	_ = c.Set(ctx, "c", 3, WithTags("lang:en"))
	_ = c.Set(ctx, "d", 4)

	if n := c.InvalidateTag("word:run"); n != 2 {
		t.Errorf("InvalidateTag(word:run) = %d, want 2", n)
	}
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("tagged entry a survived invalidation")
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("tagged entry b survived invalidation")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Error("untagged entry c was removed")
	}
	if _, ok := c.Get(ctx, "d"); !ok {
		t.Error("untagged entry d was removed")
	}

	if n := c.InvalidateTag("word:run"); n != 0 {
		t.Errorf("InvalidateTag() second call = %d, want 0", n)
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(Config{MaxEntries: 3, SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1)
	time.Sleep(2 * time.Millisecond)
	_ = c.Set(ctx, "b", 2)
	time.Sleep(2 * time.Millisecond)
	_ = c.Set(ctx, "c", 3)
	time.Sleep(2 * time.Millisecond)

	// Refresh a's recency; b is now the least recently used.
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Fatal("Get(a) missed")
	}
	time.Sleep(2 * time.Millisecond)

	_ = c.Set(ctx, "d", 4)

	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("b survived eviction, want least-recently-used victim")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(ctx, k); !ok {
			t.Errorf("%s was evicted, want kept", k)
		}
	}

	if st := c.Stats(); st.Evictions != 1 {
		t.Errorf("Stats().Evictions = %d, want 1", st.Evictions)
	}
}

func TestCache_MemoryEviction(t *testing.T) {
	c := New(Config{MaxEntries: 1000, MaxMemoryBytes: 2000, SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	big := strings.Repeat("x", 400)
	for i := 0; i < 10; i++ {
		if err := c.Set(ctx, fmt.Sprintf("k%d", i), big); err != nil {
			t.Fatalf("Set(k%d) error = %v", i, err)
		}
		time.Sleep(time.Millisecond)
	}

	st := c.Stats()
	if st.MemoryBytes > 2000 {
		t.Errorf("Stats().MemoryBytes = %d, want <= budget 2000", st.MemoryBytes)
	}
	if st.Evictions == 0 {
		t.Error("Stats().Evictions = 0, want > 0")
	}

	// Oldest-by-creation entries go first.
	if _, ok := c.Get(ctx, "k0"); ok {
		t.Error("oldest entry k0 survived the memory budget")
	}
	if _, ok := c.Get(ctx, "k9"); !ok {
		t.Error("newest entry k9 was evicted")
	}
}

func TestCache_ValueTooLarge(t *testing.T) {
	c := New(Config{MaxMemoryBytes: 100, SweepInterval: -1})
	defer c.Close()

	err := c.Set(context.Background(), "k", strings.Repeat("x", 500))
	if !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("Set() oversized value error = %v, want ErrValueTooLarge", err)
	}
}

func TestCache_GetOrComputeMissThenHit(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (any, error) {
		calls++
		return "computed", nil
	}

	v, err := c.GetOrCompute(ctx, "k", compute)
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if v != "computed" {
		t.Errorf("GetOrCompute() = %v, want %q", v, "computed")
	}

	// Second call hits the cache.
	if _, err := c.GetOrCompute(ctx, "k", compute); err != nil {
		t.Fatalf("GetOrCompute() #2 error = %v", err)
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
}

func TestCache_GetOrComputeErrorNotCached(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	boom := errors.New("upstream down")
	if _, err := c.GetOrCompute(ctx, "k", func(context.Context) (any, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("GetOrCompute() error = %v, want %v", err, boom)
	}

	if c.Has("k") {
		t.Error("failed computation was cached")
	}

	// The next call computes again and can succeed.
	v, err := c.GetOrCompute(ctx, "k", func(context.Context) (any, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Errorf("GetOrCompute() after failure = (%v, %v), want (42, nil)", v, err)
	}
}

func TestCache_GetOrComputeCollapsesConcurrent(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()

	var computes atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (any, error) {
		computes.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]any, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), "k", compute)
		}(i)
	}

	// Give every caller time to reach the compute path.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := computes.Load(); got != 1 {
		t.Errorf("compute ran %d times, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d error = %v", i, errs[i])
		}
		if results[i] != "shared" {
			t.Errorf("caller %d = %v, want %q", i, results[i], "shared")
		}
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1)
	_ = c.Set(ctx, "b", 2)

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", c.Len())
	}
	if st := c.Stats(); st.MemoryBytes != 0 {
		t.Errorf("Stats().MemoryBytes after Clear() = %d, want 0", st.MemoryBytes)
	}
}

func TestCache_StatsCounters(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", 1)
	c.Get(ctx, "k")
	c.Get(ctx, "k")
	c.Get(ctx, "missing")

	st := c.Stats()
	if st.Hits != 2 {
		t.Errorf("Stats().Hits = %d, want 2", st.Hits)
	}
	if st.Misses != 1 {
		t.Errorf("Stats().Misses = %d, want 1", st.Misses)
	}
	if st.Entries != 1 {
		t.Errorf("Stats().Entries = %d, want 1", st.Entries)
	}
	if st.MemoryBytes <= 0 {
		t.Errorf("Stats().MemoryBytes = %d, want > 0", st.MemoryBytes)
	}
}

func TestCache_SweeperRemovesExpired(t *testing.T) {
	c := New(Config{
		DefaultTTL:    10 * time.Millisecond,
		SweepInterval: 20 * time.Millisecond,
	})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1)
	_ = c.Set(ctx, "b", 2)

	// Without any reads the sweeper alone must remove both.
	deadline := time.Now().Add(time.Second)
	for c.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after sweep window, want 0", c.Len())
	}
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := New(Config{SweepInterval: 10 * time.Millisecond})
	c.Close()
	c.Close()

	// Still usable after Close.
	ctx := context.Background()
	if err := c.Set(ctx, "k", 1); err != nil {
		t.Fatalf("Set() after Close() error = %v", err)
	}
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("Get() after Close() missed")
	}
}

func TestCache_SetReplacesExisting(t *testing.T) {
	c := New(Config{SweepInterval: -1})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", strings.Repeat("x", 100))
	first := c.Stats().MemoryBytes

	_ = c.Set(ctx, "k", "small")
	st := c.Stats()
	if st.Entries != 1 {
		t.Errorf("Stats().Entries = %d, want 1", st.Entries)
	}
	if st.MemoryBytes >= first {
		t.Errorf("MemoryBytes = %d after replacing with a smaller value, want < %d", st.MemoryBytes, first)
	}

	v, _ := c.Get(ctx, "k")
	if v != "small" {
		t.Errorf("Get() = %v, want %q", v, "small")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(Config{MaxEntries: 64, SweepInterval: -1})
	defer c.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			ctx := context.Background()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				switch i % 4 {
				case 0:
					_ = c.Set(ctx, key, i, WithTags("load"))
				case 1:
					c.Get(ctx, key)
				case 2:
					c.Has(key)
				default:
					if i%40 == 3 {
						c.InvalidateTag("load")
					}
				}
			}
		}(g)
	}
	wg.Wait()

	if n := c.Len(); n > 64 {
		t.Errorf("Len() = %d, want <= MaxEntries 64", n)
	}
}
