package client

import (
	"context"
	"testing"

	"github.com/vocablens/callops/cache"
)

func BenchmarkCallCached(b *testing.B) {
	store := cache.New(cache.Config{SweepInterval: -1})
	defer store.Close()
	c, err := New(Config{Service: "images", Cache: store})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	params := map[string]any{"q": "sunset"}
	fn := func(context.Context) (any, error) { return "result", nil }

	if _, err := c.Call(ctx, "search", params, fn); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Call(ctx, "search", params, fn); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDoUncached(b *testing.B) {
	c, err := New(Config{Service: "images"})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	fn := func(context.Context) (any, error) { return "result", nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Do(ctx, "search", fn); err != nil {
			b.Fatal(err)
		}
	}
}
