package health

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkAggregator_CheckAll(b *testing.B) {
	agg := NewAggregator(AggregatorConfig{})
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("component-%d", i)
		agg.Register(name, healthyChecker(name))
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		agg.CheckAll(ctx)
	}
}

func BenchmarkAggregator_CheckAllSerial(b *testing.B) {
	agg := NewAggregator(AggregatorConfig{Serial: true})
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("component-%d", i)
		agg.Register(name, healthyChecker(name))
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		agg.CheckAll(ctx)
	}
}
