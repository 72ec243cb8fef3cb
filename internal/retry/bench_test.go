package retry

import (
	"context"
	"testing"
)

// BenchmarkBackoff_ImmediateSuccess measures the bind path when the
// port is free on the first try.
func BenchmarkBackoff_ImmediateSuccess(b *testing.B) {
	bo := BindBackoff()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(_ int) error { return nil }) //nolint:errcheck
	}
}

// BenchmarkBackoff_Delay measures schedule computation alone.
func BenchmarkBackoff_Delay(b *testing.B) {
	bo := BindBackoff()
	for i := 0; i < b.N; i++ {
		_ = bo.Delay(i%16 + 1)
	}
}

// BenchmarkCircuitBreaker_Record measures the per-receive bookkeeping
// the listener performs.
func BenchmarkCircuitBreaker_Record(b *testing.B) {
	cb := NewCircuitBreaker(ReceiveBreakerConfig(3))
	for i := 0; i < b.N; i++ {
		cb.Record(nil)
	}
}
