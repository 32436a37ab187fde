package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquire_BurstThenThrottle(t *testing.T) {
	// 60 RPM = 1 token/second, burst 2. The first two acquisitions are
	// immediate; the third must wait roughly one refill interval.
	l := NewWithBurst(60, 2)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("burst acquisitions took %v, expected near-instant", elapsed)
	}

	start = time.Now()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("third acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 700*time.Millisecond {
		t.Errorf("third acquisition returned after %v, expected ~1s wait", elapsed)
	}
}

func TestAcquire_SustainedRateFloor(t *testing.T) {
	// 3N acquisitions against a bucket of N must span at least two full
	// refill periods. Use a fast clock: 600 RPM = 10 tokens/second.
	const n = 5
	l := NewWithBurst(600, n)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3*n; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// Period for n tokens at 10/s is 500ms; 2 periods = 1s.
	if elapsed < 900*time.Millisecond {
		t.Errorf("3N acquisitions completed in %v, want >= ~1s", elapsed)
	}
}

func TestAcquire_NoDoubleSpend(t *testing.T) {
	// With exactly one token and no meaningful refill, only one of many
	// concurrent callers may acquire immediately.
	l := NewWithBurst(1, 1) // 1 RPM: next token is a minute away

	var immediate atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			if err := l.Acquire(ctx); err == nil {
				immediate.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := immediate.Load(); got != 1 {
		t.Errorf("%d callers acquired the single token, want exactly 1", got)
	}
}

func TestAcquire_ContextCancellation(t *testing.T) {
	l := NewWithBurst(1, 1)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("initial acquire: %v", err)
	}

	cancelled, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Acquire(cancelled)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled acquire took %v, expected prompt return", elapsed)
	}
}

func TestStatus(t *testing.T) {
	l := NewWithBurst(120, 4)
	st := l.Status()
	if st.RPM != 120 {
		t.Errorf("RPM = %d, want 120", st.RPM)
	}
	if st.MaxTokens != 4 {
		t.Errorf("MaxTokens = %v, want 4", st.MaxTokens)
	}
	if st.TokensAvailable < 3.9 {
		t.Errorf("fresh limiter has %v tokens, want ~4", st.TokensAvailable)
	}
}

func TestMulti_AcquiresFromAll(t *testing.T) {
	a := NewWithBurst(600, 2)
	b := NewWithBurst(600, 2)
	m := NewMulti(a, b)

	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("multi acquire: %v", err)
	}

	if st := a.Status(); st.TokensAvailable > 1.5 {
		t.Errorf("first limiter not debited: %v tokens", st.TokensAvailable)
	}
	if st := b.Status(); st.TokensAvailable > 1.5 {
		t.Errorf("second limiter not debited: %v tokens", st.TokensAvailable)
	}
}
