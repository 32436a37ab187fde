// Package ratelimit implements a token-bucket limiter for gating calls to
// quota-constrained external services.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Limiter is a token-bucket rate limiter. Tokens refill continuously at the
// configured rate up to the burst capacity; each Acquire consumes one.
type Limiter struct {
	mu         sync.Mutex
	rpm        int
	refillRate float64 // tokens per second
	tokens     float64
	maxTokens  float64
	lastRefill time.Time
}

// Status is a read-only snapshot of the limiter state.
type Status struct {
	RPM             int     `json:"rpm"`
	TokensAvailable float64 `json:"tokens_available"`
	MaxTokens       float64 `json:"max_tokens"`
	RefillPerSecond float64 `json:"refill_rate_per_sec"`
}

// New creates a limiter allowing requestsPerMinute acquisitions per minute,
// with burst capacity equal to the per-minute rate.
func New(requestsPerMinute int) *Limiter {
	return NewWithBurst(requestsPerMinute, requestsPerMinute)
}

// NewWithBurst creates a limiter with an explicit burst capacity.
func NewWithBurst(requestsPerMinute, burst int) *Limiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	if burst < 1 {
		burst = requestsPerMinute
	}
	l := &Limiter{
		rpm:        requestsPerMinute,
		refillRate: float64(requestsPerMinute) / 60.0,
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		lastRefill: time.Now(),
	}
	slog.Debug("rate limiter created", "rpm", requestsPerMinute, "burst", burst)
	return l
}

// refill replenishes tokens proportionally to elapsed wall-clock time.
// Callers must hold l.mu.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens = min(l.maxTokens, l.tokens+elapsed*l.refillRate)
	l.lastRefill = now
}

// Acquire blocks until one unit of quota is available, then consumes it.
// It returns early only if ctx is cancelled. Refill and consume happen
// atomically under the limiter's lock, so two callers can never both spend
// the last token.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1.0 {
			l.tokens--
			remaining := l.tokens
			l.mu.Unlock()
			slog.Debug("rate limit token acquired", "remaining", remaining)
			return nil
		}
		// Wait exactly long enough for the next whole token.
		wait := time.Duration((1.0 - l.tokens) / l.refillRate * float64(time.Second))
		l.mu.Unlock()

		slog.Debug("rate limit reached, waiting", "wait", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Status returns the current limiter state.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return Status{
		RPM:             l.rpm,
		TokensAvailable: l.tokens,
		MaxTokens:       l.maxTokens,
		RefillPerSecond: l.refillRate,
	}
}

// Multi gates a call behind several limiters at once, e.g. a per-minute and
// a per-day quota. All limiters must grant before the call proceeds.
type Multi struct {
	limiters []*Limiter
}

// NewMulti combines limiters into one gate.
func NewMulti(limiters ...*Limiter) *Multi {
	return &Multi{limiters: limiters}
}

// Acquire takes one token from every limiter, in order.
func (m *Multi) Acquire(ctx context.Context) error {
	for _, l := range m.limiters {
		if err := l.Acquire(ctx); err != nil {
			return err
		}
	}
	return nil
}
