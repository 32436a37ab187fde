package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HealthReport is one round of component checks.
type HealthReport struct {
	Timestamp time.Time       `json:"timestamp"`
	Healthy   bool            `json:"healthy"`
	Checks    map[string]bool `json:"checks"`
}

// HealthChecker probes the pools on a fixed interval and keeps the latest
// report. It observes only; recovery is the pools' own concern.
type HealthChecker struct {
	mu       sync.Mutex
	pools    Pools
	interval time.Duration
	latest   *HealthReport
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewHealthChecker creates a checker over the given pools.
func NewHealthChecker(pools Pools, interval time.Duration) *HealthChecker {
	return &HealthChecker{pools: pools, interval: interval}
}

// Start launches the periodic check loop. An immediate first check runs
// before the first tick.
func (h *HealthChecker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	go func() {
		defer close(h.done)

		h.check(ctx)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.check(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the check loop and waits for it to exit.
func (h *HealthChecker) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

// Latest returns the most recent report, or nil before the first check.
func (h *HealthChecker) Latest() *HealthReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

func (h *HealthChecker) check(ctx context.Context) {
	checks := map[string]bool{
		"store": h.checkStore(ctx),
		"model": h.pools.Model.Status().Ready,
		"llm":   h.pools.LLM.Status().Ready,
	}

	healthy := true
	for name, ok := range checks {
		if !ok {
			healthy = false
			slog.Warn("health check failed", "component", name)
		}
	}

	h.mu.Lock()
	h.latest = &HealthReport{
		Timestamp: time.Now().UTC(),
		Healthy:   healthy,
		Checks:    checks,
	}
	h.mu.Unlock()
}

func (h *HealthChecker) checkStore(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, release, err := h.pools.Store.Acquire(ctx)
	if err != nil {
		return false
	}
	defer release()
	return conn.Ping(ctx) == nil
}
