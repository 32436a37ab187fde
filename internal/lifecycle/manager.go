// Package lifecycle coordinates startup and shutdown of the pipeline's
// shared resources through an explicit state machine.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casemind/casemind-go/internal/pool"
)

// State names one phase of the manager's life.
type State string

const (
	StateInitializing State = "initializing"
	StateStarting     State = "starting"
	StateReady        State = "ready"
	StateShuttingDown State = "shutting_down"
	StateStopped      State = "stopped"
	StateError        State = "error"
)

// Pools groups the three managed resources.
type Pools struct {
	Store *pool.StorePool
	Model *pool.ModelPool
	LLM   *pool.LLMPool
}

// Options tune startup behavior.
type Options struct {
	// Warmup controls whether the embedding model is loaded during Start.
	// When false the model still loads lazily on first use.
	Warmup bool
	// HealthInterval enables the periodic health checker when positive.
	HealthInterval time.Duration
	// ShutdownGrace bounds how long Shutdown waits for components.
	ShutdownGrace time.Duration
}

// StatusReport is a point-in-time view of the whole system.
type StatusReport struct {
	State  State                  `json:"state"`
	Uptime time.Duration          `json:"uptime"`
	Pools  map[string]pool.Status `json:"pools"`
	Health *HealthReport          `json:"health,omitempty"`
}

// Manager drives the state machine Initializing → Starting → Ready →
// ShuttingDown → Stopped, entering Error on failed startup.
type Manager struct {
	mu        sync.Mutex
	state     State
	startedAt time.Time
	pools     Pools
	opts      Options
	health    *HealthChecker
	stopOnce  sync.Once
}

// NewManager creates a manager over the given pools.
func NewManager(pools Pools, opts Options) *Manager {
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 30 * time.Second
	}
	return &Manager{
		state: StateInitializing,
		pools: pools,
		opts:  opts,
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	slog.Info("lifecycle state change", "from", prev, "to", s)
}

// Start brings up the pools in dependency order: store first, then the
// embedding model, then the LLM client, then the health checker. A failure
// tears down what already started and leaves the manager in Error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateInitializing {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("cannot start from state %q", state)
	}
	m.mu.Unlock()

	m.setState(StateStarting)

	if err := m.pools.Store.Initialize(ctx); err != nil {
		m.setState(StateError)
		return fmt.Errorf("start store pool: %w", err)
	}

	if m.opts.Warmup {
		// The load itself runs on the pool's goroutine; startup blocks here
		// so a broken embedder fails the whole run instead of every batch.
		if err := m.pools.Model.WaitReady(ctx); err != nil {
			m.setState(StateError)
			m.shutdownPools(ctx)
			return fmt.Errorf("start model pool: %w", err)
		}
	}

	// LLM pool construction is eager; verify it reports ready.
	if s := m.pools.LLM.Status(); !s.Ready {
		m.setState(StateError)
		m.shutdownPools(ctx)
		return fmt.Errorf("llm pool not ready")
	}

	if m.opts.HealthInterval > 0 {
		m.health = NewHealthChecker(m.pools, m.opts.HealthInterval)
		m.health.Start(ctx)
	}

	m.mu.Lock()
	m.startedAt = time.Now()
	m.mu.Unlock()
	m.setState(StateReady)
	return nil
}

// Shutdown stops components in reverse startup order. Each component gets a
// best-effort close; the first error is returned after all components were
// attempted. Safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	m.stopOnce.Do(func() {
		m.setState(StateShuttingDown)

		ctx, cancel := context.WithTimeout(ctx, m.opts.ShutdownGrace)
		defer cancel()

		if m.health != nil {
			m.health.Stop()
		}
		err = m.shutdownPools(ctx)
		m.setState(StateStopped)
	})
	return err
}

func (m *Manager) shutdownPools(ctx context.Context) error {
	var firstErr error

	if closeErr := m.pools.LLM.Close(); closeErr != nil {
		slog.Warn("llm pool close failed", "error", closeErr)
		firstErr = closeErr
	}
	if closeErr := m.pools.Model.Close(); closeErr != nil {
		slog.Warn("model pool close failed", "error", closeErr)
		if firstErr == nil {
			firstErr = closeErr
		}
	}
	if closeErr := m.pools.Store.Close(ctx); closeErr != nil {
		slog.Warn("store pool close failed", "error", closeErr)
		if firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

// Status snapshots the state machine, uptime, and all pool statuses.
func (m *Manager) Status() StatusReport {
	m.mu.Lock()
	state := m.state
	startedAt := m.startedAt
	m.mu.Unlock()

	report := StatusReport{
		State: state,
		Pools: map[string]pool.Status{
			"store": m.pools.Store.Status(),
			"model": m.pools.Model.Status(),
			"llm":   m.pools.LLM.Status(),
		},
	}
	if !startedAt.IsZero() && state == StateReady {
		report.Uptime = time.Since(startedAt)
	}
	if m.health != nil {
		if latest := m.health.Latest(); latest != nil {
			report.Health = latest
		}
	}
	return report
}
