package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casemind/casemind-go/internal/store"
)

// StorePool bounds concurrent use of a shared store connection. SurrealDB
// multiplexes queries over one WebSocket, so the pool holds a single
// connection behind a counting semaphore rather than dialing per slot.
type StorePool struct {
	mu          sync.Mutex
	conn        store.Conn
	sem         chan struct{}
	size        int
	initialized bool
	closed      bool

	dial func(ctx context.Context) (store.Conn, error)
}

// NewStorePool creates a pool that dials SurrealDB and initializes the
// schema on first use.
func NewStorePool(cfg store.Config, size int, log *slog.Logger) *StorePool {
	return &StorePool{
		size: size,
		dial: func(ctx context.Context) (store.Conn, error) {
			client, err := store.NewClient(ctx, cfg, log)
			if err != nil {
				return nil, err
			}
			if err := client.InitSchema(ctx); err != nil {
				_ = client.Close(ctx)
				return nil, err
			}
			return client, nil
		},
	}
}

// NewStorePoolWithConn creates a pool around an existing connection. Used
// in tests.
func NewStorePoolWithConn(conn store.Conn, size int) *StorePool {
	return &StorePool{
		size: size,
		dial: func(context.Context) (store.Conn, error) { return conn, nil },
	}
}

// Initialize dials the store and prepares the semaphore. Safe to call more
// than once; later calls are no-ops.
func (p *StorePool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if p.closed {
		return fmt.Errorf("store pool is closed")
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("initialize store pool: %w", err)
	}

	p.conn = conn
	p.sem = make(chan struct{}, p.size)
	p.initialized = true
	slog.Debug("store pool initialized", "size", p.size)
	return nil
}

// Acquire blocks until a slot is free or the context ends. The returned
// release func is safe to call more than once.
func (p *StorePool) Acquire(ctx context.Context) (store.Conn, func(), error) {
	p.mu.Lock()
	if !p.initialized || p.closed {
		p.mu.Unlock()
		return nil, nil, fmt.Errorf("store pool not initialized")
	}
	conn, sem := p.conn, p.sem
	p.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-sem })
	}
	return conn, release, nil
}

// Status reports slot usage.
func (p *StorePool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{Initialized: p.initialized, Ready: p.initialized && !p.closed}
	if p.sem != nil {
		s.InUse = len(p.sem)
		s.Available = p.size - len(p.sem)
	}
	return s
}

// Close shuts the store connection. Idempotent.
func (p *StorePool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.conn != nil {
		if err := p.conn.Close(ctx); err != nil {
			return fmt.Errorf("close store pool: %w", err)
		}
	}
	return nil
}
