package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/casemind/casemind-go/internal/embedding"
)

// ModelPool owns the embedding model. Loading and warming the model can
// take tens of seconds, so Initialize starts it in the background and
// EncodeBatch waits for readiness. Encoding itself is serialized; the
// providers do their own internal batching.
type ModelPool struct {
	mu          sync.Mutex
	embedder    embedding.Embedder
	dimension   int
	initialized bool
	closed      bool
	inUse       int

	initOnce sync.Once
	initDone chan struct{}
	initErr  error

	build func() (embedding.Embedder, error)
}

// NewModelPool creates a pool that builds the configured embedder on
// Initialize.
func NewModelPool(cfg embedding.Config) *ModelPool {
	return &ModelPool{
		dimension: cfg.Dimension,
		initDone:  make(chan struct{}),
		build:     func() (embedding.Embedder, error) { return embedding.New(cfg) },
	}
}

// NewModelPoolWithEmbedder creates a pool around an existing embedder. Used
// in tests.
func NewModelPoolWithEmbedder(e embedding.Embedder) *ModelPool {
	return &ModelPool{
		dimension: e.Dimension(),
		initDone:  make(chan struct{}),
		build:     func() (embedding.Embedder, error) { return e, nil },
	}
}

// Initialize builds and warms the embedder in the background. Returns
// immediately; safe to call more than once.
func (p *ModelPool) Initialize(ctx context.Context) {
	p.initOnce.Do(func() {
		go func() {
			defer close(p.initDone)

			e, err := p.build()
			if err != nil {
				p.mu.Lock()
				p.initErr = fmt.Errorf("build embedder: %w", err)
				p.mu.Unlock()
				return
			}

			// Warmup forces model load before the first real batch.
			if _, err := e.EmbedBatch(ctx, []string{"warmup"}); err != nil {
				slog.Warn("embedder warmup failed", "model", e.Model(), "error", err)
			}

			p.mu.Lock()
			p.embedder = e
			p.initialized = true
			p.mu.Unlock()
			slog.Debug("model pool initialized", "model", e.Model(), "dimension", e.Dimension())
		}()
	})
}

// WaitReady starts initialization if needed and blocks until the embedder
// is usable. A failed build surfaces here, so startup can treat it as
// fatal instead of discovering it one batch at a time.
func (p *ModelPool) WaitReady(ctx context.Context) error {
	return p.wait(ctx)
}

// wait blocks until background initialization finished or ctx ends.
func (p *ModelPool) wait(ctx context.Context) error {
	p.Initialize(ctx)
	select {
	case <-p.initDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initErr != nil {
		return p.initErr
	}
	if p.closed {
		return fmt.Errorf("model pool is closed")
	}
	return nil
}

// EncodeBatch embeds all texts in one provider call. On provider failure it
// degrades to zero vectors of the configured dimension instead of failing
// the whole item; downstream consumers still get positionally complete
// results.
func (p *ModelPool) EncodeBatch(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	// Close can race the wait above; re-check under the same lock that
	// hands out the embedder.
	p.mu.Lock()
	e := p.embedder
	if p.closed || e == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("model pool is closed")
	}
	p.inUse++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inUse--
		p.mu.Unlock()
	}()

	vectors, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("embedding degraded to zero vectors", "texts", len(texts), "error", err)
		vectors = make([][]float32, len(texts))
		for i := range vectors {
			vectors[i] = make([]float32, p.dimension)
		}
		return vectors, nil
	}

	if normalize {
		for _, v := range vectors {
			normalizeVector(v)
		}
	}
	return vectors, nil
}

// Dimension returns the embedding dimension.
func (p *ModelPool) Dimension() int {
	return p.dimension
}

// Status reports pool readiness and current encode activity.
func (p *ModelPool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		Initialized: p.initialized,
		Ready:       p.initialized && !p.closed && p.initErr == nil,
		InUse:       p.inUse,
	}
	if s.Ready && p.inUse == 0 {
		s.Available = 1
	}
	return s
}

// Close releases the embedder. Idempotent.
func (p *ModelPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.embedder = nil
	return nil
}

// normalizeVector scales v to unit length in place. Zero vectors are left
// untouched.
func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
