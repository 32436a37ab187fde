package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/casemind/casemind-go/internal/llm"
	"github.com/casemind/casemind-go/internal/models"
	"github.com/casemind/casemind-go/internal/ratelimit"
)

// LLMPool gates every extraction call through the shared rate limiter. The
// provider quota applies per request, so a token is spent before each call
// regardless of outcome.
type LLMPool struct {
	mu          sync.Mutex
	extractor   llm.Extractor
	limiter     *ratelimit.Limiter
	initialized bool
	closed      bool
	inUse       int
}

// NewLLMPool wires an extractor to a limiter.
func NewLLMPool(extractor llm.Extractor, limiter *ratelimit.Limiter) *LLMPool {
	return &LLMPool{
		extractor:   extractor,
		limiter:     limiter,
		initialized: true,
	}
}

// ExtractSummary spends a rate token, then runs the primary extraction.
func (p *LLMPool) ExtractSummary(ctx context.Context, text string) (*models.CaseSummary, error) {
	done, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return p.extractor.ExtractSummary(ctx, text)
}

// ExtractTemplateFacts spends a rate token, then runs the template pass.
func (p *LLMPool) ExtractTemplateFacts(ctx context.Context, text, templateID string) (*models.TemplateFacts, error) {
	done, err := p.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return p.extractor.ExtractTemplateFacts(ctx, text, templateID)
}

func (p *LLMPool) enter(ctx context.Context) (func(), error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("llm pool is closed")
	}
	p.mu.Unlock()

	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire rate token: %w", err)
	}

	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.inUse--
		p.mu.Unlock()
	}, nil
}

// RateStatus exposes the limiter snapshot for status reporting.
func (p *LLMPool) RateStatus() ratelimit.Status {
	return p.limiter.Status()
}

// Status reports pool readiness and in-flight extractions.
func (p *LLMPool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		Initialized: p.initialized,
		Ready:       p.initialized && !p.closed,
		InUse:       p.inUse,
	}
	s.Available = int(p.limiter.Status().TokensAvailable)
	return s
}

// Close marks the pool unusable. Idempotent.
func (p *LLMPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
