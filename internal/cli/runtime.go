package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/casemind/casemind-go/internal/convert"
	"github.com/casemind/casemind-go/internal/embedding"
	"github.com/casemind/casemind-go/internal/lifecycle"
	"github.com/casemind/casemind-go/internal/llm"
	"github.com/casemind/casemind-go/internal/pipeline"
	"github.com/casemind/casemind-go/internal/pool"
	"github.com/casemind/casemind-go/internal/ratelimit"
	"github.com/casemind/casemind-go/internal/store"
	"github.com/casemind/casemind-go/internal/tracker"
)

// runtime bundles the started pools, the pipeline, and the failure ledger
// for one command invocation.
type runtime struct {
	manager  *lifecycle.Manager
	pipeline *pipeline.Pipeline
	failures *tracker.Tracker
}

// buildRuntime constructs the pools from config and brings them up through
// the lifecycle manager. The caller must call shutdown.
func buildRuntime(ctx context.Context, progress pipeline.ProgressFunc) (*runtime, error) {
	stores := pool.NewStorePool(store.Config{
		URL:                cfg.SurrealDBURL,
		Namespace:          cfg.SurrealDBNamespace,
		Database:           cfg.SurrealDBDatabase,
		Username:           cfg.SurrealDBUser,
		Password:           cfg.SurrealDBPass,
		AuthLevel:          cfg.SurrealDBAuthLevel,
		EmbeddingDimension: cfg.EmbeddingDimension,
	}, cfg.StorePoolSize, slog.Default())

	model := pool.NewModelPool(embedding.Config{
		Provider:     embedding.ProviderType(cfg.EmbeddingProvider),
		Model:        cfg.EmbeddingModel,
		Dimension:    cfg.EmbeddingDimension,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OllamaHost:   cfg.OllamaHost,
	})

	chat, err := llm.NewModel(llm.Config{
		Provider:        llm.ProviderType(cfg.LLMProvider),
		Model:           cfg.LLMModel,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OllamaHost:      cfg.OllamaHost,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	limiter := ratelimit.NewWithBurst(cfg.RequestsPerMinute, cfg.RequestBurst)
	llms := pool.NewLLMPool(llm.NewExtractor(chat), limiter)

	manager := lifecycle.NewManager(lifecycle.Pools{
		Store: stores,
		Model: model,
		LLM:   llms,
	}, lifecycle.Options{
		Warmup:         cfg.Warmup,
		HealthInterval: cfg.HealthInterval,
		ShutdownGrace:  cfg.ShutdownGrace,
	})
	if err := manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("start pools: %w", err)
	}

	failures, err := tracker.New(cfg.LedgerPath, cfg.MaxAttempts)
	if err != nil {
		shutdownErr := manager.Shutdown(ctx)
		if shutdownErr != nil {
			slog.Warn("shutdown after failed startup", "error", shutdownErr)
		}
		return nil, fmt.Errorf("open failure ledger: %w", err)
	}

	pipe := pipeline.New(convert.New(), stores, model, llms, failures, pipeline.Options{
		Workers:            cfg.Workers,
		TemplateID:         cfg.TemplateID,
		ChunkTokens:        cfg.ChunkTokens,
		InterItemDelay:     cfg.InterItemDelay,
		StrictSingleWriter: cfg.StrictSingleWriter,
		AutoRetry:          cfg.AutoRetry,
		Progress:           progress,
	})

	return &runtime{manager: manager, pipeline: pipe, failures: failures}, nil
}

func (r *runtime) shutdown(ctx context.Context) {
	if err := r.manager.Shutdown(ctx); err != nil {
		slog.Warn("shutdown", "error", err)
	}
}

// printProgress writes one line per item per stage to stdout.
func printProgress(stage string, ev pipeline.ProgressEvent) {
	name := filepath.Base(ev.Path)
	switch {
	case ev.Skipped:
		fmt.Printf("  - %-10s %s (skipped: duplicate)\n", stage, name)
	case ev.Success:
		fmt.Printf("  ✓ %-10s %s\n", stage, name)
	default:
		fmt.Printf("  ✗ %-10s %s: %s\n", stage, name, ev.Error)
	}
}

// printBatch writes the aggregate result of a run.
func printBatch(res *pipeline.BatchResult) {
	fmt.Printf("\nProcessed %d files in %s: %d succeeded, %d failed, %d skipped\n",
		res.Total, res.Duration.Round(10*time.Millisecond), res.Successful, res.Failed, res.Skipped)
	for _, f := range res.FailedFiles {
		fmt.Printf("  failed: %s\n", f)
	}
}
