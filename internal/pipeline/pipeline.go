package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/casemind/casemind-go/internal/convert"
	"github.com/casemind/casemind-go/internal/metrics"
	"github.com/casemind/casemind-go/internal/pool"
	"github.com/casemind/casemind-go/internal/tracker"
)

// Options configures a pipeline run.
type Options struct {
	// Workers bounds conversion parallelism.
	Workers int
	// TemplateID enables the second extraction pass when non-empty.
	TemplateID string
	// ChunkTokens is the per-chunk token budget.
	ChunkTokens int
	// InterItemDelay spaces extraction items beyond the rate limiter.
	InterItemDelay time.Duration
	// StrictSingleWriter serializes ingestion writes for stores that do not
	// tolerate concurrent batch writers.
	StrictSingleWriter bool
	// AutoRetry re-runs conversion-stage failures once per batch.
	AutoRetry bool
	// Progress observes per-item stage completion.
	Progress ProgressFunc
}

// Pipeline wires the four stages to their collaborators.
type Pipeline struct {
	converter convert.Converter
	stores    *pool.StorePool
	model     *pool.ModelPool
	llms      *pool.LLMPool
	tracker   *tracker.Tracker
	opts      Options
	stats     *metrics.Collector

	writerMu sync.Mutex
}

// New creates a pipeline over initialized pools.
func New(converter convert.Converter, stores *pool.StorePool, model *pool.ModelPool, llms *pool.LLMPool, failures *tracker.Tracker, opts Options) *Pipeline {
	return &Pipeline{
		converter: converter,
		stores:    stores,
		model:     model,
		llms:      llms,
		tracker:   failures,
		opts:      opts,
		stats:     metrics.NewCollector(),
	}
}

// Metrics returns accumulated per-stage timing statistics.
func (p *Pipeline) Metrics() metrics.Snapshot {
	return p.stats.Snapshot()
}

// ProcessFiles runs the full pipeline over the given paths and returns one
// aggregate result. Every input ends up in exactly one of successful,
// failed, or skipped.
func (p *Pipeline) ProcessFiles(ctx context.Context, paths []string) (*BatchResult, error) {
	start := time.Now()

	items := make([]*WorkItem, 0, len(paths))
	for _, path := range paths {
		items = append(items, &WorkItem{
			Path:             path,
			OriginalFilename: filepath.Base(path),
		})
	}

	// Latest terminal result per item wins.
	final := make(map[string]StageResult, len(items))
	record := func(results []StageResult) {
		for _, r := range results {
			final[r.ItemID] = r
		}
	}

	stageStart := time.Now()
	survivors, results := p.runConversion(ctx, items)
	record(results)
	p.stats.RecordStage(StageConversion, len(items), time.Since(stageStart))

	// Two inputs with identical content collapse to the same id; only the
	// first proceeds, the rest are skipped like any other duplicate.
	seen := make(map[string]bool, len(survivors))
	unique := survivors[:0]
	for _, item := range survivors {
		if seen[item.FileID] {
			res := StageResult{
				ItemID:  item.Path,
				Path:    item.Path,
				Stage:   StageConversion,
				Success: true,
				Skipped: true,
			}
			p.emit(StageConversion, res)
			final[res.ItemID] = res
			continue
		}
		seen[item.FileID] = true
		unique = append(unique, item)
	}
	survivors = unique

	stageStart = time.Now()
	entered := len(survivors)
	survivors, results = p.runExtraction(ctx, survivors)
	record(results)
	p.stats.RecordStage(StageExtraction, entered, time.Since(stageStart))

	stageStart = time.Now()
	entered = len(survivors)
	survivors, results = p.runEmbedding(ctx, survivors)
	record(results)
	p.stats.RecordStage(StageEmbedding, entered, time.Since(stageStart))

	stageStart = time.Now()
	record(p.runIngestion(ctx, survivors))
	p.stats.RecordStage(StageIngestion, len(survivors), time.Since(stageStart))

	// Items that made it all the way through are cleared from the ledger.
	for _, item := range survivors {
		if r, ok := final[item.ID()]; ok && r.Success && r.Stage == StageIngestion {
			if err := p.tracker.RecordSuccess(item.Path, item.ContentHash); err != nil {
				slog.Warn("failed to clear ledger entry", "file", item.Path, "error", err)
			}
		}
	}

	batch := summarize(len(paths), final, time.Since(start))
	slog.Info("batch complete",
		"total", batch.Total,
		"successful", batch.Successful,
		"failed", batch.Failed,
		"skipped", batch.Skipped,
		"duration", batch.Duration)
	return batch, nil
}

// ProcessWithRetry runs the batch, then retries conversion-stage failures
// once when auto-retry is on. Conversion failures are the only class safely
// restartable from the raw input; later-stage failures stay in the ledger
// for an explicit retry run.
func (p *Pipeline) ProcessWithRetry(ctx context.Context, paths []string) (*BatchResult, error) {
	start := time.Now()

	batch, err := p.ProcessFiles(ctx, paths)
	if err != nil {
		return nil, err
	}

	if !p.opts.AutoRetry || batch.Failed == 0 || ctx.Err() != nil {
		return batch, nil
	}

	var retryPaths []string
	for _, r := range batch.Results {
		if !r.Success && !r.Skipped && r.Stage == StageConversion {
			retryPaths = append(retryPaths, r.Path)
		}
	}
	if len(retryPaths) == 0 {
		return batch, nil
	}

	slog.Info("retrying conversion failures", "count", len(retryPaths))
	retry, err := p.ProcessFiles(ctx, retryPaths)
	if err != nil {
		return nil, err
	}

	// Fold retry outcomes back in. Retried items keep their path key from
	// the first run unless conversion now succeeded and assigned an id.
	for _, path := range retryPaths {
		delete(batch.Results, path)
	}
	for id, r := range retry.Results {
		batch.Results[id] = r
	}

	merged := summarize(batch.Total, batch.Results, time.Since(start))
	return merged, nil
}

func summarize(total int, final map[string]StageResult, duration time.Duration) *BatchResult {
	batch := &BatchResult{
		Total:    total,
		Duration: duration,
		Results:  final,
	}
	for _, r := range final {
		switch {
		case r.Skipped:
			batch.Skipped++
		case r.Success:
			batch.Successful++
		default:
			batch.Failed++
			batch.FailedFiles = append(batch.FailedFiles, r.Path)
		}
	}
	return batch
}

// failItem records a terminal failure in the ledger and emits progress.
func (p *Pipeline) failItem(item *WorkItem, stage string, cause error) StageResult {
	slog.Warn("item failed", "stage", stage, "file", filepath.Base(item.Path), "error", cause)

	if _, err := p.tracker.RecordFailure(item.Path, item.ContentHash, stage, cause); err != nil {
		slog.Error("failed to persist ledger", "file", item.Path, "error", err)
	}

	res := StageResult{
		ItemID: item.ID(),
		Path:   item.Path,
		Stage:  stage,
		Error:  cause.Error(),
	}
	p.emit(stage, res)
	return res
}

// abortItem records an item that was never processed because the batch
// stopped early. Unlike failItem it does not spend an attempt.
func (p *Pipeline) abortItem(item *WorkItem, stage string, cause error) StageResult {
	slog.Warn("item aborted", "stage", stage, "file", filepath.Base(item.Path), "error", cause)

	if err := p.tracker.RecordAborted(item.Path, item.ContentHash, stage, cause); err != nil {
		slog.Error("failed to persist ledger", "file", item.Path, "error", err)
	}

	res := StageResult{
		ItemID: item.ID(),
		Path:   item.Path,
		Stage:  stage,
		Error:  cause.Error(),
	}
	p.emit(stage, res)
	return res
}

func (p *Pipeline) emit(stage string, res StageResult) {
	if p.opts.Progress == nil {
		return
	}
	p.opts.Progress(stage, ProgressEvent{
		ItemID:  res.ItemID,
		Path:    res.Path,
		Success: res.Success,
		Skipped: res.Skipped,
		Error:   res.Error,
	})
}
