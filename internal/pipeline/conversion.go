package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"context"

	"github.com/casemind/casemind-go/internal/models"
)

// runConversion converts every input in parallel, derives the content
// identity, and short-circuits duplicates against the store before any
// LLM or embedding cost is spent. Returns the items that should continue
// and one terminal-or-passing result per input.
func (p *Pipeline) runConversion(ctx context.Context, items []*WorkItem) ([]*WorkItem, []StageResult) {
	workers := p.opts.Workers
	if workers <= 0 {
		workers = 4
	}

	var (
		mu        sync.Mutex
		survivors []*WorkItem
		results   []StageResult
	)

	itemChan := make(chan *WorkItem, len(items))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for item := range itemChan {
				if ctx.Err() != nil {
					res := p.failItem(item, StageConversion, ctx.Err())
					mu.Lock()
					results = append(results, res)
					mu.Unlock()
					continue
				}

				res, keep := p.convertOne(ctx, workerID, item)
				mu.Lock()
				results = append(results, res)
				if keep {
					survivors = append(survivors, item)
				}
				mu.Unlock()
			}
		}(i)
	}

	for _, item := range items {
		itemChan <- item
	}
	close(itemChan)
	wg.Wait()

	return survivors, results
}

func (p *Pipeline) convertOne(ctx context.Context, workerID int, item *WorkItem) (StageResult, bool) {
	slog.Info("converting file", "worker", workerID, "file", filepath.Base(item.Path))

	doc, err := p.converter.Convert(ctx, item.Path)
	if err != nil {
		return p.failItem(item, StageConversion, err), false
	}
	if doc.Text == "" {
		return p.failItem(item, StageConversion, fmt.Errorf("conversion produced no text")), false
	}

	item.Text = models.CanonicalizeText(doc.Text)
	item.Title = doc.Title
	item.PageCount = doc.PageCount
	item.ContentHash = models.ContentHash(item.Text)
	item.FileID = models.FileID(item.ContentHash)

	// Conversion results are keyed by path, not content id: identical inputs
	// share a FileID and would otherwise collapse to one batch entry.
	dup, err := p.isDuplicate(ctx, item.FileID)
	if err != nil {
		res := p.failItem(item, StageConversion, err)
		res.ItemID = item.Path
		return res, false
	}
	if dup {
		slog.Info("duplicate content, skipping", "file", filepath.Base(item.Path), "file_id", item.FileID)
		res := StageResult{
			ItemID:  item.Path,
			Path:    item.Path,
			Stage:   StageConversion,
			Success: true,
			Skipped: true,
		}
		p.emit(StageConversion, res)
		return res, false
	}

	res := StageResult{
		ItemID:  item.ID(),
		Path:    item.Path,
		Stage:   StageConversion,
		Success: true,
	}
	p.emit(StageConversion, res)
	return res, true
}

func (p *Pipeline) isDuplicate(ctx context.Context, fileID string) (bool, error) {
	conn, release, err := p.stores.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire store: %w", err)
	}
	defer release()

	exists, err := conn.DocumentExists(ctx, fileID)
	if err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	return exists, nil
}
