package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/casemind/casemind-go/internal/llm"
	"github.com/casemind/casemind-go/internal/models"
)

// runExtraction processes items one at a time. The LLM quota is far below
// the conversion parallelism, so the stage submits sequentially and lets
// the pool's limiter pace the calls. Chunking of the full text happens here
// too; it needs no API call.
func (p *Pipeline) runExtraction(ctx context.Context, items []*WorkItem) ([]*WorkItem, []StageResult) {
	var (
		survivors []*WorkItem
		results   []StageResult
	)

	aborted := false
	for i, item := range items {
		if ctx.Err() != nil {
			results = append(results, p.failItem(item, StageExtraction, ctx.Err()))
			continue
		}
		if aborted {
			// No call was made for this item, so its attempt budget stays
			// untouched.
			results = append(results, p.abortItem(item, StageExtraction, errors.New("aborted: fatal API error")))
			continue
		}

		res, err := p.extractOne(ctx, item)
		results = append(results, res)
		if err == nil {
			survivors = append(survivors, item)
		} else if errors.Is(err, llm.ErrFatalAPI) {
			// Quota or auth is gone; further calls only burn attempts.
			slog.Error("fatal API error, aborting extraction", "error", err)
			aborted = true
		}

		// Small spacing between items beyond what the limiter enforces.
		if p.opts.InterItemDelay > 0 && i < len(items)-1 {
			select {
			case <-time.After(p.opts.InterItemDelay):
			case <-ctx.Done():
			}
		}
	}

	return survivors, results
}

func (p *Pipeline) extractOne(ctx context.Context, item *WorkItem) (StageResult, error) {
	slog.Info("extracting summary", "file", filepath.Base(item.Path))

	summary, err := p.llms.ExtractSummary(ctx, item.Text)
	if err != nil {
		return p.failItem(item, StageExtraction, fmt.Errorf("summary: %w", err)), err
	}
	item.Summary = summary

	if p.opts.TemplateID != "" {
		facts, err := p.llms.ExtractTemplateFacts(ctx, item.Text, p.opts.TemplateID)
		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) {
				return p.failItem(item, StageExtraction, fmt.Errorf("template facts: %w", err)), err
			}
			// The summary alone is still a usable result.
			slog.Warn("template facts extraction failed", "file", filepath.Base(item.Path), "error", err)
		} else {
			item.Facts = facts
		}
	}

	item.Sections = buildSections(item)
	item.Chunks = buildChunks(item, p.opts.ChunkTokens)

	res := StageResult{
		ItemID:  item.ID(),
		Path:    item.Path,
		Stage:   StageExtraction,
		Success: true,
	}
	p.emit(StageExtraction, res)
	return res, nil
}

// buildSections materializes the summary's section bodies as records with
// their composite ids. Embeddings are attached later.
func buildSections(item *WorkItem) []models.SectionRecord {
	texts := item.Summary.Sections(item.Facts)
	records := make([]models.SectionRecord, 0, len(texts))
	for _, s := range texts {
		records = append(records, models.SectionRecord{
			SectionID:      models.SectionID(item.FileID, s.Name),
			FileID:         item.FileID,
			SectionName:    s.Name,
			SequenceNumber: s.Sequence,
			Text:           s.Text,
		})
	}
	return records
}

func buildChunks(item *WorkItem, maxTokens int) []models.ChunkRecord {
	chunks := chunkText(item.Text, maxTokens)
	for i := range chunks {
		chunks[i].ChunkID = models.ChunkID(item.FileID, chunks[i].ChunkIndex)
		chunks[i].FileID = item.FileID
	}
	return chunks
}
