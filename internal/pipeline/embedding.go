package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// vectorRef remembers where a flattened text came from so its vector can be
// scattered back.
type vectorRef struct {
	item  int // index into the stage's item slice
	index int // index into that item's sections or chunks
}

// runEmbedding embeds all sections and all chunks of the whole surviving
// group in one model call per list, then scatters the vectors back to their
// items. Cross-item batching amortizes model overhead; per-item calls would
// pay it once per document.
func (p *Pipeline) runEmbedding(ctx context.Context, items []*WorkItem) ([]*WorkItem, []StageResult) {
	var sectionTexts, chunkTexts []string
	var sectionRefs, chunkRefs []vectorRef

	for i, item := range items {
		for j := range item.Sections {
			sectionTexts = append(sectionTexts, item.Sections[j].Text)
			sectionRefs = append(sectionRefs, vectorRef{item: i, index: j})
		}
		for j := range item.Chunks {
			chunkTexts = append(chunkTexts, item.Chunks[j].Text)
			chunkRefs = append(chunkRefs, vectorRef{item: i, index: j})
		}
	}

	slog.Info("embedding batch", "items", len(items), "sections", len(sectionTexts), "chunks", len(chunkTexts))

	sectionVectors, sectionErr := p.model.EncodeBatch(ctx, sectionTexts, true)
	chunkVectors, chunkErr := p.model.EncodeBatch(ctx, chunkTexts, true)

	if sectionErr != nil || chunkErr != nil {
		// The pool degrades provider failures to zero vectors, so an error
		// here means cancellation or a dead pool: all items fail.
		err := sectionErr
		if err == nil {
			err = chunkErr
		}
		results := make([]StageResult, 0, len(items))
		for _, item := range items {
			results = append(results, p.failItem(item, StageEmbedding, fmt.Errorf("encode batch: %w", err)))
		}
		return nil, results
	}

	for k, v := range sectionVectors {
		ref := sectionRefs[k]
		items[ref.item].Sections[ref.index].Embedding = v
	}
	for k, v := range chunkVectors {
		ref := chunkRefs[k]
		items[ref.item].Chunks[ref.index].Embedding = v
	}

	results := make([]StageResult, 0, len(items))
	for _, item := range items {
		res := StageResult{
			ItemID:  item.ID(),
			Path:    item.Path,
			Stage:   StageEmbedding,
			Success: true,
		}
		p.emit(StageEmbedding, res)
		results = append(results, res)
	}
	return items, results
}
