package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/casemind/casemind-go/internal/models"
	"github.com/casemind/casemind-go/internal/store"
)

// runIngestion writes each surviving item's four record families. A failure
// partway through triggers a compensating delete across all four
// collections so no partially visible document remains.
func (p *Pipeline) runIngestion(ctx context.Context, items []*WorkItem) []StageResult {
	results := make([]StageResult, 0, len(items))

	for _, item := range items {
		if ctx.Err() != nil {
			results = append(results, p.failItem(item, StageIngestion, ctx.Err()))
			continue
		}
		results = append(results, p.ingestOne(ctx, item))
	}
	return results
}

func (p *Pipeline) ingestOne(ctx context.Context, item *WorkItem) StageResult {
	conn, release, err := p.stores.Acquire(ctx)
	if err != nil {
		return p.failItem(item, StageIngestion, fmt.Errorf("acquire store: %w", err))
	}
	defer release()

	if p.opts.StrictSingleWriter {
		p.writerMu.Lock()
		defer p.writerMu.Unlock()
	}

	slog.Info("ingesting", "file", filepath.Base(item.Path), "file_id", item.FileID,
		"sections", len(item.Sections), "chunks", len(item.Chunks))

	if err := p.writeAll(ctx, conn, item); err != nil {
		p.rollback(ctx, conn, item.FileID)
		return p.failItem(item, StageIngestion, err)
	}

	res := StageResult{
		ItemID:  item.ID(),
		Path:    item.Path,
		Stage:   StageIngestion,
		Success: true,
	}
	p.emit(StageIngestion, res)
	return res
}

func (p *Pipeline) writeAll(ctx context.Context, conn store.Conn, item *WorkItem) error {
	doc := &models.DocumentRecord{
		FileID:           item.FileID,
		ContentHash:      item.ContentHash,
		OriginalFilename: item.OriginalFilename,
		PageCount:        item.PageCount,
		CreatedAt:        time.Now().UTC(),
	}
	if err := conn.UpsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	meta := metadataRecord(item)
	if err := conn.UpsertMetadata(ctx, meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	if err := conn.UpsertSections(ctx, item.Sections); err != nil {
		return fmt.Errorf("write sections: %w", err)
	}

	if err := conn.UpsertChunks(ctx, item.Chunks); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	return nil
}

// rollback issues best-effort deletes across all four collections. Rollback
// failures are logged, never returned; the original write error stays the
// item's terminal error.
func (p *Pipeline) rollback(ctx context.Context, conn store.Conn, fileID string) {
	slog.Warn("rolling back partial ingestion", "file_id", fileID)

	for _, collection := range models.CollectionsReversed() {
		deleted, err := conn.DeleteByFileID(ctx, collection, fileID)
		if err != nil {
			slog.Error("rollback delete failed", "collection", collection, "file_id", fileID, "error", err)
			continue
		}
		if deleted > 0 {
			slog.Info("rollback removed records", "collection", collection, "count", deleted)
		}
	}
}

func metadataRecord(item *WorkItem) *models.MetadataRecord {
	m := &models.MetadataRecord{
		MetadataID: models.MetadataID(item.FileID),
		FileID:     item.FileID,
	}
	if item.Summary != nil {
		src := item.Summary.Metadata
		m.CaseNumber = src.CaseNumber
		m.CaseTitle = src.CaseTitle
		m.CourtName = src.CourtName
		m.JudgmentDate = src.JudgmentDate
		m.SectionsInvoked = src.SectionsInvoked
		m.JudgesCoram = src.JudgesCoram
		m.BenchStrength = len(src.JudgesCoram)
		m.Appellant = src.Appellant
		m.Respondent = src.Respondent
		m.CaseType = src.CaseType
		m.Citation = src.Citation
		m.CounselForAppellant = src.CounselForAppellant
		m.CounselForRespondent = src.CounselForRespondent
		m.MostAppropriateSect = src.MostAppropriateSect
	}
	if m.CaseTitle == "" {
		m.CaseTitle = item.Title
	}
	return m
}
