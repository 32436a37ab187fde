package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/surrealdb/surrealdb.go"

	"github.com/casemind/casemind-go/internal/models"
)

// Conn is the persistence surface the pipeline needs. *Client implements it;
// tests substitute fakes.
type Conn interface {
	Ping(ctx context.Context) error
	DocumentExists(ctx context.Context, fileID string) (bool, error)
	UpsertDocument(ctx context.Context, doc *models.DocumentRecord) error
	UpsertMetadata(ctx context.Context, meta *models.MetadataRecord) error
	UpsertSections(ctx context.Context, sections []models.SectionRecord) error
	UpsertChunks(ctx context.Context, chunks []models.ChunkRecord) error
	DeleteByFileID(ctx context.Context, collection, fileID string) (int, error)
	Close(ctx context.Context) error
}

// DocumentExists reports whether a document with the given file id has been
// ingested. This is the duplicate short-circuit check, keyed by the
// content-derived id rather than the filename.
func (c *Client) DocumentExists(ctx context.Context, fileID string) (bool, error) {
	sql := `SELECT count() AS c FROM type::record("case_document", $id)`
	results, err := surrealdb.Query[[]struct{ C int }](ctx, c.db, sql, map[string]any{"id": fileID})
	if err != nil {
		return false, fmt.Errorf("check document exists: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return false, nil
	}
	return (*results)[0].Result[0].C > 0, nil
}

// UpsertDocument writes the root document record keyed by file id.
func (c *Client) UpsertDocument(ctx context.Context, doc *models.DocumentRecord) error {
	sql := `
		UPSERT type::record("case_document", $id) SET
			file_id = $file_id,
			content_hash = $content_hash,
			original_filename = $original_filename,
			page_count = $page_count,
			created_at = time::now()
		RETURN NONE
	`
	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":                doc.FileID,
		"file_id":           doc.FileID,
		"content_hash":      doc.ContentHash,
		"original_filename": doc.OriginalFilename,
		"page_count":        doc.PageCount,
	})
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// UpsertMetadata writes the metadata record keyed by its composite id.
func (c *Client) UpsertMetadata(ctx context.Context, meta *models.MetadataRecord) error {
	sql := `
		UPSERT type::record("case_metadata", $id) SET
			metadata_id = $metadata_id,
			file_id = $file_id,
			case_number = $case_number,
			case_title = $case_title,
			court_name = $court_name,
			judgment_date = $judgment_date,
			sections_invoked = $sections_invoked,
			judges_coram = $judges_coram,
			bench_strength = $bench_strength,
			appellant_or_petitioner = $appellant,
			respondent = $respondent,
			case_type = $case_type,
			citation = $citation,
			counsel_for_appellant = $counsel_for_appellant,
			counsel_for_respondent = $counsel_for_respondent,
			most_appropriate_section = $most_appropriate_section
		RETURN NONE
	`
	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":                       meta.MetadataID,
		"metadata_id":              meta.MetadataID,
		"file_id":                  meta.FileID,
		"case_number":              meta.CaseNumber,
		"case_title":               meta.CaseTitle,
		"court_name":               meta.CourtName,
		"judgment_date":            meta.JudgmentDate,
		"sections_invoked":         orEmpty(meta.SectionsInvoked),
		"judges_coram":             orEmpty(meta.JudgesCoram),
		"bench_strength":           meta.BenchStrength,
		"appellant":                meta.Appellant,
		"respondent":               meta.Respondent,
		"case_type":                meta.CaseType,
		"citation":                 meta.Citation,
		"counsel_for_appellant":    meta.CounselForAppellant,
		"counsel_for_respondent":   meta.CounselForRespondent,
		"most_appropriate_section": meta.MostAppropriateSect,
	})
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

// UpsertSections writes all section records for one document.
func (c *Client) UpsertSections(ctx context.Context, sections []models.SectionRecord) error {
	sql := `
		UPSERT type::record("case_section", $id) SET
			section_id = $section_id,
			file_id = $file_id,
			section_name = $section_name,
			sequence_number = $sequence_number,
			text = $text,
			embedding = $embedding
		RETURN NONE
	`
	for i := range sections {
		s := &sections[i]
		_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
			"id":              s.SectionID,
			"section_id":      s.SectionID,
			"file_id":         s.FileID,
			"section_name":    s.SectionName,
			"sequence_number": s.SequenceNumber,
			"text":            s.Text,
			"embedding":       s.Embedding,
		})
		if err != nil {
			return fmt.Errorf("upsert section %s: %w", s.SectionName, err)
		}
	}
	return nil
}

// UpsertChunks writes all chunk records for one document.
func (c *Client) UpsertChunks(ctx context.Context, chunks []models.ChunkRecord) error {
	sql := `
		UPSERT type::record("case_chunk", $id) SET
			chunk_id = $chunk_id,
			file_id = $file_id,
			chunk_index = $chunk_index,
			text = $text,
			token_count = $token_count,
			embedding = $embedding
		RETURN NONE
	`
	for i := range chunks {
		ch := &chunks[i]
		_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
			"id":          ch.ChunkID,
			"chunk_id":    ch.ChunkID,
			"file_id":     ch.FileID,
			"chunk_index": ch.ChunkIndex,
			"text":        ch.Text,
			"token_count": ch.TokenCount,
			"embedding":   ch.Embedding,
		})
		if err != nil {
			return fmt.Errorf("upsert chunk %d: %w", ch.ChunkIndex, err)
		}
	}
	return nil
}

// DeleteByFileID removes every record in a collection belonging to one
// document. Used by the ingestion rollback.
func (c *Client) DeleteByFileID(ctx context.Context, collection, fileID string) (int, error) {
	if !slices.Contains(models.Collections, collection) {
		return 0, fmt.Errorf("unknown collection %q", collection)
	}

	// Table names come from the fixed collection list, never from input.
	sql := fmt.Sprintf("DELETE %s WHERE file_id = $file_id RETURN BEFORE", collection)
	results, err := surrealdb.Query[[]map[string]any](ctx, c.db, sql, map[string]any{
		"file_id": fileID,
	})
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
