package store

import "fmt"

// Schema returns the schema initialization SQL. The HNSW indexes are sized
// to the configured embedding dimension, so the schema must be reinitialized
// if the embedding model changes.
func Schema(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- CASE_DOCUMENT TABLE (root record per ingested file)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS case_document SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS file_id ON case_document TYPE string;
    DEFINE FIELD IF NOT EXISTS content_hash ON case_document TYPE string;
    DEFINE FIELD IF NOT EXISTS original_filename ON case_document TYPE string;
    DEFINE FIELD IF NOT EXISTS page_count ON case_document TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created_at ON case_document TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS case_document_hash ON case_document FIELDS content_hash UNIQUE;

    -- ==========================================================================
    -- CASE_METADATA TABLE (structured metadata extracted by the LLM)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS case_metadata SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS metadata_id ON case_metadata TYPE string;
    DEFINE FIELD IF NOT EXISTS file_id ON case_metadata TYPE string;
    DEFINE FIELD IF NOT EXISTS case_number ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS case_title ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS court_name ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS judgment_date ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS sections_invoked ON case_metadata TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS judges_coram ON case_metadata TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS bench_strength ON case_metadata TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS appellant_or_petitioner ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS respondent ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS case_type ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS citation ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS counsel_for_appellant ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS counsel_for_respondent ON case_metadata TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS most_appropriate_section ON case_metadata TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS case_metadata_file ON case_metadata FIELDS file_id;
    DEFINE ANALYZER IF NOT EXISTS case_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS case_metadata_title_ft ON case_metadata FIELDS case_title FULLTEXT ANALYZER case_analyzer BM25;

    -- ==========================================================================
    -- CASE_SECTION TABLE (derived summary sections with vectors)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS case_section SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS section_id ON case_section TYPE string;
    DEFINE FIELD IF NOT EXISTS file_id ON case_section TYPE string;
    DEFINE FIELD IF NOT EXISTS section_name ON case_section TYPE string;
    DEFINE FIELD IF NOT EXISTS sequence_number ON case_section TYPE int;
    DEFINE FIELD IF NOT EXISTS text ON case_section TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON case_section TYPE array<float>;

    DEFINE INDEX IF NOT EXISTS case_section_file ON case_section FIELDS file_id;
    DEFINE INDEX IF NOT EXISTS case_section_embedding ON case_section FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE INDEX IF NOT EXISTS case_section_text_ft ON case_section FIELDS text FULLTEXT ANALYZER case_analyzer BM25;

    -- ==========================================================================
    -- CASE_CHUNK TABLE (full-text sliding-window chunks with vectors)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS case_chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS chunk_id ON case_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS file_id ON case_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS chunk_index ON case_chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS text ON case_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS token_count ON case_chunk TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS embedding ON case_chunk TYPE array<float>;

    DEFINE INDEX IF NOT EXISTS case_chunk_file ON case_chunk FIELDS file_id;
    DEFINE INDEX IF NOT EXISTS case_chunk_embedding ON case_chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE INDEX IF NOT EXISTS case_chunk_text_ft ON case_chunk FIELDS text FULLTEXT ANALYZER case_analyzer BM25;
`, dimension, dimension)
}
