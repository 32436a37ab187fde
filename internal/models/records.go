package models

import "time"

// Collection names for the four logical record sets. All four are addressed
// by the same deterministic id family rooted at the file id.
const (
	CollectionDocuments = "case_document"
	CollectionMetadata  = "case_metadata"
	CollectionSections  = "case_section"
	CollectionChunks    = "case_chunk"
)

// Collections lists all four collection names in write order.
var Collections = []string{
	CollectionDocuments,
	CollectionMetadata,
	CollectionSections,
	CollectionChunks,
}

// CollectionsReversed lists the collection names in reverse write order,
// the order compensating deletes run in.
func CollectionsReversed() []string {
	reversed := make([]string, len(Collections))
	for i, name := range Collections {
		reversed[len(Collections)-1-i] = name
	}
	return reversed
}

// DocumentRecord is the root record for an ingested case document.
type DocumentRecord struct {
	FileID           string    `json:"file_id"`
	ContentHash      string    `json:"content_hash"`
	OriginalFilename string    `json:"original_filename"`
	PageCount        int       `json:"page_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// MetadataRecord holds the structured case metadata extracted by the LLM.
type MetadataRecord struct {
	MetadataID           string   `json:"metadata_id"`
	FileID               string   `json:"file_id"`
	CaseNumber           string   `json:"case_number,omitempty"`
	CaseTitle            string   `json:"case_title,omitempty"`
	CourtName            string   `json:"court_name,omitempty"`
	JudgmentDate         string   `json:"judgment_date,omitempty"`
	SectionsInvoked      []string `json:"sections_invoked,omitempty"`
	JudgesCoram          []string `json:"judges_coram,omitempty"`
	BenchStrength        int      `json:"bench_strength"`
	Appellant            string   `json:"appellant_or_petitioner,omitempty"`
	Respondent           string   `json:"respondent,omitempty"`
	CaseType             string   `json:"case_type,omitempty"`
	Citation             string   `json:"citation,omitempty"`
	CounselForAppellant  string   `json:"counsel_for_appellant,omitempty"`
	CounselForRespondent string   `json:"counsel_for_respondent,omitempty"`
	MostAppropriateSect  string   `json:"most_appropriate_section,omitempty"`
}

// SectionRecord is one derived text section of a case, with its vector.
type SectionRecord struct {
	SectionID      string    `json:"section_id"`
	FileID         string    `json:"file_id"`
	SectionName    string    `json:"section_name"`
	SequenceNumber int       `json:"sequence_number"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

// ChunkRecord is one sliding-window chunk of the full case text, with its
// vector.
type ChunkRecord struct {
	ChunkID    string    `json:"chunk_id"`
	FileID     string    `json:"file_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"embedding,omitempty"`
}
