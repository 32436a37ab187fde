// Package pipeline runs the four-stage ingestion flow: conversion,
// extraction, embedding, ingestion. Each stage consumes only the items that
// survived the previous one; every item ends in exactly one terminal result.
package pipeline

import (
	"time"

	"github.com/casemind/casemind-go/internal/models"
)

// Stage names, also used as ledger stage tags.
const (
	StageConversion = "conversion"
	StageExtraction = "extraction"
	StageEmbedding  = "embedding"
	StageIngestion  = "ingestion"
)

// WorkItem is one input file moving through the pipeline. Stages enrich it
// in place; it is discarded once its terminal result is recorded.
type WorkItem struct {
	Path             string
	OriginalFilename string

	// Set by conversion.
	Text        string
	Title       string
	PageCount   int
	ContentHash string
	FileID      string

	// Set by extraction.
	Summary  *models.CaseSummary
	Facts    *models.TemplateFacts
	Sections []models.SectionRecord
	Chunks   []models.ChunkRecord
}

// ID returns the item's stable identity: the content-derived file id when
// conversion got that far, else the input path.
func (w *WorkItem) ID() string {
	if w.FileID != "" {
		return w.FileID
	}
	return w.Path
}

// StageResult is the terminal per-item outcome of one stage.
type StageResult struct {
	ItemID  string `json:"item_id"`
	Path    string `json:"path"`
	Stage   string `json:"stage"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// BatchResult aggregates one pipeline run. Results are keyed by item
// identity because stage concurrency does not preserve input order.
type BatchResult struct {
	Total       int                    `json:"total"`
	Successful  int                    `json:"successful"`
	Failed      int                    `json:"failed"`
	Skipped     int                    `json:"skipped"`
	Duration    time.Duration          `json:"duration"`
	Results     map[string]StageResult `json:"results"`
	FailedFiles []string               `json:"failed_files,omitempty"`
}

// ProgressEvent describes one item finishing a stage.
type ProgressEvent struct {
	ItemID  string
	Path    string
	Success bool
	Skipped bool
	Error   string
}

// ProgressFunc observes per-item stage completion. It must never affect
// control flow.
type ProgressFunc func(stage string, ev ProgressEvent)
