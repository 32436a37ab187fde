// Package convert turns source documents into normalized plain text for the
// ingestion pipeline. Each supported format has its own extractor; dispatch
// is by file extension.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Document is the normalized result of converting one source file.
type Document struct {
	Text      string
	Title     string
	PageCount int
	Format    string
}

// Converter turns a file on disk into a normalized document.
type Converter interface {
	Convert(ctx context.Context, path string) (*Document, error)
}

// FileConverter dispatches on file extension to a format-specific extractor.
type FileConverter struct{}

var _ Converter = (*FileConverter)(nil)

// New returns a converter supporting pdf, html, markdown, and plain text.
func New() *FileConverter {
	return &FileConverter{}
}

// Convert extracts text from the file at path. PDF extraction that fails
// structurally falls back to a raw content-stream scan before giving up.
func (c *FileConverter) Convert(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		doc, err := extractPDF(path)
		if err != nil {
			slog.Warn("structured pdf extraction failed, trying raw scan", "path", path, "error", err)
			doc, err = extractPDFRaw(path)
		}
		if err != nil {
			return nil, fmt.Errorf("convert pdf %s: %w", path, err)
		}
		return doc, nil

	case ".html", ".htm":
		doc, err := extractHTML(path)
		if err != nil {
			return nil, fmt.Errorf("convert html %s: %w", path, err)
		}
		return doc, nil

	case ".md", ".markdown":
		doc, err := extractMarkdown(path)
		if err != nil {
			return nil, fmt.Errorf("convert markdown %s: %w", path, err)
		}
		return doc, nil

	case ".txt", "":
		doc, err := extractText(path, "text")
		if err != nil {
			return nil, fmt.Errorf("convert text %s: %w", path, err)
		}
		return doc, nil

	default:
		return nil, fmt.Errorf("unsupported file format %q", ext)
	}
}

// SupportedExtensions lists the extensions Convert accepts, for directory
// scans.
func SupportedExtensions() []string {
	return []string{".pdf", ".html", ".htm", ".md", ".markdown", ".txt"}
}
