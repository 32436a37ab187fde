// Package tracker keeps a durable ledger of failed ingestion items so that
// a later run can retry exactly the work that failed. The ledger is a JSON
// file replaced atomically on every change.
package tracker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultMaxAttempts is how often an item may fail before it is parked.
const DefaultMaxAttempts = 3

// FailureRecord is one ledger entry.
type FailureRecord struct {
	FilePath         string    `json:"file_path"`
	FileHash         string    `json:"file_hash,omitempty"`
	Attempts         int       `json:"attempts"`
	MaxAttempts      int       `json:"max_attempts"`
	LastFailure      time.Time `json:"last_failure"`
	Stage            string    `json:"stage"`
	Error            string    `json:"error"`
	OriginalFilename string    `json:"original_filename"`
}

// Retryable reports whether the item has attempts left.
func (r *FailureRecord) Retryable() bool {
	return r.Attempts < r.MaxAttempts
}

// Summary aggregates the ledger for reporting.
type Summary struct {
	Total     int            `json:"total"`
	Retryable int            `json:"retryable"`
	Exhausted int            `json:"exhausted"`
	ByStage   map[string]int `json:"by_stage"`
}

// Tracker is the durable failure ledger. All methods are safe for
// concurrent use.
type Tracker struct {
	mu          sync.Mutex
	path        string
	maxAttempts int
	records     map[string]*FailureRecord
}

// New loads (or creates) the ledger at path.
func New(path string, maxAttempts int) (*Tracker, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	t := &Tracker{
		path:        path,
		maxAttempts: maxAttempts,
		records:     make(map[string]*FailureRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read failure ledger: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &t.records); err != nil {
			// A corrupt ledger should not block ingestion. Start fresh and
			// keep the old file aside for inspection.
			slog.Warn("failure ledger corrupt, starting fresh", "path", path, "error", err)
			_ = os.Rename(path, path+".corrupt")
			t.records = make(map[string]*FailureRecord)
		}
	}
	return t, nil
}

// key prefers the stable content hash; conversion failures that never
// produced a hash fall back to the absolute path.
func key(filePath, fileHash string) string {
	if fileHash != "" {
		return fileHash
	}
	if abs, err := filepath.Abs(filePath); err == nil {
		return abs
	}
	return filePath
}

// RecordFailure notes one failed attempt and persists the ledger. Returns
// whether the item still has attempts left.
func (t *Tracker) RecordFailure(filePath, fileHash, stage string, cause error) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(filePath, fileHash)
	rec, ok := t.records[k]
	if !ok {
		rec = &FailureRecord{
			FilePath:         filePath,
			FileHash:         fileHash,
			MaxAttempts:      t.maxAttempts,
			OriginalFilename: filepath.Base(filePath),
		}
		t.records[k] = rec
	}

	rec.Attempts++
	rec.LastFailure = time.Now().UTC()
	rec.Stage = stage
	if cause != nil {
		rec.Error = cause.Error()
	}
	// Keep hash if a later attempt got further than a previous one.
	if rec.FileHash == "" && fileHash != "" {
		rec.FileHash = fileHash
	}

	if err := t.persist(); err != nil {
		return rec.Retryable(), err
	}
	return rec.Retryable(), nil
}

// RecordAborted notes an item whose processing never ran because the batch
// stopped early. The entry stays retryable; the attempt count is untouched
// since no work was spent on the item.
func (t *Tracker) RecordAborted(filePath, fileHash, stage string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(filePath, fileHash)
	rec, ok := t.records[k]
	if !ok {
		rec = &FailureRecord{
			FilePath:         filePath,
			FileHash:         fileHash,
			MaxAttempts:      t.maxAttempts,
			OriginalFilename: filepath.Base(filePath),
		}
		t.records[k] = rec
	}

	rec.LastFailure = time.Now().UTC()
	rec.Stage = stage
	if cause != nil {
		rec.Error = cause.Error()
	}
	if rec.FileHash == "" && fileHash != "" {
		rec.FileHash = fileHash
	}

	return t.persist()
}

// RecordSuccess removes the item from the ledger, if present. Both the
// hash-keyed entry and any path-keyed entry from a run that failed before
// hashing are cleared, so one file never leaves two records behind.
func (t *Tracker) RecordSuccess(filePath, fileHash string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := false
	if fileHash != "" {
		if _, ok := t.records[fileHash]; ok {
			delete(t.records, fileHash)
			removed = true
		}
	}

	pathKey := filePath
	if abs, err := filepath.Abs(filePath); err == nil {
		pathKey = abs
	}
	if _, ok := t.records[pathKey]; ok {
		delete(t.records, pathKey)
		removed = true
	}

	if !removed {
		return nil
	}
	return t.persist()
}

// RetryableFiles lists the paths of items with attempts left.
func (t *Tracker) RetryableFiles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var paths []string
	for _, rec := range t.records {
		if rec.Retryable() {
			paths = append(paths, rec.FilePath)
		}
	}
	return paths
}

// Records returns a copy of all ledger entries.
func (t *Tracker) Records() []FailureRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]FailureRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	return out
}

// Summarize aggregates the ledger per stage.
func (t *Tracker) Summarize() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{ByStage: make(map[string]int)}
	for _, rec := range t.records {
		s.Total++
		if rec.Retryable() {
			s.Retryable++
		} else {
			s.Exhausted++
		}
		s.ByStage[rec.Stage]++
	}
	return s
}

// persist writes the ledger to a temp file and renames it into place, so a
// crash mid-write never truncates the ledger. Caller holds the lock.
func (t *Tracker) persist() error {
	data, err := json.MarshalIndent(t.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal failure ledger: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close ledger temp file: %w", err)
	}

	if err := os.Rename(tmpName, t.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
