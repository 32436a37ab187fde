package tracker

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "failed.json")
	tr, err := New(path, 3)
	require.NoError(t, err)
	return tr, path
}

func TestRecordFailure_AttemptsAccumulate(t *testing.T) {
	tr, _ := newTestTracker(t)

	retryable, err := tr.RecordFailure("/docs/case1.pdf", "hash1", "conversion", errors.New("bad pdf"))
	require.NoError(t, err)
	assert.True(t, retryable)

	retryable, err = tr.RecordFailure("/docs/case1.pdf", "hash1", "extraction", errors.New("timeout"))
	require.NoError(t, err)
	assert.True(t, retryable)

	retryable, err = tr.RecordFailure("/docs/case1.pdf", "hash1", "extraction", errors.New("timeout"))
	require.NoError(t, err)
	assert.False(t, retryable, "third failure of three exhausts the item")

	recs := tr.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 3, recs[0].Attempts)
	assert.Equal(t, "extraction", recs[0].Stage, "latest stage wins")
	assert.Equal(t, "case1.pdf", recs[0].OriginalFilename)
}

func TestRecordSuccess_RemovesEntry(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, err := tr.RecordFailure("/docs/case1.pdf", "hash1", "ingestion", errors.New("db down"))
	require.NoError(t, err)

	require.NoError(t, tr.RecordSuccess("/docs/case1.pdf", "hash1"))
	assert.Empty(t, tr.Records())

	// Removing an unknown item is a no-op.
	require.NoError(t, tr.RecordSuccess("/docs/unknown.pdf", ""))
}

func TestRecordSuccess_ClearsPathAndHashEntries(t *testing.T) {
	tr, _ := newTestTracker(t)

	// First run fails before hashing, second run fails after: the same file
	// now has a path-keyed and a hash-keyed entry.
	_, err := tr.RecordFailure("/docs/case1.pdf", "", "conversion", errors.New("unreadable"))
	require.NoError(t, err)
	_, err = tr.RecordFailure("/docs/case1.pdf", "hash1", "extraction", errors.New("timeout"))
	require.NoError(t, err)
	require.Len(t, tr.Records(), 2)

	// A later success clears both; nothing is left to retry.
	require.NoError(t, tr.RecordSuccess("/docs/case1.pdf", "hash1"))
	assert.Empty(t, tr.Records())
	assert.Empty(t, tr.RetryableFiles())
}

func TestRecordAborted_DoesNotSpendAttempts(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.NoError(t, tr.RecordAborted("/docs/case1.pdf", "hash1", "extraction", errors.New("aborted: fatal API error")))
	require.NoError(t, tr.RecordAborted("/docs/case1.pdf", "hash1", "extraction", errors.New("aborted: fatal API error")))

	recs := tr.Records()
	require.Len(t, recs, 1)
	assert.Zero(t, recs[0].Attempts)
	assert.True(t, recs[0].Retryable())
	assert.Equal(t, "extraction", recs[0].Stage)

	// A real attempt afterwards counts from zero.
	_, err := tr.RecordFailure("/docs/case1.pdf", "hash1", "extraction", errors.New("timeout"))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Records()[0].Attempts)
}

func TestKeyedByHashThenPath(t *testing.T) {
	tr, _ := newTestTracker(t)

	// Conversion failure before any hash exists: keyed by path.
	_, err := tr.RecordFailure("/docs/case1.pdf", "", "conversion", errors.New("unreadable"))
	require.NoError(t, err)

	// Same file fails again, still hashless: same entry.
	_, err = tr.RecordFailure("/docs/case1.pdf", "", "conversion", errors.New("unreadable"))
	require.NoError(t, err)

	recs := tr.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Attempts)
}

func TestPersistenceRoundTrip(t *testing.T) {
	tr, path := newTestTracker(t)

	_, err := tr.RecordFailure("/docs/case1.pdf", "hash1", "extraction", errors.New("quota"))
	require.NoError(t, err)
	_, err = tr.RecordFailure("/docs/case2.pdf", "hash2", "conversion", errors.New("bad pdf"))
	require.NoError(t, err)

	reloaded, err := New(path, 3)
	require.NoError(t, err)

	recs := reloaded.Records()
	assert.Len(t, recs, 2)
	assert.ElementsMatch(t,
		[]string{"/docs/case1.pdf", "/docs/case2.pdf"},
		[]string{recs[0].FilePath, recs[1].FilePath})
}

func TestCorruptLedgerStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	tr, err := New(path, 3)
	require.NoError(t, err)
	assert.Empty(t, tr.Records())

	// The corrupt file is kept aside.
	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)
}

func TestRetryableFiles(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, err := tr.RecordFailure("/docs/fresh.pdf", "h1", "extraction", errors.New("timeout"))
	require.NoError(t, err)

	for range 3 {
		_, err = tr.RecordFailure("/docs/exhausted.pdf", "h2", "conversion", errors.New("bad"))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"/docs/fresh.pdf"}, tr.RetryableFiles())
}

func TestSummarize(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, err := tr.RecordFailure("/docs/a.pdf", "h1", "conversion", errors.New("bad"))
	require.NoError(t, err)
	_, err = tr.RecordFailure("/docs/b.pdf", "h2", "conversion", errors.New("bad"))
	require.NoError(t, err)
	for range 3 {
		_, err = tr.RecordFailure("/docs/c.pdf", "h3", "ingestion", errors.New("db"))
		require.NoError(t, err)
	}

	s := tr.Summarize()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Retryable)
	assert.Equal(t, 1, s.Exhausted)
	assert.Equal(t, 2, s.ByStage["conversion"])
	assert.Equal(t, 1, s.ByStage["ingestion"])
}

func TestZeroMaxAttemptsUsesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.json")
	tr, err := New(path, 0)
	require.NoError(t, err)

	retryable, err := tr.RecordFailure("/docs/a.pdf", "h1", "conversion", errors.New("bad"))
	require.NoError(t, err)
	assert.True(t, retryable)
	assert.Equal(t, DefaultMaxAttempts, tr.Records()[0].MaxAttempts)
}
