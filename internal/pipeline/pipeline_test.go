package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casemind/casemind-go/internal/convert"
	"github.com/casemind/casemind-go/internal/llm"
	"github.com/casemind/casemind-go/internal/models"
	"github.com/casemind/casemind-go/internal/pool"
	"github.com/casemind/casemind-go/internal/ratelimit"
	"github.com/casemind/casemind-go/internal/tracker"
)

// fakeConverter reads the file like the real one but lets tests inject
// per-path failures.
type fakeConverter struct {
	mu       sync.Mutex
	failures map[string]int // path -> remaining failures
}

func (f *fakeConverter) Convert(_ context.Context, path string) (*convert.Document, error) {
	f.mu.Lock()
	if n, ok := f.failures[path]; ok && n > 0 {
		f.failures[path] = n - 1
		f.mu.Unlock()
		return nil, errors.New("injected conversion failure")
	}
	f.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, errors.New("empty file")
	}
	return &convert.Document{Text: text, Title: "t", PageCount: 1, Format: "text"}, nil
}

// fakeStore tracks per-collection record counts keyed by file id and can
// fail a named write.
type fakeStore struct {
	mu       sync.Mutex
	records  map[string]map[string]int // collection -> file id -> count
	failOn   string                    // collection name whose write fails
	existing map[string]bool
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		records:  make(map[string]map[string]int),
		existing: make(map[string]bool),
	}
	for _, c := range models.Collections {
		s.records[c] = make(map[string]int)
	}
	return s
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) DocumentExists(_ context.Context, fileID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[fileID], nil
}

func (s *fakeStore) UpsertDocument(_ context.Context, doc *models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == models.CollectionDocuments {
		return errors.New("injected write failure")
	}
	s.records[models.CollectionDocuments][doc.FileID]++
	s.existing[doc.FileID] = true
	return nil
}

func (s *fakeStore) UpsertMetadata(_ context.Context, meta *models.MetadataRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == models.CollectionMetadata {
		return errors.New("injected write failure")
	}
	s.records[models.CollectionMetadata][meta.FileID]++
	return nil
}

func (s *fakeStore) UpsertSections(_ context.Context, sections []models.SectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == models.CollectionSections {
		return errors.New("injected write failure")
	}
	for _, sec := range sections {
		s.records[models.CollectionSections][sec.FileID]++
	}
	return nil
}

func (s *fakeStore) UpsertChunks(_ context.Context, chunks []models.ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == models.CollectionChunks {
		return errors.New("injected write failure")
	}
	for _, ch := range chunks {
		s.records[models.CollectionChunks][ch.FileID]++
	}
	return nil
}

func (s *fakeStore) DeleteByFileID(_ context.Context, collection, fileID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.records[collection][fileID]
	delete(s.records[collection], fileID)
	if collection == models.CollectionDocuments {
		delete(s.existing, fileID)
	}
	return n, nil
}

func (s *fakeStore) Close(context.Context) error { return nil }

func (s *fakeStore) count(collection, fileID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[collection][fileID]
}

// fakeEmbedder returns one-hot vectors identifying each text's position in
// the batch call.
type fakeEmbedder struct {
	calls atomic.Int32
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, len(texts))
		v[i] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 8 }

// fakeExtractor fails any text containing FAILEXTRACT (FATALAPI for a
// fatal provider error); otherwise returns a two-section summary.
type fakeExtractor struct {
	calls atomic.Int32
}

func (f *fakeExtractor) ExtractSummary(_ context.Context, text string) (*models.CaseSummary, error) {
	f.calls.Add(1)
	if strings.Contains(text, "FATALAPI") {
		return nil, fmt.Errorf("%w: credit balance too low", llm.ErrFatalAPI)
	}
	if strings.Contains(text, "FAILEXTRACT") {
		return nil, errors.New("injected extraction failure")
	}
	return &models.CaseSummary{
		Metadata:  models.CaseMetadata{CaseTitle: "State v. Test"},
		CaseFacts: []string{"Fact one.", "Fact two."},
		Judgement: []string{"Dismissed."},
	}, nil
}

func (f *fakeExtractor) ExtractTemplateFacts(context.Context, string, string) (*models.TemplateFacts, error) {
	return &models.TemplateFacts{TemplateID: "t"}, nil
}

type testRig struct {
	pipeline  *Pipeline
	store     *fakeStore
	embedder  *fakeEmbedder
	extractor *fakeExtractor
	tracker   *tracker.Tracker
	converter *fakeConverter
}

func newRig(t *testing.T, opts Options) *testRig {
	t.Helper()

	st := newFakeStore()
	storePool := pool.NewStorePoolWithConn(st, 4)
	require.NoError(t, storePool.Initialize(context.Background()))

	emb := &fakeEmbedder{}
	modelPool := pool.NewModelPoolWithEmbedder(emb)

	ex := &fakeExtractor{}
	llmPool := pool.NewLLMPool(ex, ratelimit.New(6000))

	tr, err := tracker.New(filepath.Join(t.TempDir(), "failed.json"), 3)
	require.NoError(t, err)

	conv := &fakeConverter{failures: map[string]int{}}

	return &testRig{
		pipeline:  New(conv, storePool, modelPool, llmPool, tr, opts),
		store:     st,
		embedder:  emb,
		extractor: ex,
		tracker:   tr,
		converter: conv,
	}
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessFiles_HappyPath(t *testing.T) {
	rig := newRig(t, Options{Workers: 2})
	dir := t.TempDir()
	paths := []string{
		writeInput(t, dir, "a.txt", "judgment text for case A"),
		writeInput(t, dir, "b.txt", "judgment text for case B"),
	}

	batch, err := rig.pipeline.ProcessFiles(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 2, batch.Successful)
	assert.Equal(t, 0, batch.Failed)
	assert.Equal(t, 0, batch.Skipped)
	assert.Equal(t, batch.Total, batch.Successful+batch.Failed+batch.Skipped)

	// Batch embedding: the warmup call plus one call per list (sections,
	// chunks), never one call per item.
	assert.Equal(t, int32(3), rig.embedder.calls.Load())

	for _, p := range paths {
		data, _ := os.ReadFile(p)
		fileID := models.FileID(models.ContentHash(string(data)))
		assert.Equal(t, 1, rig.store.count(models.CollectionDocuments, fileID))
		assert.Equal(t, 1, rig.store.count(models.CollectionMetadata, fileID))
		assert.Equal(t, 2, rig.store.count(models.CollectionSections, fileID))
		assert.GreaterOrEqual(t, rig.store.count(models.CollectionChunks, fileID), 1)
	}
}

func TestProcessFiles_DuplicateShortCircuit(t *testing.T) {
	rig := newRig(t, Options{Workers: 2})
	dir := t.TempDir()
	dup := writeInput(t, dir, "dup.txt", "already ingested judgment")
	fresh := writeInput(t, dir, "fresh.txt", "brand new judgment")

	// Seed the store so dup's content id already exists.
	dupID := models.FileID(models.ContentHash("already ingested judgment"))
	rig.store.existing[dupID] = true

	batch, err := rig.pipeline.ProcessFiles(context.Background(), []string{dup, fresh})
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Skipped)
	assert.Equal(t, 1, batch.Successful)
	assert.Equal(t, 0, batch.Failed)

	// The duplicate never reached extraction or embedding: exactly one
	// extraction call (fresh) and the embedding lists carry only fresh's
	// texts.
	assert.Equal(t, int32(1), rig.extractor.calls.Load())
	assert.Equal(t, 0, rig.store.count(models.CollectionDocuments, dupID))

	// Duplicate skips are keyed by path so identical inputs stay distinct.
	res := batch.Results[dup]
	assert.True(t, res.Skipped)
	assert.True(t, res.Success)
}

func TestProcessFiles_InBatchDuplicatesAlreadyInStore(t *testing.T) {
	rig := newRig(t, Options{Workers: 2})
	dir := t.TempDir()
	a := writeInput(t, dir, "a.txt", "judgment already in store")
	b := writeInput(t, dir, "b.txt", "judgment already in store")

	fileID := models.FileID(models.ContentHash("judgment already in store"))
	rig.store.existing[fileID] = true

	batch, err := rig.pipeline.ProcessFiles(context.Background(), []string{a, b})
	require.NoError(t, err)

	// Both inputs share one content id that the store already holds; each
	// still gets its own skip entry.
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 2, batch.Skipped)
	assert.Equal(t, 0, batch.Successful)
	assert.Equal(t, 0, batch.Failed)
	assert.Equal(t, batch.Total, batch.Successful+batch.Failed+batch.Skipped)
	assert.Len(t, batch.Results, 2)
	assert.True(t, batch.Results[a].Skipped)
	assert.True(t, batch.Results[b].Skipped)
}

func TestProcessFiles_IdempotentReingestion(t *testing.T) {
	rig := newRig(t, Options{Workers: 2})
	dir := t.TempDir()
	path := writeInput(t, dir, "a.txt", "idempotency judgment text")
	fileID := models.FileID(models.ContentHash("idempotency judgment text"))

	first, err := rig.pipeline.ProcessFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Successful)

	second, err := rig.pipeline.ProcessFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Successful)

	// No additional records in any collection.
	assert.Equal(t, 1, rig.store.count(models.CollectionDocuments, fileID))
	assert.Equal(t, 1, rig.store.count(models.CollectionMetadata, fileID))
	assert.Equal(t, 2, rig.store.count(models.CollectionSections, fileID))
}

func TestProcessFiles_InBatchDuplicate(t *testing.T) {
	rig := newRig(t, Options{Workers: 2})
	dir := t.TempDir()
	a := writeInput(t, dir, "a.txt", "same content twice")
	b := writeInput(t, dir, "b.txt", "same content twice")

	batch, err := rig.pipeline.ProcessFiles(context.Background(), []string{a, b})
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Successful)
	assert.Equal(t, 1, batch.Skipped)
	assert.Equal(t, batch.Total, batch.Successful+batch.Failed+batch.Skipped)
}

func TestIngestion_RollbackOnPartialFailure(t *testing.T) {
	rig := newRig(t, Options{Workers: 1})
	rig.store.failOn = models.CollectionSections // third of four writes
	dir := t.TempDir()
	path := writeInput(t, dir, "a.txt", "rollback judgment text")
	fileID := models.FileID(models.ContentHash("rollback judgment text"))

	batch, err := rig.pipeline.ProcessFiles(context.Background(), []string{path})
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Failed)
	res := batch.Results[fileID]
	assert.Equal(t, StageIngestion, res.Stage)
	assert.False(t, res.Success)

	// The compensating delete cleared every collection.
	for _, c := range models.Collections {
		assert.Zero(t, rig.store.count(c, fileID), "collection %s not rolled back", c)
	}

	// The failure landed in the ledger.
	recs := rig.tracker.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, StageIngestion, recs[0].Stage)
}

func TestEmbedding_CrossItemScatter(t *testing.T) {
	rig := newRig(t, Options{})

	itemA := &WorkItem{Path: "a", FileID: "id-a"}
	for i, name := range []string{"case_facts", "evidence", "judgement"} {
		itemA.Sections = append(itemA.Sections, models.SectionRecord{
			SectionName: name, SequenceNumber: i, Text: fmt.Sprintf("A section %d", i),
		})
	}
	itemB := &WorkItem{Path: "b", FileID: "id-b"}
	for i, name := range []string{"case_facts", "reasoning"} {
		itemB.Sections = append(itemB.Sections, models.SectionRecord{
			SectionName: name, SequenceNumber: i, Text: fmt.Sprintf("B section %d", i),
		})
	}

	survivors, results := rig.pipeline.runEmbedding(context.Background(), []*WorkItem{itemA, itemB})
	require.Len(t, survivors, 2)
	for _, r := range results {
		assert.True(t, r.Success)
	}

	// The fake embedder one-hot encodes each text's flattened position, so
	// attribution and per-item order are directly visible: A owns positions
	// 0..2, B owns 3..4.
	for i, sec := range itemA.Sections {
		require.Len(t, sec.Embedding, 5)
		assert.Equal(t, float32(1), sec.Embedding[i], "A section %d misattributed", i)
	}
	for i, sec := range itemB.Sections {
		require.Len(t, sec.Embedding, 5)
		assert.Equal(t, float32(1), sec.Embedding[3+i], "B section %d misattributed", i)
	}
}

func TestProcessFiles_FiveFileScenario(t *testing.T) {
	rig := newRig(t, Options{Workers: 3})
	dir := t.TempDir()

	paths := []string{
		writeInput(t, dir, "ok1.txt", "ordinary judgment one"),
		writeInput(t, dir, "ok2.txt", "ordinary judgment two"),
		writeInput(t, dir, "ok3.txt", "ordinary judgment three"),
		writeInput(t, dir, "dup.txt", "previously ingested judgment"),
		writeInput(t, dir, "bad.txt", "FAILEXTRACT judgment"),
	}

	dupID := models.FileID(models.ContentHash("previously ingested judgment"))
	rig.store.existing[dupID] = true

	batch, err := rig.pipeline.ProcessFiles(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 5, batch.Total)
	assert.Equal(t, 3, batch.Successful)
	assert.Equal(t, 1, batch.Skipped)
	assert.Equal(t, 1, batch.Failed)
	assert.Len(t, rig.tracker.Records(), 1)
	assert.Equal(t, StageExtraction, rig.tracker.Records()[0].Stage)
}

func TestProcessWithRetry_ConversionFailureRetried(t *testing.T) {
	rig := newRig(t, Options{Workers: 1, AutoRetry: true})
	dir := t.TempDir()
	flaky := writeInput(t, dir, "flaky.txt", "flaky judgment text")
	rig.converter.failures[flaky] = 1 // fails once, then succeeds

	batch, err := rig.pipeline.ProcessWithRetry(context.Background(), []string{flaky})
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Total)
	assert.Equal(t, 1, batch.Successful)
	assert.Equal(t, 0, batch.Failed)
}

func TestProcessWithRetry_LaterStageNotRetried(t *testing.T) {
	rig := newRig(t, Options{Workers: 1, AutoRetry: true})
	dir := t.TempDir()
	bad := writeInput(t, dir, "bad.txt", "FAILEXTRACT judgment")

	batch, err := rig.pipeline.ProcessWithRetry(context.Background(), []string{bad})
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Failed)
	// Extraction ran exactly once: no in-run retry for later stages.
	assert.Equal(t, int32(1), rig.extractor.calls.Load())
}

func TestExtraction_FatalAPIAbortSparesAttempts(t *testing.T) {
	rig := newRig(t, Options{Workers: 1})
	dir := t.TempDir()
	paths := []string{
		writeInput(t, dir, "fatal.txt", "FATALAPI judgment"),
		writeInput(t, dir, "ok1.txt", "ordinary judgment one"),
		writeInput(t, dir, "ok2.txt", "ordinary judgment two"),
	}

	batch, err := rig.pipeline.ProcessFiles(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Failed)
	// The fatal error stopped the stage before the remaining items were sent.
	assert.Equal(t, int32(1), rig.extractor.calls.Load())

	recs := rig.tracker.Records()
	require.Len(t, recs, 3)
	for _, rec := range recs {
		if rec.OriginalFilename == "fatal.txt" {
			assert.Equal(t, 1, rec.Attempts)
			continue
		}
		// Items the abort swept up were never attempted; their retry budget
		// is intact.
		assert.Zero(t, rec.Attempts, "file %s", rec.OriginalFilename)
		assert.True(t, rec.Retryable())
		assert.Equal(t, StageExtraction, rec.Stage)
	}
}

func TestProcessFiles_ProgressCallback(t *testing.T) {
	var mu sync.Mutex
	stages := map[string]int{}
	rig := newRig(t, Options{Workers: 1, Progress: func(stage string, ev ProgressEvent) {
		mu.Lock()
		stages[stage]++
		mu.Unlock()
	}})

	dir := t.TempDir()
	path := writeInput(t, dir, "a.txt", "progress judgment text")

	_, err := rig.pipeline.ProcessFiles(context.Background(), []string{path})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, stages[StageConversion])
	assert.Equal(t, 1, stages[StageExtraction])
	assert.Equal(t, 1, stages[StageEmbedding])
	assert.Equal(t, 1, stages[StageIngestion])
}

func TestProcessFiles_CancelledContextRecordsFailures(t *testing.T) {
	rig := newRig(t, Options{Workers: 1})
	dir := t.TempDir()
	path := writeInput(t, dir, "a.txt", "cancelled judgment text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := rig.pipeline.ProcessFiles(ctx, []string{path})
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Failed)
	// The in-flight item landed in the ledger instead of vanishing.
	assert.Len(t, rig.tracker.Records(), 1)
}

func TestChunkText(t *testing.T) {
	words := make([]string, 1000)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := chunkText(text, 480)
	require.NotEmpty(t, chunks)

	// Overlap-free: word counts sum to the original.
	total := 0
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.LessOrEqual(t, ch.TokenCount, 480)
		total += len(strings.Fields(ch.Text))
	}
	assert.Equal(t, 1000, total)

	assert.Empty(t, chunkText("   ", 480))
}
