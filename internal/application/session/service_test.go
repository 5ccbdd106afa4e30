package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/internal/intelligence/common"
	"github.com/turtacn/casemind/internal/testutil"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeAnalyzer walks every stage and optionally blocks until released.
type fakeAnalyzer struct {
	gate chan struct{}
	err  error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in ingestion.AnalyzeInput, progress ingestion.ProgressFunc) (*ingestion.Analysis, error) {
	for _, st := range []string{ingestion.StageExtracting, ingestion.StageSummarizing, ingestion.StageExtractingFacts} {
		progress(st)
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	progress(ingestion.StageEmbedding)
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.Analysis{
		Metadata:  legalcase.CaseMetadata{Title: "State v. Ramesh", SectionsInvoked: []string{"IPC 395"}},
		Selection: &ontology.Selection{Template: ontology.GenericTemplate(), Fallback: true},
		Facts:     legalcase.ExtractedFacts{TemplateID: ontology.GenericTemplateID, Summary: "five armed men looted the house"},
	}, nil
}

// fakePipeline returns a canned ranking from Rank and refines with a real
// pipeline so the session sees production filtering.
type fakePipeline struct {
	similarity.Pipeline
	ranking *similarity.Ranking
	err     error

	mu      sync.Mutex
	queries []similarity.QueryCase
	opts    []similarity.Options
}

func (f *fakePipeline) Rank(_ context.Context, q similarity.QueryCase, opts similarity.Options) (*similarity.Ranking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.ranking, nil
}

func (f *fakePipeline) lastRank(t *testing.T) (similarity.QueryCase, similarity.Options) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.queries)
	return f.queries[len(f.queries)-1], f.opts[len(f.opts)-1]
}

type unusedIndex struct{}

func (unusedIndex) Index(context.Context, *casefile.CaseRecord) error { return nil }
func (unusedIndex) QueryByVector(context.Context, casefile.VectorField, []float32, int, string) ([]casefile.VectorHit, error) {
	return nil, nil
}

type unusedLoader struct{}

func (unusedLoader) GetByIDs(context.Context, []string) ([]*casefile.CaseRecord, error) {
	return nil, nil
}

type unusedEncoder struct{}

func (unusedEncoder) Embed(context.Context, string) ([]float32, error)          { return nil, nil }
func (unusedEncoder) EmbedBatch(context.Context, []string) ([][]float32, error) { return nil, nil }
func (unusedEncoder) Dimension() int                                             { return 3 }
func (unusedEncoder) Score(context.Context, string, string) (float64, error)    { return 0, nil }
func (unusedEncoder) ScoreBatch(context.Context, string, []string) ([]float64, error) {
	return nil, nil
}

type staticDuplicates struct {
	status casefile.DuplicateStatus
}

func (s staticDuplicates) Check(context.Context, casefile.Fingerprint, string) casefile.DuplicateStatus {
	return s.status
}

type memDocs struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (d *memDocs) PutDocument(_ context.Context, key string, data []byte, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objs[key] = data
	return nil
}

func (d *memDocs) GetDocument(_ context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.objs[key], nil
}

func (d *memDocs) DeleteDocument(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objs, key)
	return nil
}

func (d *memDocs) has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.objs[key]
	return ok
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

func sampleRanking() *similarity.Ranking {
	return &similarity.Ranking{
		QueryText:  "five armed men looted the house",
		QueryField: string(casefile.FieldFacts),
		Candidates: []similarity.SimilarCase{
			{DocumentID: "twin", RerankScore: 0.995},
			{DocumentID: "a", RerankScore: 0.91},
			{DocumentID: "b", RerankScore: 0.72},
			{DocumentID: "c", RerankScore: 0.40},
			{DocumentID: "d", RerankScore: 0.12},
		},
	}
}

type fixture struct {
	analyzer *fakeAnalyzer
	pipeline *fakePipeline
	store    *MemoryStore
	docs     *memDocs
	logger   *testutil.MockLogger
	metrics  *common.InMemoryEngineMetrics
	svc      Service
}

func newFixture(t *testing.T, analyzer *fakeAnalyzer, dup DuplicateChecker) *fixture {
	t.Helper()
	refiner, err := similarity.NewPipeline(similarity.Deps{
		Index:    unusedIndex{},
		Cases:    unusedLoader{},
		Embedder: unusedEncoder{},
		Reranker: unusedEncoder{},
	}, similarity.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{
		analyzer: analyzer,
		pipeline: &fakePipeline{Pipeline: refiner, ranking: sampleRanking()},
		store:    NewMemoryStore(time.Hour, nil),
		docs:     &memDocs{objs: map[string][]byte{}},
		logger:   testutil.NewMockLogger(),
		metrics:  common.NewInMemoryEngineMetrics(),
	}
	svc, err := NewService(Deps{
		Store:      f.store,
		Analyzer:   f.analyzer,
		Pipeline:   f.pipeline,
		Duplicates: dup,
		Documents:  f.docs,
		Logger:     f.logger,
		Metrics:    f.metrics,
	})
	require.NoError(t, err)
	f.svc = svc
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return f
}

func (f *fixture) waitDone(t *testing.T, id string) *Session {
	t.Helper()
	var sess *Session
	require.Eventually(t, func() bool {
		s, err := f.svc.Get(context.Background(), id)
		if err != nil {
			return false
		}
		sess = s
		return s.Done()
	}, 2*time.Second, 5*time.Millisecond)
	return sess
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(Deps{})
	assert.Error(t, err)
	_, err = NewService(Deps{Store: NewMemoryStore(time.Hour, nil), Analyzer: &fakeAnalyzer{}})
	assert.Error(t, err)
}

func TestCreate_ValidatesRequest(t *testing.T) {
	f := newFixture(t, &fakeAnalyzer{}, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, &CreateRequest{Filename: "a.txt"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))

	_, err = f.svc.Create(ctx, &CreateRequest{Text: "body", Options: similarity.Options{TopK: MaxTopK + 1}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))

	_, err = f.svc.Create(ctx, &CreateRequest{Text: "body", Options: similarity.Options{Threshold: 1.5}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeThresholdInvalid))
}

func TestCreate_CompletesAndCachesRanking(t *testing.T) {
	f := newFixture(t, &fakeAnalyzer{}, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, &CreateRequest{Filename: "upload.txt", Content: []byte("judgment text")})
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, created.Status)
	assert.Equal(t, 0, created.Progress)
	assert.Equal(t, casefile.ComputeFingerprint([]byte("judgment text")).String(), created.Fingerprint)
	assert.True(t, f.docs.has(DocumentKey(created.ID)))

	sess := f.waitDone(t, created.ID)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Equal(t, PhaseCompleted, sess.Phase)
	assert.Equal(t, 100, sess.Progress)
	assert.Equal(t, ontology.GenericTemplateID, sess.TemplateID)
	require.NotNil(t, sess.Ranking)
	assert.Len(t, sess.Ranking.Candidates, 5)

	q, opts := f.pipeline.lastRank(t)
	assert.Equal(t, MaxTopK, opts.TopK, "sessions rank for the largest top_k")
	assert.Empty(t, q.ID)
	assert.Equal(t, "five armed men looted the house", q.FactsSummary)
	assert.True(t, f.logger.HasMessage("info", "search session completed"))
}

func TestResults_RefilterCachedRanking(t *testing.T) {
	f := newFixture(t, &fakeAnalyzer{}, nil)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, &CreateRequest{Filename: "upload.txt", Text: "judgment text"})
	require.NoError(t, err)
	f.waitDone(t, created.ID)

	res, err := f.svc.Results(ctx, created.ID, similarity.Options{TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, created.ID, res.SessionID)
	assert.Equal(t, "State v. Ramesh", res.QueryCase.Metadata.Title)
	assert.Equal(t, 5, res.Similar.CandidatesFound)
	require.Len(t, res.Similar.Results, 2)
	assert.Equal(t, "a", res.Similar.Results[0].DocumentID, "near-duplicate twin is dropped")
	assert.Equal(t, "b", res.Similar.Results[1].DocumentID)

	res, err = f.svc.Results(ctx, created.ID, similarity.Options{TopK: 10, Threshold: 0.5})
	require.NoError(t, err)
	ids := make([]string, 0, len(res.Similar.Results))
	for _, r := range res.Similar.Results {
		ids = append(ids, r.DocumentID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)

	res, err = f.svc.Results(ctx, created.ID, similarity.Options{})
	require.NoError(t, err)
	assert.Len(t, res.Similar.Results, 4, "zero top_k uses the pipeline default")
}

func TestResults_NotReadyWhileProcessing(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, &fakeAnalyzer{gate: gate}, nil)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, &CreateRequest{Text: "judgment text"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := f.svc.Get(ctx, created.ID)
		return err == nil && s.Phase == PhaseExtractingFacts
	}, time.Second, 5*time.Millisecond)

	sess, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, sess.Status)
	assert.Equal(t, 55, sess.Progress)

	_, err = f.svc.Results(ctx, created.ID, similarity.Options{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionNotReady))

	close(gate)
	assert.Equal(t, StatusCompleted, f.waitDone(t, created.ID).Status)
}

func TestSession_FailureIsRecorded(t *testing.T) {
	f := newFixture(t, &fakeAnalyzer{err: errors.New("embedding service down")}, nil)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, &CreateRequest{Text: "judgment text"})
	require.NoError(t, err)

	sess := f.waitDone(t, created.ID)
	assert.Equal(t, StatusFailed, sess.Status)
	assert.Equal(t, PhaseFailed, sess.Phase)
	assert.Equal(t, 75, sess.Progress, "progress of the phase that failed is kept")
	assert.Contains(t, sess.Error, "embedding service down")

	_, err = f.svc.Results(ctx, created.ID, similarity.Options{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionNotReady))
	assert.True(t, f.logger.HasMessage("warn", "search session failed"))
}

func TestSession_RetrievalFailureFailsSession(t *testing.T) {
	f := newFixture(t, &fakeAnalyzer{}, nil)
	f.pipeline.err = apperrors.New(apperrors.ErrCodeRetrievalFailed, "vector index unavailable")

	created, err := f.svc.Create(context.Background(), &CreateRequest{Text: "judgment text"})
	require.NoError(t, err)
	sess := f.waitDone(t, created.ID)
	assert.Equal(t, StatusFailed, sess.Status)
	assert.Equal(t, 90, sess.Progress)
}

func TestSession_DuplicateUploadExcludesStoredCopy(t *testing.T) {
	dup := staticDuplicates{status: casefile.DuplicateStatus{
		IsDuplicate: true, ExistingID: "stored-1", Method: casefile.MatchContentHash, Confidence: casefile.ContentHashConfidence,
	}}
	f := newFixture(t, &fakeAnalyzer{}, dup)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, &CreateRequest{Text: "judgment text"})
	require.NoError(t, err)
	f.waitDone(t, created.ID)

	q, _ := f.pipeline.lastRank(t)
	assert.Equal(t, "stored-1", q.ID)

	res, err := f.svc.Results(ctx, created.ID, similarity.Options{})
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, "stored-1", res.DuplicateOf)
}

func TestDelete_CancelsAndRemoves(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	f := newFixture(t, &fakeAnalyzer{gate: gate}, nil)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, &CreateRequest{Text: "judgment text"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, created.ID))
	assert.False(t, f.docs.has(DocumentKey(created.ID)))

	// give the cancelled worker a chance to misbehave
	require.NoError(t, f.svc.Close(ctx))
	_, err = f.svc.Get(ctx, created.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionNotFound))

	err = f.svc.Delete(ctx, created.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestClose_RejectsNewSessions(t *testing.T) {
	f := newFixture(t, &fakeAnalyzer{}, nil)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, &CreateRequest{Text: "judgment text"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Close(ctx))
	sess, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, sess.Done(), "close waits for in-flight sessions")

	_, err = f.svc.Create(ctx, &CreateRequest{Text: "judgment text"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable))

	n, err := f.svc.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClose_TimesOutOnStuckSession(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	f := newFixture(t, &fakeAnalyzer{gate: gate}, nil)
	_, err := f.svc.Create(context.Background(), &CreateRequest{Text: "judgment text"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = f.svc.Close(ctx)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTimeout))
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Session{ID: "s1", Status: StatusUploaded}, 0))
	require.NoError(t, store.Save(ctx, &Session{ID: "s2"}, 10*time.Minute))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, got.Status)
	n, _ := store.CountActive(ctx)
	assert.Equal(t, int64(2), n)

	now = now.Add(30 * time.Minute)
	_, err = store.Get(ctx, "s2")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionNotFound))
	n, _ = store.CountActive(ctx)
	assert.Equal(t, int64(1), n)

	assert.Error(t, store.Save(ctx, &Session{}, 0))
}

func TestPhaseProgress(t *testing.T) {
	tests := []struct {
		phase Phase
		want  int
	}{
		{PhaseUploaded, 0},
		{PhaseExtracting, 10},
		{PhaseSummarizing, 30},
		{PhaseExtractingFacts, 55},
		{PhaseEmbedding, 75},
		{PhaseSearching, 90},
		{PhaseCompleted, 100},
	}
	for _, tt := range tests {
		got, ok := tt.phase.Progress()
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, tt.phase)
	}
	_, ok := PhaseFailed.Progress()
	assert.False(t, ok)
}

//Personal.AI order the ending
