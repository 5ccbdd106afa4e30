package cli

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/application/catalog"
	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/bootstrap"
	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

// ---------------------------------------------------------------------------
// fakeIngestion
// ---------------------------------------------------------------------------

type fakeIngestion struct {
	mu       sync.Mutex
	requests []*ingestion.IngestRequest
	results  map[string]*ingestion.IngestResult
	errs     map[string]error
	status   casefile.DuplicateStatus
}

func (f *fakeIngestion) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.SourceName]; err != nil {
		return nil, err
	}
	if res, ok := f.results[req.SourceName]; ok {
		return res, nil
	}
	return &ingestion.IngestResult{
		CaseID:      "case-" + req.SourceName,
		Fingerprint: casefile.ComputeFingerprint(req.Content).String(),
		TemplateID:  "ipc_302",
		Confidence:  0.9,
	}, nil
}

func (f *fakeIngestion) CheckDuplicate(_ context.Context, content []byte, knownID string) (casefile.Fingerprint, casefile.DuplicateStatus) {
	return casefile.ComputeFingerprint(content), f.status
}

// ---------------------------------------------------------------------------
// fakePipeline
// ---------------------------------------------------------------------------

type fakePipeline struct {
	mu      sync.Mutex
	queries []similarity.QueryCase
	opts    []similarity.Options
	result  *similarity.RankedResult
	err     error
}

func (f *fakePipeline) Resolve(_ context.Context, q similarity.QueryCase, opts similarity.Options) (*similarity.RankedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakePipeline) Rank(context.Context, similarity.QueryCase, similarity.Options) (*similarity.Ranking, error) {
	return &similarity.Ranking{}, nil
}

func (f *fakePipeline) Refine(*similarity.Ranking, similarity.Options) *similarity.RankedResult {
	return f.result
}

// ---------------------------------------------------------------------------
// fakeCatalog
// ---------------------------------------------------------------------------

type fakeCatalog struct {
	catalog.Service
	records map[string]*casefile.CaseRecord
}

func (f *fakeCatalog) Get(_ context.Context, id string) (*casefile.CaseRecord, error) {
	if rec, ok := f.records[id]; ok {
		return rec, nil
	}
	return nil, casefile.ErrCaseNotFound
}

// ---------------------------------------------------------------------------
// fakeEmbedder
// ---------------------------------------------------------------------------

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (e fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.Embed(ctx, texts[i])
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 4 }

// ---------------------------------------------------------------------------
// fakePublisher / fakeDocuments
// ---------------------------------------------------------------------------

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*pkgtypes.ProducerMessage
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg *pkgtypes.ProducerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeDocuments struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (d *fakeDocuments) PutDocument(_ context.Context, key string, data []byte, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.docs == nil {
		d.docs = map[string][]byte{}
	}
	d.docs[key] = data
	return nil
}

func (d *fakeDocuments) GetDocument(_ context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.docs[key], nil
}

func (d *fakeDocuments) DeleteDocument(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, key)
	return nil
}

// ---------------------------------------------------------------------------
// Substitution helpers
// ---------------------------------------------------------------------------

// withServices makes openServices return svc for the rest of the test.
func withServices(t *testing.T, svc *bootstrap.Services) *bool {
	t.Helper()
	closed := false
	old := openServices
	openServices = func(context.Context, *config.Config, logging.Logger) (*bootstrap.Services, func(), error) {
		return svc, func() { closed = true }, nil
	}
	t.Cleanup(func() { openServices = old })
	return &closed
}

// withEnqueuer makes openEnqueuer return e for the rest of the test.
func withEnqueuer(t *testing.T, e *enqueuer) {
	t.Helper()
	old := openEnqueuer
	openEnqueuer = func(context.Context, *config.Config, logging.Logger) (*enqueuer, func(), error) {
		return e, func() {}, nil
	}
	t.Cleanup(func() { openEnqueuer = old })
}

// testAnalyzer is a real analyzer over the shipped taxonomy.
func testAnalyzer(t *testing.T) *ingestion.Analyzer {
	t.Helper()
	tax := shippedTaxonomy(t)
	a, err := ingestion.NewAnalyzer(ingestion.AnalyzerDeps{
		Resolver:  tax.Resolver,
		Templates: tax.Templates,
		Embedder:  fakeEmbedder{},
	})
	require.NoError(t, err)
	return a
}

//Personal.AI order the ending
