package ingestion

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/internal/intelligence/common"
	"github.com/turtacn/casemind/internal/testutil"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

const sampleJudgment = `IN THE HIGH COURT OF DELHI AT NEW DELHI

CRL.A. 123/2019

State v. Ramesh Kumar

Date of Decision: 14.03.2019

Brief facts of the case are that on the night of 3 March 2018 five armed men entered the house of the complainant. They looted jewellery and cash at knife point. The accused were charged under Sections 395/397 IPC.

Number of accused: five
Weapon used: knife
`

// ---------------------------------------------------------------------------
// memRepo
// ---------------------------------------------------------------------------

type memRepo struct {
	mu      sync.Mutex
	byID    map[string]*casefile.CaseRecord
	byFP    map[casefile.Fingerprint]string
	fpErr   error
	putErr  error
	refuse  bool // Put reports an existing row without storing
	putHits int
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*casefile.CaseRecord{}, byFP: map[casefile.Fingerprint]string{}}
}

func (r *memRepo) GetByFingerprint(_ context.Context, fp casefile.Fingerprint) (*casefile.CaseRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fpErr != nil {
		return nil, r.fpErr
	}
	if id, ok := r.byFP[fp]; ok {
		return r.byID[id], nil
	}
	return nil, casefile.ErrCaseNotFound
}

func (r *memRepo) GetByID(_ context.Context, id string) (*casefile.CaseRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byID[id]; ok {
		return rec, nil
	}
	return nil, casefile.ErrCaseNotFound
}

func (r *memRepo) Put(_ context.Context, rec *casefile.CaseRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putHits++
	if r.putErr != nil {
		return false, r.putErr
	}
	if r.refuse {
		return false, nil
	}
	if _, ok := r.byFP[rec.Fingerprint]; ok {
		return false, nil
	}
	if _, ok := r.byID[rec.ID]; ok {
		return false, nil
	}
	r.byID[rec.ID] = rec
	r.byFP[rec.Fingerprint] = rec.ID
	return true, nil
}

func (r *memRepo) GetByIDs(_ context.Context, ids []string) ([]*casefile.CaseRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*casefile.CaseRecord
	for _, id := range ids {
		if rec, ok := r.byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memRepo) List(context.Context, casefile.ListFilter, pkgtypes.Pagination) ([]*casefile.CaseRecord, int64, error) {
	return nil, 0, nil
}

func (r *memRepo) Count(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.byID)), nil
}

func (r *memRepo) Stats(context.Context, int) (*casefile.Stats, error) { return &casefile.Stats{}, nil }

func (r *memRepo) FilterValues(context.Context) (*casefile.FilterValues, error) {
	return &casefile.FilterValues{}, nil
}

func (r *memRepo) Ping(context.Context) error { return nil }

func (r *memRepo) only(t *testing.T) *casefile.CaseRecord {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.byID, 1)
	for _, rec := range r.byID {
		return rec
	}
	return nil
}

// ---------------------------------------------------------------------------
// collaborators
// ---------------------------------------------------------------------------

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 3 }

type memDocs struct {
	mu   sync.Mutex
	objs map[string][]byte
	err  error
}

func newMemDocs() *memDocs { return &memDocs{objs: map[string][]byte{}} }

func (d *memDocs) PutDocument(_ context.Context, key string, data []byte, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.objs[key] = append([]byte(nil), data...)
	return nil
}

func (d *memDocs) GetDocument(_ context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.objs[key]
	if !ok {
		return nil, apperrors.NotFound("object not found").WithDetail(key)
	}
	return data, nil
}

func (d *memDocs) DeleteDocument(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objs, key)
	return nil
}

type recordingText struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingText) IndexCase(_ context.Context, rec *casefile.CaseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, rec.ID)
	return nil
}

// flakyIndex fails Index while err is set and records the ids it accepted.
type flakyIndex struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (x *flakyIndex) Index(_ context.Context, rec *casefile.CaseRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return x.err
	}
	x.ids = append(x.ids, rec.ID)
	return nil
}

func (x *flakyIndex) QueryByVector(context.Context, casefile.VectorField, []float32, int, string) ([]casefile.VectorHit, error) {
	return []casefile.VectorHit{}, nil
}

func (x *flakyIndex) setErr(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.err = err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*CaseEvent
	err    error
}

func (p *recordingPublisher) PublishCaseEvent(_ context.Context, evt *CaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// ---------------------------------------------------------------------------
// wiring
// ---------------------------------------------------------------------------

func dacoityTemplate() *ontology.Template {
	return &ontology.Template{
		ID:    "ipc_395",
		Label: "Dacoity",
		FactTiers: map[ontology.Tier][]string{
			ontology.TierDeterminative: {"number_of_accused", "weapon_used"},
			ontology.TierProcedural:    {"identification_parade"},
		},
		FieldDefinitions: map[string]ontology.FieldDefinition{
			"number_of_accused":     {Type: "string", Description: "Persons conjointly committing the offense"},
			"weapon_used":           {Type: "string", Description: "Weapon carried or used"},
			"identification_parade": {Type: "boolean", Description: "Whether a TIP was held"},
		},
		BaseConfidence: 0.9,
	}
}

func newTestAnalyzer(t *testing.T, embedder fakeEmbedder, metrics common.EngineMetrics) *Analyzer {
	t.Helper()
	ont, err := ontology.New([]ontology.Node{
		{ID: "criminal_case", Label: "Criminal Case"},
		{ID: "ipc_395", Label: "Dacoity", ParentID: "criminal_case", SectionCodes: []string{"IPC 395"}, ExampleTerms: []string{"dacoity"}},
	})
	require.NoError(t, err)
	store, err := ontology.NewTemplateStore([]*ontology.Template{dacoityTemplate()})
	require.NoError(t, err)

	a, err := NewAnalyzer(AnalyzerDeps{
		Resolver:  ontology.NewResolver(ont),
		Templates: store,
		Embedder:  embedder,
		Metrics:   metrics,
	})
	require.NoError(t, err)
	return a
}

type serviceFixture struct {
	repo    *memRepo
	docs    *memDocs
	text    *recordingText
	events  *recordingPublisher
	logger  *testutil.MockLogger
	metrics *common.InMemoryEngineMetrics
	svc     Service
}

func newServiceFixture(t *testing.T, embedder fakeEmbedder) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:    newMemRepo(),
		docs:    newMemDocs(),
		text:    &recordingText{},
		events:  &recordingPublisher{},
		logger:  testutil.NewMockLogger(),
		metrics: common.NewInMemoryEngineMetrics(),
	}
	svc, err := NewService(Deps{
		Cases:     f.repo,
		Analyzer:  newTestAnalyzer(t, embedder, f.metrics),
		Text:      f.text,
		Documents: f.docs,
		Events:    f.events,
		Logger:    f.logger,
		Metrics:   f.metrics,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

//Personal.AI order the ending
