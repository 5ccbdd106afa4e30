// Package similarity answers "find similar cases" queries: query preparation,
// vector retrieval, cross-encoder reranking, threshold filtering,
// near-duplicate suppression and top-K truncation.
package similarity

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/intelligence/common"
	"github.com/turtacn/casemind/internal/intelligence/encoder"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// QueryCase is the case a similarity query is built from. ID, when set, is
// never returned as a result. Vectors may carry precomputed embeddings; a
// missing vector is computed from the query text.
type QueryCase struct {
	ID           string                 `json:"id,omitempty"`
	Metadata     legalcase.CaseMetadata `json:"metadata"`
	FactsSummary string                 `json:"facts_summary,omitempty"`
	Vectors      casefile.EmbeddingPair `json:"-"`
}

// QueryFromRecord builds a query from a stored case.
func QueryFromRecord(rec *casefile.CaseRecord) QueryCase {
	return QueryCase{
		ID:           rec.ID,
		Metadata:     rec.Metadata,
		FactsSummary: rec.FactsText(),
		Vectors:      rec.Embeddings,
	}
}

// Query bounds.  Retrieval asks the index for at most
// MaxTopK * MaxOversampleFactor neighbours.
const (
	MaxTopK             = 20
	MaxOversampleFactor = 10
)

// Options tune one query. Zero TopK uses the configured default.
type Options struct {
	UseMetadataQuery bool    `json:"use_metadata_query"`
	TopK             int     `json:"top_k"`
	Threshold        float64 `json:"threshold"`
}

// Validate rejects a TopK outside [0, MaxTopK] or a threshold outside [0, 1].
func (o Options) Validate() error {
	if o.TopK < 0 {
		return apperrors.InvalidParam("top_k must not be negative")
	}
	if o.TopK > MaxTopK {
		return apperrors.Newf(apperrors.ErrCodeBadRequest, "top_k %d exceeds %d", o.TopK, MaxTopK)
	}
	return validateThreshold(o.Threshold)
}

// SimilarCase is one ranked neighbour. It is never persisted.
type SimilarCase struct {
	DocumentID  string   `json:"document_id"`
	Title       string   `json:"title"`
	Court       string   `json:"court"`
	Date        string   `json:"date,omitempty"`
	CaseNumber  string   `json:"case_number,omitempty"`
	TemplateID  string   `json:"template_id,omitempty"`
	Sections    []string `json:"sections"`
	CosineScore float64  `json:"cosine_score"`
	RerankScore float64  `json:"rerank_score"`
}

// RankedResult is the outcome of a query.
type RankedResult struct {
	QueryText        string        `json:"query_text"`
	QueryField       string        `json:"query_field"`
	CandidatesFound  int           `json:"candidates_found"`
	Results          []SimilarCase `json:"results"`
	TopK             int           `json:"top_k"`
	Threshold        float64       `json:"threshold"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
}

// Ranking is the reranked candidate list before threshold, near-duplicate
// and top-K filtering. Sessions cache it so different top_k and threshold
// values can be applied later without recomputation.
type Ranking struct {
	QueryText  string        `json:"query_text"`
	QueryField string        `json:"query_field"`
	Candidates []SimilarCase `json:"candidates"`
}

// Pipeline phases, used as metric labels.
const (
	PhasePrepare  = "prepare"
	PhaseEmbed    = "embed"
	PhaseRetrieve = "retrieve"
	PhaseLoad     = "load"
	PhaseRerank   = "rerank"
	PhaseFilter   = "filter"
)

// Drop reasons, used as metric labels.
const (
	DropThreshold     = "threshold"
	DropNearDuplicate = "near_duplicate"
	DropTopK          = "top_k"
	DropMissingRecord = "missing_record"
	DropSelf          = "self"
)

// ---------------------------------------------------------------------------
// Port interfaces
// ---------------------------------------------------------------------------

// CaseLoader fetches candidate records by id.
type CaseLoader interface {
	GetByIDs(ctx context.Context, ids []string) ([]*casefile.CaseRecord, error)
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

// Pipeline resolves similarity queries. It never writes.
type Pipeline interface {
	// Resolve runs the whole pipeline.
	Resolve(ctx context.Context, q QueryCase, opts Options) (*RankedResult, error)
	// Rank runs preparation, retrieval and reranking only.
	Rank(ctx context.Context, q QueryCase, opts Options) (*Ranking, error)
	// Refine applies threshold, near-duplicate and top-K filters to a ranking.
	Refine(ranking *Ranking, opts Options) *RankedResult
}

// ---------------------------------------------------------------------------
// Dependencies & config
// ---------------------------------------------------------------------------

// Deps holds the pipeline collaborators.
type Deps struct {
	Index    casefile.VectorIndex
	Cases    CaseLoader
	Embedder encoder.Embedder
	Reranker encoder.Reranker
	Logger   logging.Logger
	Metrics  common.EngineMetrics
}

// Config holds pipeline defaults.
type Config struct {
	TopK                 int
	Threshold            float64
	OversampleFactor     int
	NearDuplicateCeiling float64
	RerankConcurrency    int
}

// DefaultConfig returns topK 5, threshold 0, oversample 3, ceiling 0.99.
func DefaultConfig() Config {
	return Config{
		TopK:                 5,
		Threshold:            0.0,
		OversampleFactor:     3,
		NearDuplicateCeiling: 0.99,
		RerankConcurrency:    4,
	}
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type pipelineImpl struct {
	index    casefile.VectorIndex
	cases    CaseLoader
	embedder encoder.Embedder
	reranker encoder.Reranker
	cfg      Config
	logger   logging.Logger
	metrics  common.EngineMetrics
}

// NewPipeline creates a Pipeline. Zero config fields take DefaultConfig
// values.
func NewPipeline(deps Deps, cfg Config) (Pipeline, error) {
	if deps.Index == nil || deps.Cases == nil || deps.Embedder == nil || deps.Reranker == nil {
		return nil, apperrors.InvalidParam("similarity pipeline requires index, case loader, embedder and reranker")
	}
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.OversampleFactor <= 0 {
		cfg.OversampleFactor = def.OversampleFactor
	}
	if cfg.NearDuplicateCeiling <= 0 {
		cfg.NearDuplicateCeiling = def.NearDuplicateCeiling
	}
	if cfg.RerankConcurrency <= 0 {
		cfg.RerankConcurrency = def.RerankConcurrency
	}
	if cfg.TopK > MaxTopK {
		return nil, apperrors.Newf(apperrors.ErrCodeBadRequest, "default top_k %d exceeds %d", cfg.TopK, MaxTopK)
	}
	if cfg.OversampleFactor > MaxOversampleFactor {
		return nil, apperrors.Newf(apperrors.ErrCodeBadRequest, "oversample factor %d exceeds %d", cfg.OversampleFactor, MaxOversampleFactor)
	}
	if err := validateThreshold(cfg.Threshold); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = common.NewNoopEngineMetrics()
	}
	return &pipelineImpl{
		index:    deps.Index,
		cases:    deps.Cases,
		embedder: deps.Embedder,
		reranker: deps.Reranker,
		cfg:      cfg,
		logger:   deps.Logger.Named("similarity"),
		metrics:  deps.Metrics,
	}, nil
}

func (p *pipelineImpl) Resolve(ctx context.Context, q QueryCase, opts Options) (*RankedResult, error) {
	start := time.Now()
	opts = p.normalize(opts)
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ranking, err := p.Rank(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	res := p.refine(ctx, ranking, opts)
	res.ProcessingTimeMs = time.Since(start).Milliseconds()

	p.logger.WithContext(ctx).Info("similarity query resolved",
		logging.String("query_id", q.ID),
		logging.String("field", ranking.QueryField),
		logging.Int("candidates", len(ranking.Candidates)),
		logging.Int("results", len(res.Results)),
		logging.Int64("elapsed_ms", res.ProcessingTimeMs))
	return res, nil
}

func (p *pipelineImpl) Rank(ctx context.Context, q QueryCase, opts Options) (*Ranking, error) {
	opts = p.normalize(opts)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := p.logger.WithContext(ctx)

	// 1. query preparation
	phase := time.Now()
	text, field := prepareQuery(q, opts.UseMetadataQuery)
	if text == "" {
		return nil, apperrors.New(apperrors.ErrCodeEmptyQuery, "query text is empty").WithDetail(q.ID)
	}
	p.observe(ctx, PhasePrepare, phase)

	vector := q.Vectors.Get(field)
	if len(vector) == 0 {
		phase = time.Now()
		v, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeEmbeddingFailed, "embed similarity query")
		}
		vector = v
		p.observe(ctx, PhaseEmbed, phase)
	}

	ranking := &Ranking{QueryText: text, QueryField: string(field), Candidates: []SimilarCase{}}

	// 2. retrieval, oversampled and excluding the query itself
	phase = time.Now()
	limit, err := retrievalLimit(opts.TopK, p.cfg.OversampleFactor)
	if err != nil {
		return nil, err
	}
	hits, err := p.index.QueryByVector(ctx, field, vector, limit, q.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRetrievalFailed, "vector retrieval failed")
	}
	hits = excludeSelf(hits, q.ID, func(n int) { p.metrics.RecordCandidatesDropped(ctx, DropSelf, n) })
	p.observe(ctx, PhaseRetrieve, phase)
	if len(hits) == 0 {
		log.Debug("no similarity candidates", logging.String("field", string(field)))
		return ranking, nil
	}

	phase = time.Now()
	candidates, err := p.load(ctx, hits)
	if err != nil {
		return nil, err
	}
	p.observe(ctx, PhaseLoad, phase)
	if len(candidates) == 0 {
		return ranking, nil
	}

	// 3. cross-encoder rerank
	phase = time.Now()
	if err := p.rerank(ctx, text, field, candidates); err != nil {
		return nil, err
	}
	p.observe(ctx, PhaseRerank, phase)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sim.RerankScore > candidates[j].sim.RerankScore
	})
	for _, c := range candidates {
		ranking.Candidates = append(ranking.Candidates, c.sim)
	}
	return ranking, nil
}

func (p *pipelineImpl) Refine(ranking *Ranking, opts Options) *RankedResult {
	return p.refine(context.Background(), ranking, p.normalize(opts))
}

// ---------------------------------------------------------------------------
// Phases
// ---------------------------------------------------------------------------

// prepareQuery picks the query text: the facts summary by default, the
// metadata string when asked for or when the summary is empty.
func prepareQuery(q QueryCase, useMetadata bool) (string, casefile.VectorField) {
	if !useMetadata {
		if facts := strings.TrimSpace(q.FactsSummary); facts != "" {
			return facts, casefile.FieldFacts
		}
	}
	return strings.TrimSpace(q.Metadata.QueryText()), casefile.FieldMetadata
}

func excludeSelf(hits []casefile.VectorHit, selfID string, dropped func(int)) []casefile.VectorHit {
	if selfID == "" {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if h.CaseID != selfID {
			out = append(out, h)
		}
	}
	if n := len(hits) - len(out); n > 0 {
		dropped(n)
	}
	return out
}

type candidate struct {
	rec *casefile.CaseRecord
	sim SimilarCase
}

// load fetches the records behind hits and keeps retrieval order.
func (p *pipelineImpl) load(ctx context.Context, hits []casefile.VectorHit) ([]*candidate, error) {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.CaseID
	}
	recs, err := p.cases.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRetrievalFailed, "load similarity candidates")
	}
	byID := make(map[string]*casefile.CaseRecord, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}

	out := make([]*candidate, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		rec, ok := byID[h.CaseID]
		if !ok || seen[h.CaseID] {
			continue
		}
		seen[h.CaseID] = true
		out = append(out, &candidate{rec: rec, sim: toSimilarCase(rec, h.CosineScore)})
	}
	if missing := len(hits) - len(out); missing > 0 {
		p.metrics.RecordCandidatesDropped(ctx, DropMissingRecord, missing)
		p.logger.WithContext(ctx).Warn("vector hits without a stored case", logging.Int("missing", missing))
	}
	return out, nil
}

func (p *pipelineImpl) rerank(ctx context.Context, query string, field casefile.VectorField, cands []*candidate) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.RerankConcurrency)
	for _, c := range cands {
		c := c
		g.Go(func() error {
			text := c.rec.TextFor(field)
			if text == "" {
				text = c.rec.MetadataText()
			}
			score, err := p.reranker.Score(gctx, query, text)
			if err != nil {
				return err
			}
			c.sim.RerankScore = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeRerankFailed, "rerank similarity candidates")
	}
	return nil
}

// refine keeps rerank >= threshold, drops rerank >= ceiling and truncates
// to topK. The input order is preserved.
func (p *pipelineImpl) refine(ctx context.Context, ranking *Ranking, opts Options) *RankedResult {
	start := time.Now()
	res := &RankedResult{
		Results:   []SimilarCase{},
		TopK:      opts.TopK,
		Threshold: opts.Threshold,
	}
	if ranking == nil {
		return res
	}
	res.QueryText = ranking.QueryText
	res.QueryField = ranking.QueryField
	res.CandidatesFound = len(ranking.Candidates)

	var belowThreshold, nearDuplicate int
	for _, c := range ranking.Candidates {
		switch {
		case c.RerankScore < opts.Threshold:
			belowThreshold++
		case c.RerankScore >= p.cfg.NearDuplicateCeiling:
			nearDuplicate++
		default:
			res.Results = append(res.Results, c)
		}
	}
	truncated := 0
	if len(res.Results) > opts.TopK {
		truncated = len(res.Results) - opts.TopK
		res.Results = res.Results[:opts.TopK]
	}

	p.metrics.RecordCandidatesDropped(ctx, DropThreshold, belowThreshold)
	p.metrics.RecordCandidatesDropped(ctx, DropNearDuplicate, nearDuplicate)
	p.metrics.RecordCandidatesDropped(ctx, DropTopK, truncated)
	p.observe(ctx, PhaseFilter, start)
	return res
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (p *pipelineImpl) normalize(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = p.cfg.TopK
	}
	return opts
}

func (p *pipelineImpl) observe(ctx context.Context, phase string, since time.Time) {
	p.metrics.RecordPipelinePhase(ctx, phase, float64(time.Since(since).Microseconds())/1000.0)
}

// retrievalLimit is topK * factor, with both operands bounded so the product
// cannot overflow or exceed what the index is asked for.
func retrievalLimit(topK, factor int) (int, error) {
	if topK < 1 || topK > MaxTopK {
		return 0, apperrors.Newf(apperrors.ErrCodeBadRequest, "top_k %d outside [1, %d]", topK, MaxTopK)
	}
	if factor < 1 || factor > MaxOversampleFactor {
		return 0, apperrors.Newf(apperrors.ErrCodeBadRequest, "oversample factor %d outside [1, %d]", factor, MaxOversampleFactor)
	}
	return topK * factor, nil
}

func validateThreshold(t float64) error {
	if t < 0 || t > 1 {
		return apperrors.Newf(apperrors.ErrCodeThresholdInvalid, "threshold %.3f outside [0, 1]", t)
	}
	return nil
}

func toSimilarCase(rec *casefile.CaseRecord, cosine float64) SimilarCase {
	sc := SimilarCase{
		DocumentID:  rec.ID,
		Title:       rec.Metadata.Title,
		Court:       rec.Metadata.Court,
		CaseNumber:  rec.Metadata.CaseNumber,
		TemplateID:  rec.TemplateID,
		Sections:    append([]string{}, rec.Metadata.SectionsInvoked...),
		CosineScore: cosine,
	}
	if rec.JudgmentDate != nil {
		sc.Date = rec.JudgmentDate.Format("2006-01-02")
	} else {
		sc.Date = rec.Metadata.JudgmentDate
	}
	return sc
}

//Personal.AI order the ending
