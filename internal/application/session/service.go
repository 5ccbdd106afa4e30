package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/intelligence/common"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// DefaultTTL is how long a session lives when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// MaxTopK bounds per-request top_k.  Sessions always rank for MaxTopK so
// any smaller top_k can be served from the cached ranking.
const MaxTopK = similarity.MaxTopK

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// CreateRequest starts a search.  Either Content or Text is required.
// Metadata, when set, skips metadata extraction.
type CreateRequest struct {
	Filename string
	Content  []byte
	Text     string
	Metadata *legalcase.CaseMetadata
	Options  similarity.Options
}

// QueryCaseData describes the uploaded document in a results response.
type QueryCaseData struct {
	Filename    string                   `json:"filename"`
	Fingerprint string                   `json:"file_hash"`
	TemplateID  string                   `json:"template_id"`
	Metadata    legalcase.CaseMetadata   `json:"metadata"`
	Facts       legalcase.ExtractedFacts `json:"facts"`
}

// Results is a completed session filtered with per-request options.
type Results struct {
	SessionID   string                   `json:"session_id"`
	QueryCase   QueryCaseData            `json:"query_case"`
	Similar     *similarity.RankedResult `json:"similar"`
	IsDuplicate bool                     `json:"is_duplicate"`
	DuplicateOf string                   `json:"duplicate_of_file_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Analyzer is the read-only half of ingestion.
type Analyzer interface {
	Analyze(ctx context.Context, in ingestion.AnalyzeInput, progress ingestion.ProgressFunc) (*ingestion.Analysis, error)
}

// DuplicateChecker reports whether an upload is already stored.
type DuplicateChecker interface {
	Check(ctx context.Context, fp casefile.Fingerprint, knownID string) casefile.DuplicateStatus
}

// DocumentKey is the object key of a session's uploaded bytes.
func DocumentKey(id string) string {
	return "sessions/" + id
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service manages search sessions.
type Service interface {
	// Create stores the session and starts processing in the background.
	Create(ctx context.Context, req *CreateRequest) (*Session, error)
	// Get returns the current state of a session.
	Get(ctx context.Context, id string) (*Session, error)
	// Results filters the cached ranking of a completed session.
	Results(ctx context.Context, id string, opts similarity.Options) (*Results, error)
	// Delete cancels processing and removes the session and its upload.
	Delete(ctx context.Context, id string) error
	ActiveCount(ctx context.Context) (int64, error)
	// Close waits for in-flight sessions, cancelling them when ctx expires.
	Close(ctx context.Context) error
}

// Deps holds the session collaborators.  Duplicates and Documents are
// optional.
type Deps struct {
	Store      Store
	Analyzer   Analyzer
	Pipeline   similarity.Pipeline
	Duplicates DuplicateChecker
	Documents  ingestion.DocumentStore
	Logger     logging.Logger
	Metrics    common.EngineMetrics
	TTL        time.Duration
	Now        func() time.Time
}

type serviceImpl struct {
	store      Store
	analyzer   Analyzer
	pipeline   similarity.Pipeline
	duplicates DuplicateChecker
	documents  ingestion.DocumentStore
	logger     logging.Logger
	metrics    common.EngineMetrics
	ttl        time.Duration
	now        func() time.Time

	// writeMu orders background saves against Delete so a deleted session
	// is never written back.
	writeMu sync.Mutex

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewService wires a session Service.
func NewService(deps Deps) (Service, error) {
	if deps.Store == nil || deps.Analyzer == nil || deps.Pipeline == nil {
		return nil, apperrors.InvalidParam("session service requires a store, an analyzer and a similarity pipeline")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = common.NewNoopEngineMetrics()
	}
	if deps.TTL <= 0 {
		deps.TTL = DefaultTTL
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &serviceImpl{
		store:      deps.Store,
		analyzer:   deps.Analyzer,
		pipeline:   deps.Pipeline,
		duplicates: deps.Duplicates,
		documents:  deps.Documents,
		logger:     deps.Logger.Named("session"),
		metrics:    deps.Metrics,
		ttl:        deps.TTL,
		now:        deps.Now,
		running:    make(map[string]context.CancelFunc),
	}, nil
}

func (s *serviceImpl) Create(ctx context.Context, req *CreateRequest) (*Session, error) {
	if req == nil || (len(req.Content) == 0 && strings.TrimSpace(req.Text) == "") {
		return nil, apperrors.InvalidParam("uploaded document is empty")
	}
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, errShuttingDown()
	}
	data := req.Content
	if len(data) == 0 {
		data = []byte(req.Text)
	}

	now := s.now()
	sess := &Session{
		ID:          string(pkgtypes.NewID()),
		Filename:    req.Filename,
		FileSize:    len(data),
		Fingerprint: casefile.ComputeFingerprint(data).String(),
		Options:     req.Options,
		Duplicate:   casefile.NewStatus(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	sess.enter(PhaseUploaded, now)
	if err := s.store.Save(ctx, sess, s.ttl); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageFault, "save search session")
	}

	log := s.logger.WithContext(ctx).With(logging.String("session_id", sess.ID))
	if s.documents != nil {
		if err := s.documents.PutDocument(ctx, DocumentKey(sess.ID), data, "application/octet-stream"); err != nil {
			log.WithError(err).Warn("session upload not archived")
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errShuttingDown()
	}
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.running[sess.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	snapshot := *sess
	in := ingestion.AnalyzeInput{SourceName: req.Filename, Raw: req.Content, Text: req.Text, Metadata: req.Metadata}
	go s.process(pctx, sess, in)

	log.Info("search session created",
		logging.String("filename", sess.Filename),
		logging.Int("file_size", sess.FileSize))
	return &snapshot, nil
}

// process runs analysis and ranking, saving the session after every phase.
func (s *serviceImpl) process(ctx context.Context, sess *Session, in ingestion.AnalyzeInput) {
	defer s.wg.Done()
	defer s.forget(sess.ID)

	start := s.now()
	log := s.logger.WithContext(ctx).With(logging.String("session_id", sess.ID))
	advance := func(p Phase) {
		sess.enter(p, s.now())
		s.save(ctx, sess, log)
	}
	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		sess.Error = err.Error()
		advance(PhaseFailed)
		log.WithError(err).Warn("search session failed", logging.String("phase", string(sess.Phase)))
	}

	if s.duplicates != nil {
		fp, err := casefile.ParseFingerprint(sess.Fingerprint)
		if err == nil {
			sess.Duplicate = s.duplicates.Check(ctx, fp, "")
		}
	}

	analysis, err := s.analyzer.Analyze(ctx, in, func(stage string) {
		if p, ok := stagePhases[stage]; ok {
			advance(p)
		}
	})
	if err != nil {
		fail(err)
		return
	}
	meta, facts := analysis.Metadata, analysis.Facts
	sess.Metadata = &meta
	sess.Facts = &facts
	sess.TemplateID = analysis.Selection.Template.ID
	advance(PhaseSearching)

	// a stored copy of the upload is not its own neighbour
	q := similarity.QueryCase{
		ID:           sess.Duplicate.ExistingID,
		Metadata:     meta,
		FactsSummary: facts.Summary,
		Vectors:      analysis.Embeddings,
	}
	rankOpts := sess.Options
	rankOpts.TopK = MaxTopK
	ranking, err := s.pipeline.Rank(ctx, q, rankOpts)
	if err != nil {
		fail(err)
		return
	}
	sess.Ranking = ranking
	advance(PhaseCompleted)

	elapsed := s.now().Sub(start)
	s.metrics.RecordPipelinePhase(ctx, "session_total", float64(elapsed.Microseconds())/1000.0)
	log.Info("search session completed",
		logging.String("template_id", sess.TemplateID),
		logging.Int("candidates", len(ranking.Candidates)),
		logging.Bool("duplicate", sess.Duplicate.IsDuplicate),
		logging.Duration("elapsed", elapsed))
}

var stagePhases = map[string]Phase{
	ingestion.StageExtracting:      PhaseExtracting,
	ingestion.StageSummarizing:     PhaseSummarizing,
	ingestion.StageExtractingFacts: PhaseExtractingFacts,
	ingestion.StageEmbedding:       PhaseEmbedding,
}

func (s *serviceImpl) save(ctx context.Context, sess *Session, log logging.Logger) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	remaining := sess.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return
	}
	if err := s.store.Save(ctx, sess, remaining); err != nil {
		log.WithError(err).Warn("session state not saved", logging.String("phase", string(sess.Phase)))
	}
}

func (s *serviceImpl) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func errShuttingDown() error {
	return apperrors.New(apperrors.ErrCodeServiceUnavailable, "session service is shutting down")
}

func (s *serviceImpl) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.running[id]; ok {
		cancel()
		delete(s.running, id)
	}
}

func (s *serviceImpl) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperrors.InvalidParam("session id is required")
	}
	return s.store.Get(ctx, id)
}

func (s *serviceImpl) Results(ctx context.Context, id string, opts similarity.Options) (*Results, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case StatusCompleted:
	case StatusFailed:
		return nil, apperrors.New(apperrors.ErrCodeSessionNotReady, "search session failed").WithDetail(sess.Error)
	default:
		return nil, apperrors.New(apperrors.ErrCodeSessionNotReady, "search session not completed").WithDetail(string(sess.Phase))
	}

	if opts.TopK == 0 {
		opts.TopK = sess.Options.TopK
	}
	opts.UseMetadataQuery = sess.Options.UseMetadataQuery

	res := &Results{
		SessionID: sess.ID,
		QueryCase: QueryCaseData{
			Filename:    sess.Filename,
			Fingerprint: sess.Fingerprint,
			TemplateID:  sess.TemplateID,
		},
		Similar:     s.pipeline.Refine(sess.Ranking, opts),
		IsDuplicate: sess.Duplicate.IsDuplicate,
		DuplicateOf: sess.Duplicate.ExistingID,
	}
	if sess.Metadata != nil {
		res.QueryCase.Metadata = *sess.Metadata
	}
	if sess.Facts != nil {
		res.QueryCase.Facts = *sess.Facts
	}
	return res, nil
}

func (s *serviceImpl) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	s.writeMu.Lock()
	s.mu.Lock()
	if cancel, ok := s.running[id]; ok {
		cancel()
	}
	s.mu.Unlock()
	err := s.store.Delete(ctx, id)
	s.writeMu.Unlock()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageFault, "delete search session")
	}

	log := s.logger.WithContext(ctx).With(logging.String("session_id", id))
	if s.documents != nil {
		if err := s.documents.DeleteDocument(ctx, DocumentKey(id)); err != nil {
			log.WithError(err).Warn("session upload not removed")
		}
	}
	log.Info("search session deleted")
	return nil
}

func (s *serviceImpl) ActiveCount(ctx context.Context) (int64, error) {
	return s.store.CountActive(ctx)
}

func (s *serviceImpl) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for _, cancel := range s.running {
			cancel()
		}
		s.mu.Unlock()
		return apperrors.Wrap(ctx.Err(), apperrors.ErrCodeTimeout, "session service close timed out")
	}
}

//Personal.AI order the ending
