package ingestion

import (
	"context"
	"time"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/intelligence/common"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// IngestRequest is one document to store.
type IngestRequest struct {
	SourceName string                  `json:"source_name"`
	Content    []byte                  `json:"content"`
	Text       string                  `json:"text,omitempty"`
	KnownID    string                  `json:"known_id,omitempty"`
	Metadata   *legalcase.CaseMetadata `json:"metadata,omitempty"`
}

// IngestResult is the outcome of one ingestion.
type IngestResult struct {
	CaseID      string                   `json:"case_id"`
	Fingerprint string                   `json:"fingerprint"`
	IsDuplicate bool                     `json:"is_duplicate"`
	Duplicate   casefile.DuplicateStatus `json:"duplicate"`
	TemplateID  string                   `json:"template_id,omitempty"`
	Confidence  float64                  `json:"confidence"`
	Fallback    bool                     `json:"fallback"`
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

// Service is the case write path.
type Service interface {
	// Ingest stores one document unless it is a duplicate.  It is idempotent
	// on the document's fingerprint.
	Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error)
	// CheckDuplicate runs only the duplicate gate.
	CheckDuplicate(ctx context.Context, content []byte, knownID string) (casefile.Fingerprint, casefile.DuplicateStatus)
}

// Deps holds the service collaborators.  Index, Text, Documents and Events
// are optional.  Index is only needed when vectors live outside Cases.
type Deps struct {
	Cases      casefile.Repository
	Index      casefile.VectorIndex
	Duplicates *casefile.DuplicateResolver
	Analyzer   *Analyzer
	Text       TextIndexer
	Documents  DocumentStore
	Events     EventPublisher
	Logger     logging.Logger
	Metrics    common.EngineMetrics
}

type serviceImpl struct {
	cases      casefile.Repository
	index      casefile.VectorIndex
	duplicates *casefile.DuplicateResolver
	analyzer   *Analyzer
	text       TextIndexer
	documents  DocumentStore
	events     EventPublisher
	logger     logging.Logger
	metrics    common.EngineMetrics
	now        func() time.Time
}

// NewService wires the write path.
func NewService(deps Deps) (Service, error) {
	if deps.Cases == nil {
		return nil, apperrors.InvalidParam("ingestion requires a case repository")
	}
	if deps.Analyzer == nil {
		return nil, apperrors.InvalidParam("ingestion requires an analyzer")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = common.NewNoopEngineMetrics()
	}
	if deps.Duplicates == nil {
		deps.Duplicates = casefile.NewDuplicateResolver(deps.Cases, deps.Cases, deps.Logger)
	}
	return &serviceImpl{
		cases:      deps.Cases,
		index:      deps.Index,
		duplicates: deps.Duplicates,
		analyzer:   deps.Analyzer,
		text:       deps.Text,
		documents:  deps.Documents,
		events:     deps.Events,
		logger:     deps.Logger.Named("ingestion"),
		metrics:    deps.Metrics,
		now:        time.Now,
	}, nil
}

func (s *serviceImpl) CheckDuplicate(ctx context.Context, content []byte, knownID string) (casefile.Fingerprint, casefile.DuplicateStatus) {
	fp := casefile.ComputeFingerprint(content)
	st := s.duplicates.Check(ctx, fp, knownID)
	s.metrics.RecordDuplicateDecision(ctx, string(st.Method), st.Degraded)
	return fp, st
}

func (s *serviceImpl) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	if req == nil || (len(req.Content) == 0 && req.Text == "") {
		return nil, apperrors.InvalidParam("document content is empty")
	}
	content := req.Content
	if len(content) == 0 {
		content = []byte(req.Text)
	}
	log := s.logger.WithContext(ctx).With(logging.String("source", req.SourceName))

	// 1. duplicate gate
	fp, status := s.CheckDuplicate(ctx, content, req.KnownID)
	if status.IsDuplicate {
		if err := s.reindex(ctx, status.ExistingID); err != nil {
			log.WithError(err).Error("duplicate case could not be re-indexed", logging.String("case_id", status.ExistingID))
			return nil, err
		}
		res := &IngestResult{
			CaseID:      status.ExistingID,
			Fingerprint: fp.String(),
			IsDuplicate: true,
			Duplicate:   status,
		}
		s.publish(ctx, EventCaseDuplicate, res, req.SourceName, string(status.Method))
		return res, nil
	}

	// 2. analysis
	analysis, err := s.analyzer.Analyze(ctx, AnalyzeInput{
		SourceName: req.SourceName,
		Raw:        content,
		Text:       req.Text,
		Metadata:   req.Metadata,
	}, nil)
	if err != nil {
		log.WithError(err).Warn("case analysis failed")
		return nil, err
	}

	rec := casefile.NewCaseRecord(fp, req.SourceName, analysis.Metadata)
	if id := casefile.RecordID(req.KnownID); id != "" {
		rec.ID = id
	}
	rec.TemplateID = analysis.Selection.Template.ID
	rec.TemplateConfidence = analysis.Selection.Confidence
	rec.Facts = analysis.Facts
	rec.Embeddings = analysis.Embeddings
	if err := rec.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeIngestionFailed, "invalid case record")
	}

	// 3. persist; a concurrent writer may have stored the same fingerprint or id
	inserted, err := s.cases.Put(ctx, rec)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeIngestionFailed, "store case")
	}
	if !inserted {
		status, err = s.concurrentDuplicate(ctx, rec)
		if err != nil {
			return nil, err
		}
		log.Info("case stored concurrently, reporting duplicate", logging.String("existing_id", status.ExistingID))
		res := &IngestResult{CaseID: status.ExistingID, Fingerprint: fp.String(), IsDuplicate: true, Duplicate: status}
		s.publish(ctx, EventCaseDuplicate, res, req.SourceName, string(status.Method))
		return res, nil
	}

	if s.index != nil {
		if err := s.index.Index(ctx, rec); err != nil {
			log.WithError(err).Error("case stored but not indexed", logging.String("case_id", rec.ID))
			return nil, apperrors.Wrap(err, apperrors.ErrCodeIngestionFailed, "index case vectors").WithDetail(rec.ID)
		}
	}

	// 4. side indexes; the case is already durable
	if s.text != nil {
		if err := s.text.IndexCase(ctx, rec); err != nil {
			log.WithError(err).Warn("case not added to text index", logging.String("case_id", rec.ID))
		}
	}
	if s.documents != nil && len(req.Content) > 0 {
		if err := s.documents.PutDocument(ctx, DocumentKey(fp.String()), req.Content, "application/octet-stream"); err != nil {
			log.WithError(err).Warn("raw document not archived", logging.String("case_id", rec.ID))
		}
	}

	res := &IngestResult{
		CaseID:      rec.ID,
		Fingerprint: fp.String(),
		Duplicate:   status,
		TemplateID:  rec.TemplateID,
		Confidence:  rec.TemplateConfidence,
		Fallback:    analysis.Selection.Fallback,
	}
	s.publish(ctx, EventCaseIngested, res, req.SourceName, string(status.Method))

	log.Info("case ingested",
		logging.String("case_id", rec.ID),
		logging.String("fingerprint", fp.Short()),
		logging.String("template_id", rec.TemplateID),
		logging.Float64("confidence", rec.TemplateConfidence))
	return res, nil
}

// reindex upserts the vectors of a stored case into the external index, so a
// retry after an index failure repairs the case instead of stopping at the
// duplicate gate.
func (s *serviceImpl) reindex(ctx context.Context, id string) error {
	if s.index == nil {
		return nil
	}
	rec, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeIngestionFailed, "load duplicate case").WithDetail(id)
	}
	if err := s.index.Index(ctx, rec); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeIngestionFailed, "index case vectors").WithDetail(id)
	}
	return nil
}

// concurrentDuplicate names the stored case that made Put refuse rec.
func (s *serviceImpl) concurrentDuplicate(ctx context.Context, rec *casefile.CaseRecord) (casefile.DuplicateStatus, error) {
	existing, err := s.cases.GetByFingerprint(ctx, rec.Fingerprint)
	if err == nil && existing != nil {
		return casefile.DuplicateStatus{
			IsDuplicate: true,
			ExistingID:  existing.ID,
			Method:      casefile.MatchContentHash,
			Confidence:  casefile.ContentHashConfidence,
		}, nil
	}
	if err != nil && !apperrors.IsNotFound(err) {
		return casefile.DuplicateStatus{}, apperrors.Wrap(err, apperrors.ErrCodeIngestionFailed, "resolve concurrent duplicate")
	}
	if existing, err = s.cases.GetByID(ctx, rec.ID); err != nil {
		return casefile.DuplicateStatus{}, apperrors.Wrap(err, apperrors.ErrCodeIngestionFailed, "resolve concurrent duplicate")
	}
	return casefile.DuplicateStatus{
		IsDuplicate: true,
		ExistingID:  existing.ID,
		Method:      casefile.MatchIdentifier,
		Confidence:  casefile.IdentifierConfidence,
	}, nil
}

func (s *serviceImpl) publish(ctx context.Context, typ string, res *IngestResult, source, method string) {
	if s.events == nil {
		return
	}
	evt := &CaseEvent{
		Type:        typ,
		CaseID:      res.CaseID,
		Fingerprint: res.Fingerprint,
		SourceName:  source,
		TemplateID:  res.TemplateID,
		MatchMethod: method,
		OccurredAt:  s.now().UTC(),
	}
	if err := s.events.PublishCaseEvent(ctx, evt); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("case event not published",
			logging.String("type", typ),
			logging.String("case_id", res.CaseID))
	}
}

//Personal.AI order the ending
