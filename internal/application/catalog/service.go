// Package catalog serves read-only views over stored cases: listings,
// single records, extracted facts and aggregate statistics.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultTopN     = 10
)

// CaseSummary is one row of a catalogue listing.
type CaseSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"case_title"`
	Court      string    `json:"court_name"`
	CaseNumber string    `json:"case_number,omitempty"`
	Date       string    `json:"judgment_date,omitempty"`
	TemplateID string    `json:"template_id"`
	Sections   []string  `json:"sections_invoked"`
	SourceName string    `json:"source_name"`
	FactCount  int       `json:"fact_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// CaseFacts is the extracted facts of one case.
type CaseFacts struct {
	CaseID     string                   `json:"case_id"`
	TemplateID string                   `json:"template_id"`
	Facts      legalcase.ExtractedFacts `json:"facts"`
}

// Service is the catalogue read API.
type Service interface {
	List(ctx context.Context, filter casefile.ListFilter, page pkgtypes.Pagination) (*pkgtypes.PageResponse[CaseSummary], error)
	Get(ctx context.Context, id string) (*casefile.CaseRecord, error)
	Facts(ctx context.Context, id string) (*CaseFacts, error)
	Stats(ctx context.Context, topN int) (*casefile.Stats, error)
	FilterValues(ctx context.Context) (*casefile.FilterValues, error)
}

// TextSearch answers free-text listing queries with matching case ids, best
// match first, and the total match count.
type TextSearch interface {
	SearchCases(ctx context.Context, filter casefile.ListFilter, page pkgtypes.Pagination) ([]string, int64, error)
}

// Option configures the catalogue.
type Option func(*serviceImpl)

// WithTextSearch routes listings with a query through search.
func WithTextSearch(search TextSearch) Option {
	return func(s *serviceImpl) { s.search = search }
}

type serviceImpl struct {
	cases  casefile.Repository
	search TextSearch
	logger logging.Logger
}

// NewService creates a catalogue Service over cases.
func NewService(cases casefile.Repository, logger logging.Logger, opts ...Option) (Service, error) {
	if cases == nil {
		return nil, apperrors.InvalidParam("catalog requires a case repository")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{cases: cases, logger: logger.Named("catalog")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List pages through cases.  A zero page or page size takes the defaults;
// page sizes above 100 are clamped.
func (s *serviceImpl) List(ctx context.Context, filter casefile.ListFilter, page pkgtypes.Pagination) (*pkgtypes.PageResponse[CaseSummary], error) {
	if page.Page <= 0 {
		page.Page = 1
	}
	if page.PageSize <= 0 {
		page.PageSize = defaultPageSize
	}
	if page.PageSize > maxPageSize {
		page.PageSize = maxPageSize
	}
	filter.Section = strings.TrimSpace(filter.Section)
	filter.Court = strings.TrimSpace(filter.Court)
	filter.Query = strings.TrimSpace(filter.Query)

	var (
		recs  []*casefile.CaseRecord
		total int64
		err   error
	)
	if filter.Query != "" && s.search != nil {
		recs, total, err = s.searchList(ctx, filter, page)
	} else {
		recs, total, err = s.cases.List(ctx, filter, page)
	}
	if err != nil {
		return nil, storageFault(err, "list cases")
	}
	items := make([]CaseSummary, 0, len(recs))
	for _, rec := range recs {
		items = append(items, summarize(rec))
	}
	resp := pkgtypes.NewPageResponse(items, total, page)
	return &resp, nil
}

// searchList resolves search hits against the repository in hit order.  Hits
// whose records are gone are dropped.
func (s *serviceImpl) searchList(ctx context.Context, filter casefile.ListFilter, page pkgtypes.Pagination) ([]*casefile.CaseRecord, int64, error) {
	ids, total, err := s.search.SearchCases(ctx, filter, page)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("text search failed, falling back to repository listing")
		return s.cases.List(ctx, filter, page)
	}
	if len(ids) == 0 {
		return nil, total, nil
	}
	found, err := s.cases.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[string]*casefile.CaseRecord, len(found))
	for _, rec := range found {
		byID[rec.ID] = rec
	}
	recs := make([]*casefile.CaseRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			recs = append(recs, rec)
		}
	}
	return recs, total, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (*casefile.CaseRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.InvalidParam("case id is required")
	}
	rec, err := s.cases.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.New(apperrors.ErrCodeCaseNotFound, "case not found").WithDetail(id)
		}
		return nil, storageFault(err, "get case")
	}
	return rec, nil
}

func (s *serviceImpl) Facts(ctx context.Context, id string) (*CaseFacts, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CaseFacts{CaseID: rec.ID, TemplateID: rec.TemplateID, Facts: rec.Facts}, nil
}

func (s *serviceImpl) Stats(ctx context.Context, topN int) (*casefile.Stats, error) {
	if topN <= 0 {
		topN = defaultTopN
	}
	st, err := s.cases.Stats(ctx, topN)
	if err != nil {
		return nil, storageFault(err, "compute case statistics")
	}
	return st, nil
}

func (s *serviceImpl) FilterValues(ctx context.Context) (*casefile.FilterValues, error) {
	fv, err := s.cases.FilterValues(ctx)
	if err != nil {
		return nil, storageFault(err, "list filter values")
	}
	return fv, nil
}

func summarize(rec *casefile.CaseRecord) CaseSummary {
	return CaseSummary{
		ID:         rec.ID,
		Title:      rec.Metadata.Title,
		Court:      rec.Metadata.Court,
		CaseNumber: rec.Metadata.CaseNumber,
		Date:       rec.Metadata.JudgmentDate,
		TemplateID: rec.TemplateID,
		Sections:   append([]string{}, rec.Metadata.SectionsInvoked...),
		SourceName: rec.SourceName,
		FactCount:  rec.Facts.FieldCount(),
		CreatedAt:  rec.CreatedAt,
	}
}

func storageFault(err error, msg string) error {
	if apperrors.GetCode(err) == apperrors.ErrCodeStorageFault {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrCodeStorageFault, msg)
}

//Personal.AI order the ending
