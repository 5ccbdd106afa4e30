package casefile

import (
	"context"
	"time"

	"github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/common"
)

// ErrCaseNotFound is returned by lookups that find nothing.  Match it with
// errors.Is or errors.IsNotFound.
var ErrCaseNotFound = errors.New(errors.ErrCodeCaseNotFound, "case not found")

// FingerprintLookup finds a stored case by content fingerprint.
type FingerprintLookup interface {
	// GetByFingerprint returns ErrCaseNotFound when no case carries fp.
	GetByFingerprint(ctx context.Context, fp Fingerprint) (*CaseRecord, error)
}

// IdentifierLookup finds a stored case by id.
type IdentifierLookup interface {
	// GetByID returns ErrCaseNotFound when no case has the id.
	GetByID(ctx context.Context, id string) (*CaseRecord, error)
}

// VectorHit is one nearest-neighbour result.
type VectorHit struct {
	CaseID      string  `json:"case_id"`
	CosineScore float64 `json:"cosine_score"`
}

// VectorIndex answers nearest-neighbour queries over case embeddings.
type VectorIndex interface {
	// Index stores or replaces the embeddings of rec.
	Index(ctx context.Context, rec *CaseRecord) error
	// QueryByVector returns up to limit hits on field ordered by cosine
	// similarity descending, never including excludeID.
	QueryByVector(ctx context.Context, field VectorField, vector []float32, limit int, excludeID string) ([]VectorHit, error)
}

// ListFilter narrows a catalogue listing.  Empty fields do not filter.
type ListFilter struct {
	Section    string `json:"section,omitempty" form:"section"`
	Court      string `json:"court,omitempty" form:"court"`
	TemplateID string `json:"template_id,omitempty" form:"template_id"`
	Query      string `json:"query,omitempty" form:"q"`
}

// ValueCount is a distinct value and how many cases carry it.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Stats summarises the stored catalogue.
type Stats struct {
	TotalCases      int64        `json:"total_cases"`
	UniqueTemplates int64        `json:"unique_templates"`
	EarliestDate    *time.Time   `json:"earliest_date,omitempty"`
	LatestDate      *time.Time   `json:"latest_date,omitempty"`
	TopSections     []ValueCount `json:"top_sections"`
	Courts          []ValueCount `json:"courts"`
}

// FilterValues lists the values available for each ListFilter field.
type FilterValues struct {
	Sections  []ValueCount `json:"sections"`
	Courts    []ValueCount `json:"courts"`
	Templates []ValueCount `json:"templates"`
}

// Repository is the persistence contract for case records.
type Repository interface {
	FingerprintLookup
	IdentifierLookup

	// Put persists rec.  When a case with the same fingerprint or the same id
	// already exists nothing is written and inserted is false.
	Put(ctx context.Context, rec *CaseRecord) (inserted bool, err error)

	// GetByIDs returns the records for ids in no particular order; unknown
	// ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*CaseRecord, error)

	List(ctx context.Context, filter ListFilter, page common.Pagination) ([]*CaseRecord, int64, error)
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context, topN int) (*Stats, error)
	FilterValues(ctx context.Context) (*FilterValues, error)
	Ping(ctx context.Context) error
}

//Personal.AI order the ending
