package opensearch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/types/common"
)

// caseDocument is the indexed form of a CaseRecord.
type caseDocument struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CaseNumber   string    `json:"case_number,omitempty"`
	Court        string    `json:"court,omitempty"`
	CaseType     string    `json:"case_type,omitempty"`
	Sections     []string  `json:"sections"`
	TemplateID   string    `json:"template_id"`
	JudgmentDate string    `json:"judgment_date,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Facts        string    `json:"facts,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// searchFields are matched by free-text queries, with boosts.
var searchFields = []string{"title^3", "case_number^2", "sections^2", "summary", "facts"}

// CaseIndexMapping is the mapping of the case text index.
func CaseIndexMapping() IndexMapping {
	keyword := map[string]interface{}{"type": "keyword"}
	text := map[string]interface{}{"type": "text"}
	return IndexMapping{
		Settings: map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		Mappings: map[string]interface{}{
			"properties": map[string]interface{}{
				"id":            keyword,
				"title":         text,
				"case_number":   keyword,
				"court":         keyword,
				"case_type":     keyword,
				"sections":      keyword,
				"template_id":   keyword,
				"judgment_date": keyword,
				"summary":       text,
				"facts":         text,
				"created_at":    map[string]interface{}{"type": "date"},
			},
		},
	}
}

// CaseTextIndex is the full-text index over stored cases.
type CaseTextIndex struct {
	indexer  *Indexer
	searcher *Searcher
	index    string
	logger   logging.Logger
}

// NewCaseTextIndex builds the index over client.  Call Ensure before use.
func NewCaseTextIndex(client *Client, index string, logger logging.Logger) *CaseTextIndex {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Named("case_text_index")
	return &CaseTextIndex{
		indexer:  NewIndexer(client, IndexerConfig{RefreshPolicy: "false"}, logger),
		searcher: NewSearcher(client, SearcherConfig{}, logger),
		index:    index,
		logger:   logger,
	}
}

// Ensure creates the index if it is missing.
func (x *CaseTextIndex) Ensure(ctx context.Context) error {
	return x.indexer.EnsureIndex(ctx, x.index, CaseIndexMapping())
}

// IndexCase writes rec to the index.
func (x *CaseTextIndex) IndexCase(ctx context.Context, rec *casefile.CaseRecord) error {
	return x.indexer.IndexDocument(ctx, x.index, rec.ID, toDocument(rec))
}

// SearchCases returns the ids of cases matching filter, best match first,
// and the total number of matches.
func (x *CaseTextIndex) SearchCases(ctx context.Context, filter casefile.ListFilter, page common.Pagination) ([]string, int64, error) {
	req := SearchRequest{
		IndexName:      x.index,
		Filters:        filters(filter),
		Pagination:     &Pagination{Offset: page.Offset(), Limit: page.PageSize},
		SourceIncludes: []string{"id"},
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		req.Query = &Query{QueryType: "multi_match", Fields: searchFields, Value: q}
	} else {
		req.Sort = []SortField{{Field: "created_at", Order: "desc"}}
	}

	res, err := x.searcher.Search(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, res.Total, nil
}

func filters(f casefile.ListFilter) []Filter {
	var out []Filter
	if f.Section != "" {
		out = append(out, Filter{Field: "sections", FilterType: "term", Value: f.Section})
	}
	if f.Court != "" {
		out = append(out, Filter{Field: "court", FilterType: "term", Value: f.Court})
	}
	if f.TemplateID != "" {
		out = append(out, Filter{Field: "template_id", FilterType: "term", Value: f.TemplateID})
	}
	return out
}

func toDocument(rec *casefile.CaseRecord) caseDocument {
	return caseDocument{
		ID:           rec.ID,
		Title:        rec.Metadata.Title,
		CaseNumber:   rec.Metadata.CaseNumber,
		Court:        rec.Metadata.Court,
		CaseType:     rec.Metadata.CaseType,
		Sections:     append([]string{}, rec.Metadata.SectionsInvoked...),
		TemplateID:   rec.TemplateID,
		JudgmentDate: rec.Metadata.JudgmentDate,
		Summary:      rec.Facts.Summary,
		Facts:        factsText(rec),
		CreatedAt:    rec.CreatedAt,
	}
}

// factsText flattens the string-valued facts in field order.
func factsText(rec *casefile.CaseRecord) string {
	var parts []string
	tiers := make([]string, 0, len(rec.Facts.Tiers))
	for t := range rec.Facts.Tiers {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)
	for _, t := range tiers {
		fields := rec.Facts.Tiers[t]
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			switch v := fields[name].(type) {
			case string:
				if v != "" {
					parts = append(parts, v)
				}
			case []interface{}:
				for _, item := range v {
					parts = append(parts, fmt.Sprint(item))
				}
			case []string:
				parts = append(parts, v...)
			}
		}
	}
	return strings.Join(parts, "\n")
}

//Personal.AI order the ending
