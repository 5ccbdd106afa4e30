package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// SearcherConfig holds configuration for the Searcher.
type SearcherConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// SearchRequest defines a search query.
type SearchRequest struct {
	IndexName      string
	Query          *Query
	Filters        []Filter
	Sort           []SortField
	Pagination     *Pagination
	SourceIncludes []string
}

// Query is a small subset of the query DSL.
type Query struct {
	QueryType string // match | multi_match | term | bool
	Field     string
	Fields    []string
	Value     interface{}
	Must      []Query
	Should    []Query
}

// Filter is a non-scoring condition.
type Filter struct {
	Field      string
	FilterType string // term | terms
	Value      interface{}
}

// SortField defines sorting criteria.
type SortField struct {
	Field string
	Order string
}

// Pagination defines pagination parameters.
type Pagination struct {
	Offset int
	Limit  int
}

// SearchResult holds the search response.
type SearchResult struct {
	Total    int64
	MaxScore float64
	Hits     []SearchHit
	TookMs   int64
}

// SearchHit represents a single search hit.
type SearchHit struct {
	ID     string
	Score  float64
	Source json.RawMessage
}

// Searcher runs queries.
type Searcher struct {
	client *Client
	config SearcherConfig
	logger logging.Logger
}

// NewSearcher creates a new Searcher.
func NewSearcher(client *Client, cfg SearcherConfig, logger logging.Logger) *Searcher {
	if cfg.DefaultPageSize == 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize == 0 {
		cfg.MaxPageSize = 100
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Searcher{client: client, config: cfg, logger: logger}
}

// Search executes req.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.IndexName == "" {
		return nil, errors.New(errors.ErrCodeValidation, "IndexName is required")
	}
	if req.Pagination == nil {
		req.Pagination = &Pagination{Limit: s.config.DefaultPageSize}
	}
	if req.Pagination.Limit <= 0 {
		req.Pagination.Limit = s.config.DefaultPageSize
	}
	if req.Pagination.Limit > s.config.MaxPageSize {
		req.Pagination.Limit = s.config.MaxPageSize
	}
	if req.Pagination.Offset < 0 {
		req.Pagination.Offset = 0
	}

	body, err := json.Marshal(buildQueryDSL(req))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal query DSL")
	}

	start := time.Now()
	resp, err := opensearchapi.SearchRequest{
		Index: []string{req.IndexName},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client.GetClient())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.ErrCodeTimeout, "search request timed out")
		}
		return nil, errors.Wrap(err, errors.ErrCodeSearchError, "search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, responseError(resp, errors.New(errors.ErrCodeSearchError, "search failed"))
	}
	result, err := parseSearchResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search executed",
		logging.String("index", req.IndexName),
		logging.Int64("took_ms", time.Since(start).Milliseconds()),
		logging.Int64("hits", result.Total))
	return result, nil
}

func buildQueryDSL(req SearchRequest) map[string]interface{} {
	dsl := map[string]interface{}{}

	var query map[string]interface{}
	if req.Query != nil {
		query = buildQuery(req.Query)
	}
	if len(req.Filters) > 0 {
		filters := make([]map[string]interface{}, 0, len(req.Filters))
		for _, f := range req.Filters {
			filters = append(filters, map[string]interface{}{
				f.FilterType: map[string]interface{}{f.Field: f.Value},
			})
		}
		must := query
		if must == nil {
			must = map[string]interface{}{"match_all": map[string]interface{}{}}
		}
		query = map[string]interface{}{"bool": map[string]interface{}{
			"must":   must,
			"filter": filters,
		}}
	}
	if query != nil {
		dsl["query"] = query
	}

	if req.Pagination != nil {
		dsl["from"] = req.Pagination.Offset
		dsl["size"] = req.Pagination.Limit
	}
	if len(req.Sort) > 0 {
		sorts := make([]map[string]interface{}, 0, len(req.Sort))
		for _, sf := range req.Sort {
			sorts = append(sorts, map[string]interface{}{sf.Field: map[string]interface{}{"order": sf.Order}})
		}
		dsl["sort"] = sorts
	}
	if req.SourceIncludes != nil {
		dsl["_source"] = req.SourceIncludes
	}
	return dsl
}

func buildQuery(q *Query) map[string]interface{} {
	switch q.QueryType {
	case "match":
		return map[string]interface{}{"match": map[string]interface{}{q.Field: q.Value}}
	case "multi_match":
		return map[string]interface{}{"multi_match": map[string]interface{}{
			"query":  q.Value,
			"fields": q.Fields,
		}}
	case "term":
		return map[string]interface{}{"term": map[string]interface{}{q.Field: q.Value}}
	case "bool":
		b := map[string]interface{}{}
		if len(q.Must) > 0 {
			b["must"] = buildClauses(q.Must)
		}
		if len(q.Should) > 0 {
			b["should"] = buildClauses(q.Should)
		}
		return map[string]interface{}{"bool": b}
	}
	return nil
}

func buildClauses(qs []Query) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(qs))
	for i := range qs {
		out = append(out, buildQuery(&qs[i]))
	}
	return out
}

func parseSearchResponse(body io.Reader) (*SearchResult, error) {
	var resp struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			MaxScore float64 `json:"max_score"`
			Hits     []struct {
				ID     string          `json:"_id"`
				Score  float64         `json:"_score"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	result := &SearchResult{
		Total:    resp.Hits.Total.Value,
		MaxScore: resp.Hits.MaxScore,
		TookMs:   resp.Took,
		Hits:     make([]SearchHit, 0, len(resp.Hits.Hits)),
	}
	for _, h := range resp.Hits.Hits {
		result.Hits = append(result.Hits, SearchHit{ID: h.ID, Score: h.Score, Source: h.Source})
	}
	return result, nil
}

//Personal.AI order the ending
