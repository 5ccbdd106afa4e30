package encoder

import (
	"context"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/intelligence/common"
	"github.com/turtacn/casemind/pkg/errors"
)

// Reranker scores how relevant a candidate text is to a query with a
// cross-encoder. Scores are comparable only within one query.
type Reranker interface {
	Score(ctx context.Context, query, candidate string) (float64, error)
	ScoreBatch(ctx context.Context, query string, candidates []string) ([]float64, error)
}

const rerankPath = "/v1/rerank"

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

type rerankerImpl struct {
	client common.ServingClient
	logger logging.Logger
}

// NewReranker wraps a serving client that speaks the rerank protocol.
func NewReranker(client common.ServingClient, logger logging.Logger) (Reranker, error) {
	if client == nil {
		return nil, errors.InvalidParam("serving client is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &rerankerImpl{client: client, logger: logger}, nil
}

func (r *rerankerImpl) Score(ctx context.Context, query, candidate string) (float64, error) {
	scores, err := r.ScoreBatch(ctx, query, []string{candidate})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch returns one score per candidate in input order, whatever order
// the server lists them in.
func (r *rerankerImpl) ScoreBatch(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}
	var resp rerankResponse
	req := rerankRequest{Model: r.client.ModelName(), Query: query, Documents: candidates}
	if err := r.client.Invoke(ctx, rerankPath, req, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRerankFailed, "rerank request failed")
	}

	scores := make([]float64, len(candidates))
	seen := make([]bool, len(candidates))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(candidates) || seen[res.Index] {
			return nil, errors.Newf(errors.ErrCodeRerankFailed, "rerank index %d out of range or repeated", res.Index)
		}
		seen[res.Index] = true
		scores[res.Index] = res.RelevanceScore
	}
	for i, ok := range seen {
		if !ok {
			return nil, errors.Newf(errors.ErrCodeRerankFailed, "no score for candidate %d", i)
		}
	}
	return scores, nil
}

//Personal.AI order the ending
