// Package encoder holds the clients for the two external models the engine
// depends on: the sentence embedder and the cross-encoder reranker.
package encoder

import (
	"context"
	"strings"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/intelligence/common"
	"github.com/turtacn/casemind/pkg/errors"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

const embedPath = "/v1/embeddings"

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type embedderImpl struct {
	client    common.ServingClient
	dimension int
	logger    logging.Logger
}

// NewEmbedder wraps a serving client. dimension is enforced on every vector
// returned; zero disables the check.
func NewEmbedder(client common.ServingClient, dimension int, logger logging.Logger) (Embedder, error) {
	if client == nil {
		return nil, errors.InvalidParam("serving client is required")
	}
	if dimension < 0 {
		return nil, errors.InvalidParam("embedding dimension must not be negative")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &embedderImpl{client: client, dimension: dimension, logger: logger}, nil
}

func (e *embedderImpl) Dimension() int { return e.dimension }

func (e *embedderImpl) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *embedderImpl) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, errors.Newf(errors.ErrCodeEmbeddingFailed, "input %d is empty", i)
		}
	}

	var resp embeddingResponse
	req := embeddingRequest{Model: e.client.ModelName(), Input: texts}
	if err := e.client.Invoke(ctx, embedPath, req, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "embedding request failed")
	}
	if resp.Error != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "embedder returned error").WithDetail(resp.Error.Message)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Newf(errors.ErrCodeEmbeddingFailed, "expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, errors.Newf(errors.ErrCodeEmbeddingFailed, "embedding index %d out of range or repeated", d.Index)
		}
		if e.dimension > 0 && len(d.Embedding) != e.dimension {
			return nil, errors.Newf(errors.ErrCodeEmbeddingFailed, "embedding dimension %d, want %d", len(d.Embedding), e.dimension)
		}
		out[d.Index] = d.Embedding
	}
	e.logger.Debug("texts embedded", logging.Int("count", len(texts)))
	return out, nil
}

//Personal.AI order the ending
