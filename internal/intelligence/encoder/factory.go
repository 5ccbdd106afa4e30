package encoder

import (
	"time"

	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/intelligence/common"
)

// Clients bundles the model clients built from configuration.
type Clients struct {
	Embedder Embedder
	Reranker Reranker

	closers []common.ServingClient
}

// Close releases the underlying HTTP transports.
func (c *Clients) Close() error {
	for _, s := range c.closers {
		_ = s.Close()
	}
	return nil
}

// NewClients builds the embedder and reranker clients from cfg.
func NewClients(cfg config.ModelsConfig, logger logging.Logger, metrics common.EngineMetrics) (*Clients, error) {
	retry := common.DefaultRetryPolicy(cfg.MaxRetries)

	embedSvc, err := common.NewHTTPServingClient(common.ServingConfig{
		BaseURL:          cfg.EmbedderURL,
		ModelName:        "embedder",
		TaskType:         "embed",
		APIKey:           cfg.APIKey,
		Timeout:          cfg.Timeout,
		Retry:            retry,
		CircuitThreshold: 5,
		CircuitReset:     30 * time.Second,
	}, logger, metrics)
	if err != nil {
		return nil, err
	}
	rerankSvc, err := common.NewHTTPServingClient(common.ServingConfig{
		BaseURL:          cfg.RerankerURL,
		ModelName:        "reranker",
		TaskType:         "rerank",
		APIKey:           cfg.APIKey,
		Timeout:          cfg.Timeout,
		Retry:            retry,
		CircuitThreshold: 5,
		CircuitReset:     30 * time.Second,
	}, logger, metrics)
	if err != nil {
		_ = embedSvc.Close()
		return nil, err
	}

	embedder, err := NewEmbedder(embedSvc, cfg.EmbeddingDim, logger)
	if err != nil {
		return nil, err
	}
	reranker, err := NewReranker(rerankSvc, logger)
	if err != nil {
		return nil, err
	}
	return &Clients{
		Embedder: embedder,
		Reranker: reranker,
		closers:  []common.ServingClient{embedSvc, rerankSvc},
	}, nil
}

//Personal.AI order the ending
