package bootstrap

import (
	"context"

	"github.com/turtacn/casemind/internal/application/catalog"
	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/application/session"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/database/neo4j"
	"github.com/turtacn/casemind/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/casemind/internal/infrastructure/database/redis"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/infrastructure/search/milvus"
	"github.com/turtacn/casemind/internal/infrastructure/search/opensearch"
	"github.com/turtacn/casemind/internal/infrastructure/storage/minio"
	"github.com/turtacn/casemind/internal/intelligence/common"
	"github.com/turtacn/casemind/internal/intelligence/encoder"
)

// Services is the application layer wired over an Infrastructure.
type Services struct {
	Taxonomy   *Taxonomy
	Models     *encoder.Clients
	Cases      casefile.Repository
	Index      casefile.VectorIndex
	Duplicates *casefile.DuplicateResolver
	Documents  ingestion.DocumentStore
	TextIndex  *opensearch.CaseTextIndex
	Analyzer   *ingestion.Analyzer
	Ingestion  ingestion.Service
	Catalog    catalog.Service
	Pipeline   similarity.Pipeline
	Sessions   session.Service
}

// NewServices builds the application services.  metrics may be nil.
func NewServices(ctx context.Context, cfg *config.Config, infra *Infrastructure, logger logging.Logger, metrics common.EngineMetrics) (*Services, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = common.NewNoopEngineMetrics()
	}

	src, err := OntologySource(cfg.Ontology, graphOf(infra), logger)
	if err != nil {
		return nil, err
	}
	tax, err := LoadTaxonomy(ctx, cfg.Ontology, src, logger)
	if err != nil {
		return nil, err
	}

	models, err := encoder.NewClients(cfg.Models, logger, metrics)
	if err != nil {
		return nil, err
	}
	s := &Services{Taxonomy: tax, Models: models}
	if err := s.wire(ctx, cfg, infra, logger, metrics); err != nil {
		_ = models.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) wire(ctx context.Context, cfg *config.Config, infra *Infrastructure, logger logging.Logger, metrics common.EngineMetrics) error {
	repo := repositories.NewCaseRepository(infra.Postgres, logger)
	s.Cases = repo

	// Vectors live in the case table unless milvus is selected.
	var externalIndex casefile.VectorIndex
	s.Index = repo
	if infra.Milvus != nil {
		idx, err := milvus.NewCaseIndex(infra.Milvus, milvus.CaseIndexConfig{
			Collection: cfg.Milvus.Collection,
			Dimension:  cfg.Models.EmbeddingDim,
		}, logger)
		if err != nil {
			return err
		}
		if err := idx.Ensure(ctx, milvus.NewCollectionManager(infra.Milvus, milvus.CollectionConfig{}, logger)); err != nil {
			return err
		}
		s.Index = idx
		externalIndex = idx
	}

	var fingerprints casefile.FingerprintLookup = repo
	if infra.Redis != nil {
		cache := redis.NewRedisCache(infra.Redis, logger, redis.WithPrefix(cfg.Redis.KeyPrefix))
		fingerprints = redis.NewFingerprintCache(repo, cache, cfg.Redis.FingerprintTTL, logger)
	}
	s.Duplicates = casefile.NewDuplicateResolver(fingerprints, repo, logger)

	if infra.MinIO != nil {
		s.Documents = minio.NewDocumentStore(infra.MinIO, logger)
	}

	var (
		text    ingestion.TextIndexer
		catOpts []catalog.Option
	)
	if infra.Search != nil {
		s.TextIndex = opensearch.NewCaseTextIndex(infra.Search, cfg.OpenSearch.Index, logger)
		if err := s.TextIndex.Ensure(ctx); err != nil {
			return err
		}
		text = s.TextIndex
		catOpts = append(catOpts, catalog.WithTextSearch(s.TextIndex))
	}

	var events ingestion.EventPublisher
	if infra.Producer != nil {
		events = ingestion.NewBrokerEventPublisher(infra.Producer, cfg.Kafka.EventTopic)
	}

	analyzer, err := ingestion.NewAnalyzer(ingestion.AnalyzerDeps{
		Resolver:  s.Taxonomy.Resolver,
		Templates: s.Taxonomy.Templates,
		Embedder:  s.Models.Embedder,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}
	s.Analyzer = analyzer

	if s.Ingestion, err = ingestion.NewService(ingestion.Deps{
		Cases:      repo,
		Index:      externalIndex,
		Duplicates: s.Duplicates,
		Analyzer:   analyzer,
		Text:       text,
		Documents:  s.Documents,
		Events:     events,
		Logger:     logger,
		Metrics:    metrics,
	}); err != nil {
		return err
	}

	if s.Catalog, err = catalog.NewService(repo, logger, catOpts...); err != nil {
		return err
	}

	if s.Pipeline, err = similarity.NewPipeline(similarity.Deps{
		Index:    s.Index,
		Cases:    repo,
		Embedder: s.Models.Embedder,
		Reranker: s.Models.Reranker,
		Logger:   logger,
		Metrics:  metrics,
	}, similarity.Config{
		TopK:                 cfg.Similarity.TopK,
		Threshold:            cfg.Similarity.Threshold,
		OversampleFactor:     cfg.Similarity.OversampleFactor,
		NearDuplicateCeiling: cfg.Similarity.NearDuplicateCeiling,
		RerankConcurrency:    cfg.Similarity.RerankConcurrency,
	}); err != nil {
		return err
	}

	var store session.Store
	if infra.Redis != nil {
		store = redis.NewSessionStore(infra.Redis, cfg.Redis.KeyPrefix, cfg.Session.TTL, logger)
	} else {
		store = session.NewMemoryStore(cfg.Session.TTL, nil)
	}
	s.Sessions, err = session.NewService(session.Deps{
		Store:      store,
		Analyzer:   analyzer,
		Pipeline:   s.Pipeline,
		Duplicates: s.Duplicates,
		Documents:  s.Documents,
		Logger:     logger,
		Metrics:    metrics,
		TTL:        cfg.Session.TTL,
	})
	return err
}

// Close stops in-flight sessions and releases the model clients.
func (s *Services) Close(ctx context.Context) error {
	var err error
	if s.Sessions != nil {
		err = s.Sessions.Close(ctx)
	}
	if s.Models != nil {
		_ = s.Models.Close()
	}
	return err
}

// graphOf returns the neo4j executor, or a nil interface when no graph is
// connected.
func graphOf(infra *Infrastructure) neo4j.Executor {
	if infra == nil || infra.Neo4j == nil {
		return nil
	}
	return infra.Neo4j
}

//Personal.AI order the ending
