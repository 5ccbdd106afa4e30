// Package bootstrap assembles the process object graph shared by the API
// server, the ingest worker and the CLI from a loaded configuration.
package bootstrap

import (
	"context"

	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/infrastructure/database/neo4j"
	"github.com/turtacn/casemind/internal/infrastructure/database/postgres"
	"github.com/turtacn/casemind/internal/infrastructure/database/redis"
	"github.com/turtacn/casemind/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/infrastructure/search/milvus"
	"github.com/turtacn/casemind/internal/infrastructure/search/opensearch"
	"github.com/turtacn/casemind/internal/infrastructure/storage/minio"
	"github.com/turtacn/casemind/pkg/errors"
)

// Infrastructure holds the external clients.  Only Postgres is mandatory;
// the rest are nil unless their section enables them.
type Infrastructure struct {
	Postgres *postgres.Connection
	Redis    *redis.Client
	Milvus   *milvus.Client
	Search   *opensearch.Client
	MinIO    *minio.MinIOClient
	Neo4j    *neo4j.Driver
	Producer *kafka.Producer

	logger logging.Logger
}

// OpenInfrastructure connects every configured backend.  Anything already
// opened is closed again when a later backend fails.
func OpenInfrastructure(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Infrastructure, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	infra := &Infrastructure{logger: logger}

	pg, err := postgres.NewConnection(postgres.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageFault, "postgres")
	}
	infra.Postgres = pg

	if cfg.Database.AutoMigrate {
		if err := pg.RunMigrations(cfg.Database.MigrationPath); err != nil {
			infra.Close()
			return nil, err
		}
	}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(redis.ConfigFrom(cfg.Redis), logger)
		if err != nil {
			infra.Close()
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "redis")
		}
		infra.Redis = rc
	}

	if cfg.VectorStore.Backend == "milvus" {
		mc, err := milvus.NewClient(milvus.ConfigFrom(cfg.Milvus), logger)
		if err != nil {
			infra.Close()
			return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "milvus")
		}
		infra.Milvus = mc
	}

	if cfg.OpenSearch.Enabled {
		sc, err := opensearch.NewClient(opensearch.ConfigFrom(cfg.OpenSearch), logger)
		if err != nil {
			infra.Close()
			return nil, errors.Wrap(err, errors.ErrCodeSearchError, "opensearch")
		}
		infra.Search = sc
	}

	if cfg.MinIO.Enabled {
		oc, err := minio.NewMinIOClient(minio.ConfigFrom(cfg.MinIO), logger)
		if err != nil {
			infra.Close()
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "minio")
		}
		infra.MinIO = oc
	}

	if cfg.Ontology.Source == "neo4j" {
		nd, err := neo4j.NewDriver(neo4j.ConfigFrom(cfg.Neo4j), logger)
		if err != nil {
			infra.Close()
			return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "neo4j")
		}
		infra.Neo4j = nd
	}

	if cfg.Kafka.Enabled {
		p, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
		if err != nil {
			infra.Close()
			return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "kafka producer")
		}
		infra.Producer = p
	}

	logger.Info("infrastructure initialized",
		logging.Bool("redis", infra.Redis != nil),
		logging.Bool("milvus", infra.Milvus != nil),
		logging.Bool("opensearch", infra.Search != nil),
		logging.Bool("minio", infra.MinIO != nil),
		logging.Bool("neo4j", infra.Neo4j != nil),
		logging.Bool("kafka", infra.Producer != nil))
	return infra, nil
}

// Close releases every open client in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Producer != nil {
		i.warnClose("kafka producer", i.Producer.Close())
	}
	if i.Neo4j != nil {
		i.warnClose("neo4j", i.Neo4j.Close())
	}
	if i.MinIO != nil {
		i.warnClose("minio", i.MinIO.Close())
	}
	if i.Search != nil {
		i.warnClose("opensearch", i.Search.Close())
	}
	if i.Milvus != nil {
		i.warnClose("milvus", i.Milvus.Close())
	}
	if i.Redis != nil {
		i.warnClose("redis", i.Redis.Close())
	}
	if i.Postgres != nil {
		i.warnClose("postgres", i.Postgres.Close())
	}
}

func (i *Infrastructure) warnClose(component string, err error) {
	if err != nil {
		i.logger.Warn("close failed", logging.String("component", component), logging.Err(err))
	}
}

//Personal.AI order the ending
