package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "debug"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 60 * time.Second
	DefaultServerMaxBodySize     = 10 << 20
	DefaultServerShutdownTimeout = 15 * time.Second
	DefaultServerRateLimitBurst  = 20

	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBUser            = "casemind"
	DefaultDBName            = "casemind"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxOpenConns    = 25
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 30 * time.Minute
	DefaultDBConnMaxIdleTime = 5 * time.Minute
	DefaultDBMigrationPath   = "file://internal/infrastructure/database/postgres/migrations"

	DefaultRedisAddr           = "localhost:6379"
	DefaultRedisPoolSize       = 10
	DefaultRedisDialTimeout    = 5 * time.Second
	DefaultRedisReadTimeout    = 3 * time.Second
	DefaultRedisWriteTimeout   = 3 * time.Second
	DefaultRedisFingerprintTTL = 24 * time.Hour
	DefaultRedisKeyPrefix      = "casemind:"

	DefaultKafkaBroker          = "localhost:9092"
	DefaultKafkaGroupID         = "casemind-ingest"
	DefaultKafkaAutoOffsetReset = "earliest"
	DefaultKafkaIngestTopic     = "ingest.requested"
	DefaultKafkaEventTopic      = "case.events"
	DefaultKafkaDeadLetterTopic = "ingest.requested.dlq"
	DefaultKafkaMaxRetries      = 3

	DefaultMilvusAddr       = "localhost:19530"
	DefaultMilvusCollection = "legal_cases"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "case-documents"

	DefaultOpenSearchAddress        = "http://localhost:9200"
	DefaultOpenSearchIndex          = "legal_cases"
	DefaultOpenSearchMaxRetries     = 3
	DefaultOpenSearchRequestTimeout = 10 * time.Second

	DefaultNeo4jDatabase = "neo4j"

	DefaultOntologySource        = "file"
	DefaultOntologyPath          = "configs/ontology.yaml"
	DefaultOntologyTemplatesPath = "configs/templates"
	DefaultCriminalNode          = "criminal_case"
	DefaultFamilyNode            = "family_law_dispute"
	DefaultOntologyMergeFloor    = 0.9

	DefaultSimilarityTopK              = 5
	MaxSimilarityTopK                  = 20
	MaxSimilarityOversample            = 10
	DefaultSimilarityOversample        = 3
	DefaultNearDuplicateCeiling        = 0.99
	DefaultSimilarityQueryField        = "facts"
	DefaultSimilarityRerankConcurrency = 4

	DefaultBatchSize         = 10
	DefaultBatchFlushTimeout = 5 * time.Second
	DefaultBatchConcurrency  = 4

	DefaultEmbeddingDim    = 768
	DefaultModelTimeout    = 30 * time.Second
	DefaultModelMaxRetries = 2
	DefaultEmbedderURL     = "http://localhost:8081"
	DefaultRerankerURL     = "http://localhost:8082"

	DefaultVectorBackend = "postgres"

	DefaultSessionTTL = 24 * time.Hour

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.
//
// Similarity.Threshold is left alone: zero is a meaningful threshold.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultServerMaxBodySize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = DefaultServerRateLimitBurst
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultDBConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = DefaultDBConnMaxIdleTime
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = DefaultDBMigrationPath
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = DefaultRedisReadTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = DefaultRedisWriteTimeout
	}
	if cfg.Redis.FingerprintTTL == 0 {
		cfg.Redis.FingerprintTTL = DefaultRedisFingerprintTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = DefaultKafkaAutoOffsetReset
	}
	if cfg.Kafka.IngestTopic == "" {
		cfg.Kafka.IngestTopic = DefaultKafkaIngestTopic
	}
	if cfg.Kafka.EventTopic == "" {
		cfg.Kafka.EventTopic = DefaultKafkaEventTopic
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = DefaultKafkaDeadLetterTopic
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	}

	// ── Milvus ────────────────────────────────────────────────────────────────
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.Collection == "" {
		cfg.Milvus.Collection = DefaultMilvusCollection
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddress}
	}
	if cfg.OpenSearch.Index == "" {
		cfg.OpenSearch.Index = DefaultOpenSearchIndex
	}
	if cfg.OpenSearch.MaxRetries == 0 {
		cfg.OpenSearch.MaxRetries = DefaultOpenSearchMaxRetries
	}
	if cfg.OpenSearch.RequestTimeout == 0 {
		cfg.OpenSearch.RequestTimeout = DefaultOpenSearchRequestTimeout
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = DefaultNeo4jDatabase
	}

	// ── Ontology ──────────────────────────────────────────────────────────────
	if cfg.Ontology.Source == "" {
		cfg.Ontology.Source = DefaultOntologySource
	}
	if cfg.Ontology.Path == "" && cfg.Ontology.Source == "file" {
		cfg.Ontology.Path = DefaultOntologyPath
	}
	if cfg.Ontology.TemplatesPath == "" {
		cfg.Ontology.TemplatesPath = DefaultOntologyTemplatesPath
	}
	if cfg.Ontology.DefaultCriminalNode == "" {
		cfg.Ontology.DefaultCriminalNode = DefaultCriminalNode
	}
	if cfg.Ontology.DefaultFamilyNode == "" {
		cfg.Ontology.DefaultFamilyNode = DefaultFamilyNode
	}
	if cfg.Ontology.MergeFloor == 0 {
		cfg.Ontology.MergeFloor = DefaultOntologyMergeFloor
	}

	// ── Similarity ────────────────────────────────────────────────────────────
	if cfg.Similarity.TopK == 0 {
		cfg.Similarity.TopK = DefaultSimilarityTopK
	}
	if cfg.Similarity.OversampleFactor == 0 {
		cfg.Similarity.OversampleFactor = DefaultSimilarityOversample
	}
	if cfg.Similarity.NearDuplicateCeiling == 0 {
		cfg.Similarity.NearDuplicateCeiling = DefaultNearDuplicateCeiling
	}
	if cfg.Similarity.QueryField == "" {
		cfg.Similarity.QueryField = DefaultSimilarityQueryField
	}
	if cfg.Similarity.RerankConcurrency == 0 {
		cfg.Similarity.RerankConcurrency = DefaultSimilarityRerankConcurrency
	}

	// ── Batch ─────────────────────────────────────────────────────────────────
	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = DefaultBatchSize
	}
	if cfg.Batch.FlushTimeout == 0 {
		cfg.Batch.FlushTimeout = DefaultBatchFlushTimeout
	}
	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = DefaultBatchConcurrency
	}

	// ── Models ────────────────────────────────────────────────────────────────
	if cfg.Models.EmbedderURL == "" {
		cfg.Models.EmbedderURL = DefaultEmbedderURL
	}
	if cfg.Models.RerankerURL == "" {
		cfg.Models.RerankerURL = DefaultRerankerURL
	}
	if cfg.Models.EmbeddingDim == 0 {
		cfg.Models.EmbeddingDim = DefaultEmbeddingDim
	}
	if cfg.Models.Timeout == 0 {
		cfg.Models.Timeout = DefaultModelTimeout
	}
	if cfg.Models.MaxRetries == 0 {
		cfg.Models.MaxRetries = DefaultModelMaxRetries
	}
	if cfg.Milvus.EmbeddingDim == 0 {
		cfg.Milvus.EmbeddingDim = cfg.Models.EmbeddingDim
	}

	// ── Vector store / sessions ───────────────────────────────────────────────
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = DefaultVectorBackend
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.OutputPaths == nil {
		cfg.Log.OutputPaths = []string{"stdout"}
	}
}

//Personal.AI order the ending
