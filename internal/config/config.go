// Package config defines all configuration structures for casemind.  No I/O or
// parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is the sustained requests per second per client; zero
	// disables limiting.
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	PoolSize       int           `mapstructure:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	FingerprintTTL time.Duration `mapstructure:"fingerprint_ttl"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	// MasterName selects a sentinel deployment; SentinelAddrs then lists the
	// sentinels and Addr is ignored.
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	TLSCAFile     string   `mapstructure:"tls_ca_file"`
}

// KafkaConfig holds Apache Kafka producer/consumer parameters.
type KafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	AutoOffsetReset string   `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	IngestTopic     string   `mapstructure:"ingest_topic"`
	EventTopic      string   `mapstructure:"event_topic"`
	DeadLetterTopic string   `mapstructure:"dead_letter_topic"`
	MaxRetries      int      `mapstructure:"max_retries"`
}

// MilvusConfig holds Milvus vector-index connection parameters.
type MilvusConfig struct {
	Addr         string `mapstructure:"addr"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"db_name"`
	Collection   string `mapstructure:"collection"`
	EmbeddingDim int    `mapstructure:"embedding_dim"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// OpenSearchConfig holds the full-text catalogue index parameters.
type OpenSearchConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addresses      []string      `mapstructure:"addresses"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Index          string        `mapstructure:"index"`
	InsecureTLS    bool          `mapstructure:"insecure_tls"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Neo4jConfig holds the ontology graph connection parameters.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// OntologyConfig selects where the taxonomy is loaded from.
type OntologyConfig struct {
	Source              string `mapstructure:"source"` // "file" | "neo4j"
	Path                string `mapstructure:"path"`
	TemplatesPath       string `mapstructure:"templates_path"`
	DefaultCriminalNode string `mapstructure:"default_criminal_node"`
	DefaultFamilyNode   string `mapstructure:"default_family_node"`
	// MergeFloor is the confidence a leaf match needs to be merged into the
	// selected template.
	MergeFloor float64 `mapstructure:"merge_floor"`
}

// SimilarityConfig holds the similarity pipeline tunables.
type SimilarityConfig struct {
	TopK                 int     `mapstructure:"top_k"`
	Threshold            float64 `mapstructure:"threshold"`
	OversampleFactor     int     `mapstructure:"oversample_factor"`
	NearDuplicateCeiling float64 `mapstructure:"near_duplicate_ceiling"`
	QueryField           string  `mapstructure:"query_field"` // "facts" | "metadata"
	RerankConcurrency    int     `mapstructure:"rerank_concurrency"`
}

// BatchConfig holds the ingestion batch accumulator settings.
type BatchConfig struct {
	Size         int           `mapstructure:"size"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// ModelsConfig points at the embedding and cross-encoder model servers.
type ModelsConfig struct {
	EmbedderURL  string        `mapstructure:"embedder_url"`
	RerankerURL  string        `mapstructure:"reranker_url"`
	APIKey       string        `mapstructure:"api_key"`
	EmbeddingDim int           `mapstructure:"embedding_dim"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// VectorStoreConfig selects the retrieval backend.
type VectorStoreConfig struct {
	Backend string `mapstructure:"backend"` // "postgres" | "milvus"
}

// SessionConfig controls asynchronous search sessions.
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Milvus      MilvusConfig      `mapstructure:"milvus"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	OpenSearch  OpenSearchConfig  `mapstructure:"opensearch"`
	Neo4j       Neo4jConfig       `mapstructure:"neo4j"`
	Log         logging.LogConfig `mapstructure:"log"`
	Ontology    OntologyConfig    `mapstructure:"ontology"`
	Similarity  SimilarityConfig  `mapstructure:"similarity"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Models      ModelsConfig      `mapstructure:"models"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Session     SessionConfig     `mapstructure:"session"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
		if c.Kafka.IngestTopic == "" {
			return fmt.Errorf("config: kafka.ingest_topic is required")
		}
	}

	// Ontology
	switch c.Ontology.Source {
	case "file":
		if c.Ontology.Path == "" {
			return fmt.Errorf("config: ontology.path is required for source=file")
		}
	case "neo4j":
		if c.Neo4j.URI == "" {
			return fmt.Errorf("config: neo4j.uri is required for ontology source=neo4j")
		}
	default:
		return fmt.Errorf("config: ontology.source %q is invalid; expected file|neo4j", c.Ontology.Source)
	}
	if c.Ontology.MergeFloor <= 0 || c.Ontology.MergeFloor > 1 {
		return fmt.Errorf("config: ontology.merge_floor must be in (0, 1], got %v", c.Ontology.MergeFloor)
	}

	// Similarity
	if c.Similarity.TopK < 1 || c.Similarity.TopK > MaxSimilarityTopK {
		return fmt.Errorf("config: similarity.top_k must be in [1, %d], got %d", MaxSimilarityTopK, c.Similarity.TopK)
	}
	if c.Similarity.Threshold < 0 || c.Similarity.Threshold > 1 {
		return fmt.Errorf("config: similarity.threshold %.3f is out of range [0, 1]", c.Similarity.Threshold)
	}
	if c.Similarity.OversampleFactor < 1 || c.Similarity.OversampleFactor > MaxSimilarityOversample {
		return fmt.Errorf("config: similarity.oversample_factor must be in [1, %d], got %d", MaxSimilarityOversample, c.Similarity.OversampleFactor)
	}
	if c.Similarity.NearDuplicateCeiling <= 0 || c.Similarity.NearDuplicateCeiling > 1 {
		return fmt.Errorf("config: similarity.near_duplicate_ceiling %.3f is out of range (0, 1]", c.Similarity.NearDuplicateCeiling)
	}
	switch c.Similarity.QueryField {
	case "facts", "metadata":
	default:
		return fmt.Errorf("config: similarity.query_field %q is invalid; expected facts|metadata", c.Similarity.QueryField)
	}

	// Batch
	if c.Batch.Size < 1 {
		return fmt.Errorf("config: batch.size must be >= 1, got %d", c.Batch.Size)
	}
	if c.Batch.FlushTimeout <= 0 {
		return fmt.Errorf("config: batch.flush_timeout must be positive")
	}

	// Vector store
	switch c.VectorStore.Backend {
	case "postgres":
	case "milvus":
		if c.Milvus.Addr == "" {
			return fmt.Errorf("config: milvus.addr is required for vector_store.backend=milvus")
		}
	default:
		return fmt.Errorf("config: vector_store.backend %q is invalid; expected postgres|milvus", c.VectorStore.Backend)
	}

	// OpenSearch
	if c.OpenSearch.Enabled {
		if len(c.OpenSearch.Addresses) == 0 {
			return fmt.Errorf("config: opensearch.addresses is required when opensearch is enabled")
		}
		if c.OpenSearch.Index == "" {
			return fmt.Errorf("config: opensearch.index is required when opensearch is enabled")
		}
		if c.OpenSearch.MaxRetries < 0 {
			return fmt.Errorf("config: opensearch.max_retries must be >= 0, got %d", c.OpenSearch.MaxRetries)
		}
	}

	// Models
	if c.Models.EmbeddingDim < 1 {
		return fmt.Errorf("config: models.embedding_dim must be >= 1, got %d", c.Models.EmbeddingDim)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

// DSN renders the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

//Personal.AI order the ending
