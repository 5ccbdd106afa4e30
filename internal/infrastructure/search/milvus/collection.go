package milvus

import (
	"context"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

var (
	ErrCollectionAlreadyExists = errors.New(errors.ErrCodeConflict, "collection already exists")
	ErrCollectionNotFound      = errors.New(errors.ErrCodeNotFound, "collection not found")
)

// CollectionConfig holds configuration for the CollectionManager.
type CollectionConfig struct {
	ShardsNum         int32
	ConsistencyLevel  entity.ConsistencyLevel
	DefaultIndexType  entity.IndexType
	DefaultMetricType entity.MetricType
	DefaultNList      int
	HNSWM             int
	HNSWEfConstruct   int
	LoadTimeout       time.Duration
}

// CollectionSchema defines a collection schema.
type CollectionSchema struct {
	Name               string
	Description        string
	Fields             []*entity.Field
	EnableDynamicField bool
}

// IndexConfig defines the index of one vector field.  Zero values take the
// manager defaults.
type IndexConfig struct {
	FieldName  string
	IndexType  entity.IndexType
	MetricType entity.MetricType
}

// CollectionManager manages Milvus collections.
type CollectionManager struct {
	client *Client
	config CollectionConfig
	logger logging.Logger
}

// NewCollectionManager creates a new CollectionManager.
func NewCollectionManager(client *Client, cfg CollectionConfig, logger logging.Logger) *CollectionManager {
	if cfg.ShardsNum == 0 {
		cfg.ShardsNum = 2
	}
	if cfg.ConsistencyLevel == 0 {
		cfg.ConsistencyLevel = entity.ClBounded
	}
	if cfg.DefaultIndexType == "" {
		cfg.DefaultIndexType = entity.HNSW
	}
	if cfg.DefaultMetricType == "" {
		cfg.DefaultMetricType = entity.COSINE
	}
	if cfg.DefaultNList == 0 {
		cfg.DefaultNList = 1024
	}
	if cfg.HNSWM == 0 {
		cfg.HNSWM = 16
	}
	if cfg.HNSWEfConstruct == 0 {
		cfg.HNSWEfConstruct = 200
	}
	if cfg.LoadTimeout == 0 {
		cfg.LoadTimeout = 120 * time.Second
	}
	return &CollectionManager{client: client, config: cfg, logger: logger}
}

// CreateCollection creates a new collection.
func (m *CollectionManager) CreateCollection(ctx context.Context, schema CollectionSchema) error {
	has, err := m.HasCollection(ctx, schema.Name)
	if err != nil {
		return err
	}
	if has {
		return ErrCollectionAlreadyExists
	}

	s := &entity.Schema{
		CollectionName:     schema.Name,
		Description:        schema.Description,
		Fields:             schema.Fields,
		EnableDynamicField: schema.EnableDynamicField,
	}
	if err := m.client.GetMilvusClient().CreateCollection(ctx, s, m.config.ShardsNum); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create collection")
	}

	m.logger.Info("Collection created", logging.String("name", schema.Name))
	return nil
}

// DropCollection drops a collection.
func (m *CollectionManager) DropCollection(ctx context.Context, name string) error {
	has, err := m.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !has {
		return ErrCollectionNotFound
	}
	if err := m.client.GetMilvusClient().DropCollection(ctx, name); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to drop collection")
	}
	m.logger.Warn("Collection dropped", logging.String("name", name))
	return nil
}

// HasCollection checks if a collection exists.
func (m *CollectionManager) HasCollection(ctx context.Context, name string) (bool, error) {
	has, err := m.client.GetMilvusClient().HasCollection(ctx, name)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check collection existence")
	}
	return has, nil
}

// RowCount returns the number of entities in a collection.
func (m *CollectionManager) RowCount(ctx context.Context, name string) (int64, error) {
	stats, err := m.client.GetMilvusClient().GetCollectionStatistics(ctx, name)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to get collection statistics")
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "invalid row_count statistic")
	}
	return n, nil
}

// CreateIndex creates an index for a vector field.
func (m *CollectionManager) CreateIndex(ctx context.Context, collectionName string, indexCfg IndexConfig) error {
	indexType := indexCfg.IndexType
	if indexType == "" {
		indexType = m.config.DefaultIndexType
	}
	metric := indexCfg.MetricType
	if metric == "" {
		metric = m.config.DefaultMetricType
	}

	var (
		idx entity.Index
		err error
	)
	switch indexType {
	case entity.HNSW:
		idx, err = entity.NewIndexHNSW(metric, m.config.HNSWM, m.config.HNSWEfConstruct)
	case entity.IvfFlat:
		idx, err = entity.NewIndexIvfFlat(metric, m.config.DefaultNList)
	case entity.Flat:
		idx, err = entity.NewIndexFlat(metric)
	default:
		return errors.New(errors.ErrCodeValidation, "unsupported index type").WithDetail(string(indexType))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid index parameters")
	}

	if err := m.client.GetMilvusClient().CreateIndex(ctx, collectionName, indexCfg.FieldName, idx, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create index")
	}
	m.logger.Info("Index created",
		logging.String("collection", collectionName),
		logging.String("field", indexCfg.FieldName),
		logging.String("type", string(indexType)))
	return nil
}

// LoadCollection loads a collection into memory and waits for it.
func (m *CollectionManager) LoadCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.LoadTimeout)
	defer cancel()
	if err := m.client.GetMilvusClient().LoadCollection(ctx, name, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load collection")
	}
	m.logger.Info("Collection loaded", logging.String("name", name))
	return nil
}

// EnsureCollection creates the collection and its indexes when missing and
// loads it.
func (m *CollectionManager) EnsureCollection(ctx context.Context, schema CollectionSchema, indexConfigs []IndexConfig) error {
	exists, err := m.HasCollection(ctx, schema.Name)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.CreateCollection(ctx, schema); err != nil {
			return err
		}
		for _, idxCfg := range indexConfigs {
			if err := m.CreateIndex(ctx, schema.Name, idxCfg); err != nil {
				return err
			}
		}
	}
	return m.LoadCollection(ctx, schema.Name)
}

//Personal.AI order the ending
