package milvus

import (
	"context"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// Field names of the case collection.
const (
	FieldCaseID         = "case_id"
	FieldHasFacts       = "has_facts"
	FieldHasMetadata    = "has_metadata"
	FieldFactsVector    = "facts_vector"
	FieldMetadataVector = "metadata_vector"

	DefaultCollection = "cases"
	caseIDMaxLength   = 64
)

// CaseVectorSchema is the schema of the case collection.  Milvus has no null
// vectors, so a case without an embedding stores a placeholder unit vector
// and a false presence flag.
func CaseVectorSchema(name string, dim int) CollectionSchema {
	d := strconv.Itoa(dim)
	return CollectionSchema{
		Name:        name,
		Description: "Case facts and metadata embeddings",
		Fields: []*entity.Field{
			{Name: FieldCaseID, DataType: entity.FieldTypeVarChar, PrimaryKey: true, AutoID: false,
				TypeParams: map[string]string{"max_length": strconv.Itoa(caseIDMaxLength)}},
			{Name: FieldHasFacts, DataType: entity.FieldTypeBool},
			{Name: FieldHasMetadata, DataType: entity.FieldTypeBool},
			{Name: FieldFactsVector, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": d}},
			{Name: FieldMetadataVector, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": d}},
		},
	}
}

// CaseIndexConfig configures a CaseIndex.
type CaseIndexConfig struct {
	Collection       string
	Dimension        int
	SearchEf         int
	ConsistencyLevel entity.ConsistencyLevel
}

// CaseIndex implements casefile.VectorIndex on a Milvus collection.
type CaseIndex struct {
	client *Client
	config CaseIndexConfig
	logger logging.Logger
}

var _ casefile.VectorIndex = (*CaseIndex)(nil)

// NewCaseIndex creates a CaseIndex.  Call Ensure before first use.
func NewCaseIndex(c *Client, cfg CaseIndexConfig, logger logging.Logger) (*CaseIndex, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "embedding dimension must be positive")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.SearchEf == 0 {
		cfg.SearchEf = 64
	}
	if cfg.ConsistencyLevel == 0 {
		cfg.ConsistencyLevel = entity.ClBounded
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CaseIndex{client: c, config: cfg, logger: logger.Named("milvus_case_index")}, nil
}

// Ensure creates and loads the collection with a cosine HNSW index on each
// vector field.
func (x *CaseIndex) Ensure(ctx context.Context, mgr *CollectionManager) error {
	return mgr.EnsureCollection(ctx, CaseVectorSchema(x.config.Collection, x.config.Dimension), []IndexConfig{
		{FieldName: FieldFactsVector, IndexType: entity.HNSW, MetricType: entity.COSINE},
		{FieldName: FieldMetadataVector, IndexType: entity.HNSW, MetricType: entity.COSINE},
	})
}

// Index upserts the embeddings of rec.
func (x *CaseIndex) Index(ctx context.Context, rec *casefile.CaseRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.InvalidParam("case id is required")
	}
	if len(rec.ID) > caseIDMaxLength {
		return errors.InvalidParam("case id too long for the vector index").WithDetail(rec.ID)
	}
	facts, hasFacts, err := x.vectorOrPlaceholder(rec.Embeddings.Facts)
	if err != nil {
		return err
	}
	meta, hasMeta, err := x.vectorOrPlaceholder(rec.Embeddings.Metadata)
	if err != nil {
		return err
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(FieldCaseID, []string{rec.ID}),
		entity.NewColumnBool(FieldHasFacts, []bool{hasFacts}),
		entity.NewColumnBool(FieldHasMetadata, []bool{hasMeta}),
		entity.NewColumnFloatVector(FieldFactsVector, x.config.Dimension, [][]float32{facts}),
		entity.NewColumnFloatVector(FieldMetadataVector, x.config.Dimension, [][]float32{meta}),
	}
	if _, err := x.client.GetMilvusClient().Upsert(ctx, x.config.Collection, "", columns...); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageFault, "failed to upsert case vectors")
	}
	return nil
}

func (x *CaseIndex) vectorOrPlaceholder(v []float32) ([]float32, bool, error) {
	if len(v) == 0 {
		placeholder := make([]float32, x.config.Dimension)
		placeholder[0] = 1
		return placeholder, false, nil
	}
	if len(v) != x.config.Dimension {
		return nil, false, errors.InvalidParam("embedding dimension mismatch").
			WithDetail(strconv.Itoa(len(v)) + " != " + strconv.Itoa(x.config.Dimension))
	}
	return v, true, nil
}

// QueryByVector searches field with cosine similarity.  Milvus reports the
// similarity itself for COSINE, so scores pass through unchanged.
func (x *CaseIndex) QueryByVector(ctx context.Context, field casefile.VectorField, vector []float32, limit int, excludeID string) ([]casefile.VectorHit, error) {
	vectorField, flagField, err := fieldNames(field)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.InvalidParam("vector query limit must be positive").WithDetail(strconv.Itoa(limit))
	}
	if len(vector) != x.config.Dimension {
		return nil, errors.New(errors.ErrCodeRetrievalFailed, "query vector dimension mismatch")
	}

	ef := x.config.SearchEf
	if ef < limit {
		ef = limit
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRetrievalFailed, "invalid search parameters")
	}

	start := time.Now()
	results, err := x.client.GetMilvusClient().Search(ctx, x.config.Collection, nil, searchExpr(flagField, excludeID), nil,
		[]entity.Vector{entity.FloatVector(vector)}, vectorField, entity.COSINE, limit, sp,
		client.WithSearchQueryConsistencyLevel(x.config.ConsistencyLevel))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRetrievalFailed, "milvus search failed")
	}

	hits := []casefile.VectorHit{}
	for _, res := range results {
		if res.Err != nil {
			return nil, errors.Wrap(res.Err, errors.ErrCodeRetrievalFailed, "milvus search failed")
		}
		for i := 0; i < res.ResultCount; i++ {
			id, err := res.IDs.GetAsString(i)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeRetrievalFailed, "unexpected id column")
			}
			hits = append(hits, casefile.VectorHit{CaseID: id, CosineScore: float64(res.Scores[i])})
		}
	}
	x.logger.Debug("CaseIndex.QueryByVector",
		logging.String("field", string(field)),
		logging.Int("hits", len(hits)),
		logging.Duration("elapsed", time.Since(start)))
	return hits, nil
}

// Ping checks the Milvus connection.
func (x *CaseIndex) Ping(ctx context.Context) error {
	return x.client.CheckHealth(ctx)
}

func fieldNames(field casefile.VectorField) (vector, flag string, err error) {
	switch field {
	case casefile.FieldFacts:
		return FieldFactsVector, FieldHasFacts, nil
	case casefile.FieldMetadata:
		return FieldMetadataVector, FieldHasMetadata, nil
	default:
		return "", "", errors.InvalidParam("unknown vector field").WithDetail(string(field))
	}
}

func searchExpr(flagField, excludeID string) string {
	expr := flagField + " == true"
	if excludeID != "" {
		expr += " && " + FieldCaseID + " != " + strconv.Quote(excludeID)
	}
	return expr
}

//Personal.AI order the ending
