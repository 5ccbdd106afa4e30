package milvus

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/casemind/pkg/errors"
)

func newTestManager(f *fakeMilvus) *CollectionManager {
	return NewCollectionManager(newFakeClient(f), CollectionConfig{}, logging.NewNopLogger())
}

func TestCreateCollection(t *testing.T) {
	fake := newFakeMilvus()
	mgr := newTestManager(fake)
	ctx := context.Background()

	require.NoError(t, mgr.CreateCollection(ctx, CaseVectorSchema("cases", 8)))
	require.Len(t, fake.created, 1)
	assert.Equal(t, "cases", fake.created[0].CollectionName)

	assert.ErrorIs(t, mgr.CreateCollection(ctx, CaseVectorSchema("cases", 8)), ErrCollectionAlreadyExists)
}

func TestDropCollection(t *testing.T) {
	fake := newFakeMilvus()
	mgr := newTestManager(fake)
	ctx := context.Background()

	assert.ErrorIs(t, mgr.DropCollection(ctx, "cases"), ErrCollectionNotFound)

	fake.has["cases"] = true
	require.NoError(t, mgr.DropCollection(ctx, "cases"))
	assert.Equal(t, []string{"cases"}, fake.dropped)
}

func TestCreateIndex_Types(t *testing.T) {
	fake := newFakeMilvus()
	mgr := newTestManager(fake)
	ctx := context.Background()

	require.NoError(t, mgr.CreateIndex(ctx, "cases", IndexConfig{FieldName: "a"}))
	assert.Equal(t, entity.HNSW, fake.indexes["a"].IndexType())

	require.NoError(t, mgr.CreateIndex(ctx, "cases", IndexConfig{FieldName: "b", IndexType: entity.IvfFlat}))
	assert.Equal(t, entity.IvfFlat, fake.indexes["b"].IndexType())

	err := mgr.CreateIndex(ctx, "cases", IndexConfig{FieldName: "c", IndexType: entity.DISKANN})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func TestRowCount(t *testing.T) {
	fake := newFakeMilvus()
	fake.stats = map[string]string{"row_count": "42"}
	n, err := newTestManager(fake).RowCount(context.Background(), "cases")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	fake.stats = map[string]string{}
	_, err = newTestManager(fake).RowCount(context.Background(), "cases")
	assert.Error(t, err)
}

func TestEnsureCollection_CreateAndLoad(t *testing.T) {
	fake := newFakeMilvus()
	mgr := newTestManager(fake)
	ctx := context.Background()
	indexes := []IndexConfig{{FieldName: FieldFactsVector}, {FieldName: FieldMetadataVector}}

	require.NoError(t, mgr.EnsureCollection(ctx, CaseVectorSchema("cases", 8), indexes))
	assert.Len(t, fake.created, 1)
	assert.Len(t, fake.indexes, 2)
	assert.Equal(t, []string{"cases"}, fake.loaded)

	require.NoError(t, mgr.EnsureCollection(ctx, CaseVectorSchema("cases", 8), indexes))
	assert.Len(t, fake.created, 1)
	assert.Equal(t, []string{"cases", "cases"}, fake.loaded)
}

func TestCaseVectorSchema(t *testing.T) {
	s := CaseVectorSchema("cases", 768)
	require.Len(t, s.Fields, 5)
	assert.True(t, s.Fields[0].PrimaryKey)
	assert.Equal(t, FieldCaseID, s.Fields[0].Name)
	assert.Equal(t, "768", s.Fields[3].TypeParams["dim"])
}

//Personal.AI order the ending
