package milvus

import (
	"context"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
)

// fakeMilvus implements the parts of client.Client the package uses.  The
// embedded interface panics on anything else.
type fakeMilvus struct {
	client.Client

	mu         sync.Mutex
	healthErr  error
	closed     int
	has        map[string]bool
	hasErr     error
	created    []*entity.Schema
	indexes    map[string]entity.Index
	loaded     []string
	dropped    []string
	stats      map[string]string
	upserts    [][]entity.Column
	upsertErr  error
	searchExpr string
	searchArgs struct {
		field  string
		metric entity.MetricType
		topK   int
	}
	results   []client.SearchResult
	searchErr error
}

func newFakeMilvus() *fakeMilvus {
	return &fakeMilvus{has: map[string]bool{}, indexes: map[string]entity.Index{}}
}

func (f *fakeMilvus) CheckHealth(context.Context) (*entity.MilvusState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &entity.MilvusState{IsHealthy: true}, nil
}

func (f *fakeMilvus) setHealthErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthErr = err
}

func (f *fakeMilvus) GetVersion(context.Context) (string, error) { return "v2.4.1", nil }

func (f *fakeMilvus) Close() error {
	f.closed++
	return nil
}

func (f *fakeMilvus) HasCollection(_ context.Context, name string) (bool, error) {
	return f.has[name], f.hasErr
}

func (f *fakeMilvus) CreateCollection(_ context.Context, schema *entity.Schema, _ int32, _ ...client.CreateCollectionOption) error {
	f.created = append(f.created, schema)
	f.has[schema.CollectionName] = true
	return nil
}

func (f *fakeMilvus) DropCollection(_ context.Context, name string, _ ...client.DropCollectionOption) error {
	f.dropped = append(f.dropped, name)
	delete(f.has, name)
	return nil
}

func (f *fakeMilvus) GetCollectionStatistics(context.Context, string) (map[string]string, error) {
	return f.stats, nil
}

func (f *fakeMilvus) CreateIndex(_ context.Context, _ string, field string, idx entity.Index, _ bool, _ ...client.IndexOption) error {
	f.indexes[field] = idx
	return nil
}

func (f *fakeMilvus) LoadCollection(_ context.Context, name string, _ bool, _ ...client.LoadCollectionOption) error {
	f.loaded = append(f.loaded, name)
	return nil
}

func (f *fakeMilvus) Upsert(_ context.Context, _ string, _ string, columns ...entity.Column) (entity.Column, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, columns)
	return columns[0], nil
}

func (f *fakeMilvus) Search(_ context.Context, _ string, _ []string, expr string, _ []string, _ []entity.Vector,
	vectorField string, metric entity.MetricType, topK int, _ entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.searchExpr = expr
	f.searchArgs.field = vectorField
	f.searchArgs.metric = metric
	f.searchArgs.topK = topK
	return f.results, f.searchErr
}

func newFakeClient(f client.Client) *Client {
	_, cancel := context.WithCancel(context.Background())
	return &Client{sdk: f, logger: logging.NewNopLogger(), cancel: cancel}
}

//Personal.AI order the ending
