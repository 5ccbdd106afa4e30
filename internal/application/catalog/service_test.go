package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/domain/casefile"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetByFingerprint(ctx context.Context, fp casefile.Fingerprint) (*casefile.CaseRecord, error) {
	args := m.Called(ctx, fp)
	rec, _ := args.Get(0).(*casefile.CaseRecord)
	return rec, args.Error(1)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*casefile.CaseRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*casefile.CaseRecord)
	return rec, args.Error(1)
}

func (m *mockRepo) Put(ctx context.Context, rec *casefile.CaseRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) GetByIDs(ctx context.Context, ids []string) ([]*casefile.CaseRecord, error) {
	args := m.Called(ctx, ids)
	recs, _ := args.Get(0).([]*casefile.CaseRecord)
	return recs, args.Error(1)
}

func (m *mockRepo) List(ctx context.Context, filter casefile.ListFilter, page pkgtypes.Pagination) ([]*casefile.CaseRecord, int64, error) {
	args := m.Called(ctx, filter, page)
	recs, _ := args.Get(0).([]*casefile.CaseRecord)
	return recs, args.Get(1).(int64), args.Error(2)
}

func (m *mockRepo) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepo) Stats(ctx context.Context, topN int) (*casefile.Stats, error) {
	args := m.Called(ctx, topN)
	st, _ := args.Get(0).(*casefile.Stats)
	return st, args.Error(1)
}

func (m *mockRepo) FilterValues(ctx context.Context) (*casefile.FilterValues, error) {
	args := m.Called(ctx)
	fv, _ := args.Get(0).(*casefile.FilterValues)
	return fv, args.Error(1)
}

func (m *mockRepo) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func record(id string) *casefile.CaseRecord {
	rec := casefile.NewCaseRecord(casefile.ComputeFingerprint([]byte(id)), id+".md", legalcase.CaseMetadata{
		Title:           "State v. " + id,
		Court:           "High Court of Delhi",
		JudgmentDate:    "2019-03-14",
		SectionsInvoked: []string{"IPC 395"},
	})
	rec.ID = id
	rec.TemplateID = "ipc_395"
	rec.Facts = legalcase.ExtractedFacts{
		TemplateID: "ipc_395",
		Tiers:      map[string]legalcase.TierFacts{"tier_1_determinative": {"weapon_used": "knife"}},
	}
	return rec
}

func TestNewService_RequiresRepository(t *testing.T) {
	_, err := NewService(nil, nil)
	assert.Error(t, err)
}

func TestList_AppliesPagingDefaults(t *testing.T) {
	repo := new(mockRepo)
	svc, err := NewService(repo, nil)
	require.NoError(t, err)
	ctx := context.Background()

	repo.On("List", ctx, casefile.ListFilter{Section: "IPC 395"}, pkgtypes.Pagination{Page: 1, PageSize: 20}).
		Return([]*casefile.CaseRecord{record("a"), record("b")}, int64(42), nil).Once()

	page, err := svc.List(ctx, casefile.ListFilter{Section: "  IPC 395 "}, pkgtypes.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "State v. a", page.Items[0].Title)
	assert.Equal(t, 1, page.Items[0].FactCount)
	repo.AssertExpectations(t)
}

func TestList_ClampsPageSize(t *testing.T) {
	repo := new(mockRepo)
	svc, _ := NewService(repo, nil)
	ctx := context.Background()

	repo.On("List", ctx, casefile.ListFilter{}, pkgtypes.Pagination{Page: 2, PageSize: 100}).
		Return([]*casefile.CaseRecord(nil), int64(0), nil).Once()

	page, err := svc.List(ctx, casefile.ListFilter{}, pkgtypes.Pagination{Page: 2, PageSize: 1000})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	repo.AssertExpectations(t)
}

func TestList_StorageFault(t *testing.T) {
	repo := new(mockRepo)
	svc, _ := NewService(repo, nil)
	repo.On("List", mock.Anything, mock.Anything, mock.Anything).Return(nil, int64(0), errors.New("conn refused"))

	_, err := svc.List(context.Background(), casefile.ListFilter{}, pkgtypes.Pagination{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageFault))
}

type stubSearch struct {
	ids   []string
	total int64
	err   error
	got   casefile.ListFilter
}

func (s *stubSearch) SearchCases(_ context.Context, filter casefile.ListFilter, _ pkgtypes.Pagination) ([]string, int64, error) {
	s.got = filter
	return s.ids, s.total, s.err
}

func TestList_QueryUsesTextSearchOrder(t *testing.T) {
	repo := new(mockRepo)
	search := &stubSearch{ids: []string{"b", "gone", "a"}, total: 3}
	svc, err := NewService(repo, nil, WithTextSearch(search))
	require.NoError(t, err)
	ctx := context.Background()

	repo.On("GetByIDs", ctx, []string{"b", "gone", "a"}).
		Return([]*casefile.CaseRecord{record("a"), record("b")}, nil).Once()

	page, err := svc.List(ctx, casefile.ListFilter{Query: " dacoity "}, pkgtypes.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, "dacoity", search.got.Query)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "b", page.Items[0].ID)
	assert.Equal(t, "a", page.Items[1].ID)
	repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}

func TestList_TextSearchFailureFallsBackToRepository(t *testing.T) {
	repo := new(mockRepo)
	svc, _ := NewService(repo, nil, WithTextSearch(&stubSearch{err: errors.New("cluster red")}))
	ctx := context.Background()
	filter := casefile.ListFilter{Query: "dacoity"}

	repo.On("List", ctx, filter, pkgtypes.Pagination{Page: 1, PageSize: 20}).
		Return([]*casefile.CaseRecord{record("a")}, int64(1), nil).Once()

	page, err := svc.List(ctx, filter, pkgtypes.Pagination{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	repo.AssertExpectations(t)
}

func TestList_NoQuerySkipsTextSearch(t *testing.T) {
	repo := new(mockRepo)
	search := &stubSearch{}
	svc, _ := NewService(repo, nil, WithTextSearch(search))
	ctx := context.Background()

	repo.On("List", ctx, casefile.ListFilter{}, pkgtypes.Pagination{Page: 1, PageSize: 20}).
		Return([]*casefile.CaseRecord(nil), int64(0), nil).Once()

	_, err := svc.List(ctx, casefile.ListFilter{}, pkgtypes.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, search.got.Query)
	repo.AssertExpectations(t)
}

func TestGetAndFacts(t *testing.T) {
	repo := new(mockRepo)
	svc, _ := NewService(repo, nil)
	ctx := context.Background()
	repo.On("GetByID", ctx, "a").Return(record("a"), nil)
	repo.On("GetByID", ctx, "missing").Return(nil, casefile.ErrCaseNotFound)
	repo.On("GetByID", ctx, "broken").Return(nil, errors.New("timeout"))

	rec, err := svc.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ipc_395", rec.TemplateID)

	facts, err := svc.Facts(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "knife", facts.Facts.Tiers["tier_1_determinative"]["weapon_used"])

	_, err = svc.Get(ctx, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCaseNotFound))

	_, err = svc.Facts(ctx, "broken")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageFault))

	_, err = svc.Get(ctx, " ")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBadRequest))
}

func TestStatsAndFilterValues(t *testing.T) {
	repo := new(mockRepo)
	svc, _ := NewService(repo, nil)
	ctx := context.Background()
	repo.On("Stats", ctx, 10).Return(&casefile.Stats{TotalCases: 3, UniqueTemplates: 2}, nil)
	repo.On("FilterValues", ctx).Return(&casefile.FilterValues{
		Courts: []casefile.ValueCount{{Value: "High Court of Delhi", Count: 3}},
	}, nil)

	st, err := svc.Stats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.TotalCases)

	fv, err := svc.FilterValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), fv.Courts[0].Count)
}

//Personal.AI order the ending
