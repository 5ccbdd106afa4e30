package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/application/catalog"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

func newCatalogFixture() (*MockCatalogService, http.Handler) {
	svc := &MockCatalogService{}
	r, api := newTestEngine()
	NewCatalogHandler(svc).RegisterRoutes(api)
	return svc, r
}

func TestCatalogList_FiltersAndPagination(t *testing.T) {
	svc, h := newCatalogFixture()
	filter := casefile.ListFilter{Section: "IPC 302", Court: "Supreme Court", Query: "dowry"}
	page := pkgtypes.NewPageResponse([]catalog.CaseSummary{{ID: "c-1"}, {ID: "c-2"}}, 42, pkgtypes.Pagination{Page: 2, PageSize: 100})
	svc.On("List", mock.Anything, filter, pkgtypes.Pagination{Page: 2, PageSize: 100}).Return(&page, nil)

	w := doJSON(t, h, http.MethodGet, "/api/v1/cases?section=IPC+302&court=Supreme+Court&q=dowry&page=2&page_size=500", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[[]catalog.CaseSummary](t, w)
	assert.Len(t, resp.Data, 2)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, int64(42), resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.Page)
	svc.AssertExpectations(t)
}

func TestCatalogList_DefaultPage(t *testing.T) {
	svc, h := newCatalogFixture()
	page := pkgtypes.NewPageResponse[catalog.CaseSummary](nil, 0, pkgtypes.Pagination{Page: 1, PageSize: 20})
	svc.On("List", mock.Anything, casefile.ListFilter{}, pkgtypes.Pagination{Page: 1, PageSize: 20}).Return(&page, nil)

	w := doJSON(t, h, http.MethodGet, "/api/v1/cases?page=-3&page_size=x", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[[]catalog.CaseSummary](t, w)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Data)
	assert.Equal(t, 1, resp.Pagination.Page)
}

func TestCatalogGetAndFacts(t *testing.T) {
	svc, h := newCatalogFixture()
	svc.On("Get", mock.Anything, "c-1").Return(&casefile.CaseRecord{ID: "c-1", TemplateID: "ipc_302"}, nil)
	svc.On("Facts", mock.Anything, "c-1").Return(&catalog.CaseFacts{CaseID: "c-1", TemplateID: "ipc_302"}, nil)
	svc.On("Get", mock.Anything, "nope").Return(nil, casefile.ErrCaseNotFound)

	w := doJSON(t, h, http.MethodGet, "/api/v1/cases/c-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ipc_302", decode[casefile.CaseRecord](t, w).Data.TemplateID)

	w = doJSON(t, h, http.MethodGet, "/api/v1/cases/c-1/facts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c-1", decode[catalog.CaseFacts](t, w).Data.CaseID)

	w = doJSON(t, h, http.MethodGet, "/api/v1/cases/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "case not found", decode[any](t, w).Error.Message)
}

func TestCatalogStats(t *testing.T) {
	svc, h := newCatalogFixture()
	svc.On("Stats", mock.Anything, 5).Return(&casefile.Stats{TotalCases: 12, UniqueTemplates: 3}, nil)
	svc.On("Stats", mock.Anything, 0).Return(nil, errors.Wrap(assert.AnError, errors.ErrCodeStorageFault, "stats"))

	w := doJSON(t, h, http.MethodGet, "/api/v1/stats?top=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(12), decode[casefile.Stats](t, w).Data.TotalCases)

	w = doJSON(t, h, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/stats?top=500", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogFilterValues(t *testing.T) {
	svc, h := newCatalogFixture()
	svc.On("FilterValues", mock.Anything).Return(&casefile.FilterValues{
		Sections: []casefile.ValueCount{{Value: "IPC 302", Count: 7}},
	}, nil)

	w := doJSON(t, h, http.MethodGet, "/api/v1/filters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	vals := decode[casefile.FilterValues](t, w).Data
	require.Len(t, vals.Sections, 1)
	assert.Equal(t, int64(7), vals.Sections[0].Count)
}

//Personal.AI order the ending
