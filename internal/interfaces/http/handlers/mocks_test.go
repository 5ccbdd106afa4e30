package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/application/catalog"
	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/application/session"
	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/interfaces/http/middleware"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- service mocks ---

type MockIngestService struct{ mock.Mock }

func (m *MockIngestService) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingestion.IngestResult), args.Error(1)
}

func (m *MockIngestService) CheckDuplicate(ctx context.Context, content []byte, knownID string) (casefile.Fingerprint, casefile.DuplicateStatus) {
	args := m.Called(ctx, content, knownID)
	return args.Get(0).(casefile.Fingerprint), args.Get(1).(casefile.DuplicateStatus)
}

type MockCatalogService struct{ mock.Mock }

func (m *MockCatalogService) List(ctx context.Context, filter casefile.ListFilter, page pkgtypes.Pagination) (*pkgtypes.PageResponse[catalog.CaseSummary], error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pkgtypes.PageResponse[catalog.CaseSummary]), args.Error(1)
}

func (m *MockCatalogService) Get(ctx context.Context, id string) (*casefile.CaseRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*casefile.CaseRecord), args.Error(1)
}

func (m *MockCatalogService) Facts(ctx context.Context, id string) (*catalog.CaseFacts, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.CaseFacts), args.Error(1)
}

func (m *MockCatalogService) Stats(ctx context.Context, topN int) (*casefile.Stats, error) {
	args := m.Called(ctx, topN)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*casefile.Stats), args.Error(1)
}

func (m *MockCatalogService) FilterValues(ctx context.Context) (*casefile.FilterValues, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*casefile.FilterValues), args.Error(1)
}

type MockPipeline struct{ mock.Mock }

func (m *MockPipeline) Resolve(ctx context.Context, q similarity.QueryCase, opts similarity.Options) (*similarity.RankedResult, error) {
	args := m.Called(ctx, q, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*similarity.RankedResult), args.Error(1)
}

func (m *MockPipeline) Rank(ctx context.Context, q similarity.QueryCase, opts similarity.Options) (*similarity.Ranking, error) {
	args := m.Called(ctx, q, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*similarity.Ranking), args.Error(1)
}

func (m *MockPipeline) Refine(ranking *similarity.Ranking, opts similarity.Options) *similarity.RankedResult {
	return m.Called(ranking, opts).Get(0).(*similarity.RankedResult)
}

type MockSessionService struct{ mock.Mock }

func (m *MockSessionService) Create(ctx context.Context, req *session.CreateRequest) (*session.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockSessionService) Get(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockSessionService) Results(ctx context.Context, id string, opts similarity.Options) (*session.Results, error) {
	args := m.Called(ctx, id, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Results), args.Error(1)
}

func (m *MockSessionService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionService) ActiveCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionService) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- request helpers ---

func newTestEngine() (*gin.Engine, *gin.RouterGroup) {
	r := gin.New()
	r.Use(middleware.RequestID())
	return r, r.Group("/api/v1")
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func doUpload(t *testing.T, h http.Handler, path, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) pkgtypes.APIResponse[T] {
	t.Helper()
	var resp pkgtypes.APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

//Personal.AI order the ending
