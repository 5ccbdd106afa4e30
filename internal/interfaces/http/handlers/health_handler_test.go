package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/prometheus"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                  { return s.name }
func (s stubChecker) Check(ctx context.Context) error { return s.err }

type stubCounter struct {
	n   int64
	err error
}

func (s stubCounter) Count(context.Context) (int64, error)       { return s.n, s.err }
func (s stubCounter) ActiveCount(context.Context) (int64, error) { return s.n, s.err }

func healthEngine(h *HealthHandler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	w := get(healthEngine(NewHealthHandler("1.2.3", []HealthChecker{stubChecker{"postgres", errors.New("down")}})), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestReadiness(t *testing.T) {
	w := get(healthEngine(NewHealthHandler("v", nil)), "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)

	h := NewHealthHandler("v", []HealthChecker{stubChecker{name: "postgres"}, stubChecker{name: "redis"}})
	w = get(healthEngine(h), "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, pkgtypes.HealthUp, resp.Components["redis"].Status)

	h = NewHealthHandler("v", []HealthChecker{stubChecker{name: "postgres"}, stubChecker{"redis", errors.New("connection refused")}})
	w = get(healthEngine(h), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "connection refused", resp.Components["redis"].Error)
}

func TestDetailed_CountsAndMetrics(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "health", Subsystem: "test"}, nil)
	require.NoError(t, err)
	m := prometheus.NewAppMetrics(collector)

	h := NewHealthHandler("v", []HealthChecker{stubChecker{name: "postgres"}},
		WithCaseCounter(stubCounter{n: 1250}),
		WithSessionCounter(stubCounter{n: 3}),
		WithHealthMetrics(m))
	w := get(healthEngine(h), "/healthz/detail")

	require.Equal(t, http.StatusOK, w.Code)
	var resp DetailedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pkgtypes.HealthUp, resp.Status)
	require.NotNil(t, resp.TotalCases)
	assert.Equal(t, int64(1250), *resp.TotalCases)
	require.NotNil(t, resp.ActiveSessions)
	assert.Equal(t, int64(3), *resp.ActiveSessions)

	out := get(collector.Handler(), "/metrics").Body.String()
	assert.Contains(t, out, `health_test_health_check_status{component="postgres"} 1`)
	assert.Contains(t, out, "health_test_case_total_count 1250")
	assert.Contains(t, out, "health_test_sessions_active 3")
}

func TestDetailed_DegradedAndDown(t *testing.T) {
	h := NewHealthHandler("v", []HealthChecker{stubChecker{name: "postgres"}},
		WithCaseCounter(stubCounter{err: errors.New("timeout")}))
	w := get(healthEngine(h), "/healthz/detail")
	require.Equal(t, http.StatusOK, w.Code)
	var resp DetailedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pkgtypes.HealthDegraded, resp.Status)
	assert.Nil(t, resp.TotalCases)
	assert.Equal(t, pkgtypes.HealthDegraded, resp.Components["cases"].Status)

	h = NewHealthHandler("v", []HealthChecker{stubChecker{"milvus", errors.New("unavailable")}})
	w = get(healthEngine(h), "/healthz/detail")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pkgtypes.HealthDown, resp.Status)
}

//Personal.AI order the ending
