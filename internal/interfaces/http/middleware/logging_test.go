package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/testutil"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

func TestRequestLogging_LevelsByStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		level  string
		msg    string
	}{
		{"ok", http.StatusOK, "info", "HTTP request completed"},
		{"client error", http.StatusNotFound, "warn", "HTTP request completed with client error"},
		{"server error", http.StatusBadGateway, "error", "HTTP request completed with server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log := testutil.NewMockLogger()
			r := gin.New()
			r.Use(RequestID(), RequestLogging(log, DefaultLoggingConfig()))
			r.GET("/api/v1/cases/:id", func(c *gin.Context) { c.Status(tc.status) })

			serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/cases/c-1", nil))

			entry := log.Find(tc.level, tc.msg)
			require.NotNil(t, entry)
			route, ok := entry.Field("route")
			require.True(t, ok)
			assert.Equal(t, "/api/v1/cases/:id", route)
			path, _ := entry.Field("path")
			assert.Equal(t, "/api/v1/cases/c-1", path)
			rid, _ := entry.Field("request_id")
			assert.NotEmpty(t, rid)
		})
	}
}

func TestRequestLogging_SkipsHealthPaths(t *testing.T) {
	log := testutil.NewMockLogger()
	serve(newEngine("/healthz", RequestLogging(log, DefaultLoggingConfig())),
		httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, log.GetMessages())
}

func TestRequestLogging_SlowRequest(t *testing.T) {
	log := testutil.NewMockLogger()
	cfg := LoggingConfig{SlowThreshold: time.Millisecond}
	r := gin.New()
	r.Use(RequestLogging(log, cfg))
	r.GET("/slow", func(c *gin.Context) {
		time.Sleep(5 * time.Millisecond)
		c.Status(http.StatusOK)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.True(t, log.HasMessage("warn", "HTTP request completed (slow)"))
}

func TestRequestLogging_AttachesHandlerError(t *testing.T) {
	log := testutil.NewMockLogger()
	r := gin.New()
	r.Use(RequestLogging(log, DefaultLoggingConfig()))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("milvus unreachable"))
		c.Status(http.StatusServiceUnavailable)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/fail", nil))
	entry := log.Find("error", "HTTP request completed with server error")
	require.NotNil(t, entry)
	_, ok := entry.Field("error")
	assert.True(t, ok)
}

func TestRecovery_WritesEnvelope(t *testing.T) {
	log := testutil.NewMockLogger()
	r := gin.New()
	r.Use(RequestID(), Recovery(log))
	r.GET("/panic", func(*gin.Context) { panic("index out of range") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body pkgtypes.APIResponse[any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "COMMON_001", body.Error.Code)
	assert.Equal(t, w.Header().Get(HeaderRequestID), body.RequestID)
	assert.True(t, log.HasMessage("error", "panic recovered"))
}

//Personal.AI order the ending
