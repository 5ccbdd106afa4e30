package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/prometheus"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

const (
	readinessTimeout = 5 * time.Second
	detailTimeout    = 10 * time.Second
)

// HealthChecker is a dependency the service needs to answer requests.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CaseCounter reports how many cases are stored.
type CaseCounter interface {
	Count(ctx context.Context) (int64, error)
}

// SessionCounter reports how many search sessions are still processing.
type SessionCounter interface {
	ActiveCount(ctx context.Context) (int64, error)
}

// HealthHandler serves the liveness, readiness and detailed health routes.
type HealthHandler struct {
	checkers []HealthChecker
	cases    CaseCounter
	sessions SessionCounter
	metrics  *prometheus.AppMetrics
	version  string
	startAt  time.Time
}

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithCaseCounter adds the stored case count to the detailed report.
func WithCaseCounter(c CaseCounter) HealthOption {
	return func(h *HealthHandler) { h.cases = c }
}

// WithSessionCounter adds the active session count to the detailed report.
func WithSessionCounter(s SessionCounter) HealthOption {
	return func(h *HealthHandler) { h.sessions = s }
}

// WithHealthMetrics publishes each component check as a gauge.
func WithHealthMetrics(m *prometheus.AppMetrics) HealthOption {
	return func(h *HealthHandler) { h.metrics = m }
}

// NewHealthHandler creates a HealthHandler over checkers.
func NewHealthHandler(version string, checkers []HealthChecker, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{checkers: checkers, version: version, startAt: time.Now()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterRoutes mounts the health endpoints on the engine root.
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/healthz/detail", h.Detailed)
}

// LivenessResponse is the response for the liveness check.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the response for the readiness check.
type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// ComponentCheck represents the health status of a single component.
type ComponentCheck struct {
	Status  pkgtypes.HealthStatus `json:"status"`
	Latency string                `json:"latency,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// DetailedResponse is the full health report.
type DetailedResponse struct {
	Status         pkgtypes.HealthStatus     `json:"status"`
	Version        string                    `json:"version"`
	Uptime         string                    `json:"uptime"`
	TotalCases     *int64                    `json:"total_cases,omitempty"`
	ActiveSessions *int64                    `json:"active_sessions,omitempty"`
	Components     map[string]ComponentCheck `json:"components"`
}

// Liveness handles GET /healthz.  It never checks dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  h.uptime(),
	})
}

// Readiness handles GET /readyz: 503 when any dependency is down.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if len(h.checkers) == 0 {
		c.JSON(http.StatusOK, ReadinessResponse{Status: "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	components, healthy := h.checkAll(ctx)
	resp := ReadinessResponse{Status: "ready", Components: components}
	code := http.StatusOK
	if !healthy {
		resp.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// Detailed handles GET /healthz/detail.  Counts that cannot be read are
// reported as a degraded "cases" or "sessions" component.
func (h *HealthHandler) Detailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), detailTimeout)
	defer cancel()

	components, healthy := h.checkAll(ctx)
	resp := DetailedResponse{
		Status:     pkgtypes.HealthUp,
		Version:    h.version,
		Uptime:     h.uptime(),
		Components: components,
	}

	degraded := false
	if h.cases != nil {
		if n, err := h.cases.Count(ctx); err != nil {
			components["cases"] = ComponentCheck{Status: pkgtypes.HealthDegraded, Error: err.Error()}
			degraded = true
		} else {
			resp.TotalCases = &n
			if h.metrics != nil {
				h.metrics.CaseTotalCount.WithLabelValues().Set(float64(n))
			}
		}
	}
	if h.sessions != nil {
		if n, err := h.sessions.ActiveCount(ctx); err != nil {
			components["sessions"] = ComponentCheck{Status: pkgtypes.HealthDegraded, Error: err.Error()}
			degraded = true
		} else {
			resp.ActiveSessions = &n
			if h.metrics != nil {
				h.metrics.SessionsActive.WithLabelValues().Set(float64(n))
			}
		}
	}

	code := http.StatusOK
	switch {
	case !healthy:
		resp.Status = pkgtypes.HealthDown
		code = http.StatusServiceUnavailable
	case degraded:
		resp.Status = pkgtypes.HealthDegraded
	}
	c.JSON(code, resp)
}

func (h *HealthHandler) uptime() string {
	return time.Since(h.startAt).Truncate(time.Second).String()
}

// checkAll runs all health checkers concurrently and returns results.
func (h *HealthHandler) checkAll(ctx context.Context) (map[string]ComponentCheck, bool) {
	results := make(map[string]ComponentCheck, len(h.checkers)+2)
	var mu sync.Mutex
	var wg sync.WaitGroup
	healthy := true

	for _, checker := range h.checkers {
		wg.Add(1)
		go func(hc HealthChecker) {
			defer wg.Done()

			start := time.Now()
			err := hc.Check(ctx)
			cc := ComponentCheck{
				Status:  pkgtypes.HealthUp,
				Latency: time.Since(start).Truncate(time.Microsecond).String(),
			}
			if err != nil {
				cc.Status = pkgtypes.HealthDown
				cc.Error = err.Error()
			}
			if h.metrics != nil {
				prometheus.SetHealth(h.metrics, hc.Name(), err == nil)
			}

			mu.Lock()
			results[hc.Name()] = cc
			if err != nil {
				healthy = false
			}
			mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results, healthy
}

//Personal.AI order the ending
