// Package http exposes the case engine over a gin HTTP API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/casemind/internal/interfaces/http/handlers"
	"github.com/turtacn/casemind/internal/interfaces/http/middleware"
	"github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

// APIPrefix is the versioned prefix of every resource route.
const APIPrefix = "/api/v1"

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.  Nil handlers leave their routes unmounted.
type RouterConfig struct {
	// Handlers
	CaseHandler    *handlers.CaseHandler
	CatalogHandler *handlers.CatalogHandler
	SessionHandler *handlers.SessionHandler
	HealthHandler  *handlers.HealthHandler

	// Middleware
	CORS        *middleware.CORSConfig
	RateLimiter middleware.RateLimiter
	RateLimit   middleware.RateLimitConfig
	Logging     middleware.LoggingConfig

	// Infrastructure
	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
	Metrics          *prometheus.AppMetrics
	// MaxBodySize caps request bodies; zero leaves them uncapped.
	MaxBodySize int64
}

// NewRouter builds the gin engine.  Global middleware runs in the order
// request id, recovery, logging, metrics, CORS, rate limit.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger, cfg.Logging))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.RateLimiter != nil {
		r.Use(middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit))
	}
	if cfg.MaxBodySize > 0 {
		r.Use(limitBody(cfg.MaxBodySize))
	}

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, errors.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, errors.ErrCodeBadRequest, "method not allowed")
	})

	// --- Health and metrics ---
	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	// --- API v1 ---
	api := r.Group(APIPrefix)
	if cfg.CaseHandler != nil {
		cfg.CaseHandler.RegisterRoutes(api)
	}
	if cfg.CatalogHandler != nil {
		cfg.CatalogHandler.RegisterRoutes(api)
	}
	if cfg.SessionHandler != nil {
		cfg.SessionHandler.RegisterRoutes(api)
	}
	return r
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			writeError(c, http.StatusRequestEntityTooLarge, errors.ErrCodeValidation, "request body too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func writeError(c *gin.Context, status int, code errors.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, pkgtypes.APIResponse[any]{
		Success:   false,
		Error:     &pkgtypes.ErrorDetail{Code: string(code), Message: message},
		RequestID: middleware.GetRequestID(c),
		Timestamp: pkgtypes.NewTimestamp(),
	})
}

//Personal.AI order the ending
