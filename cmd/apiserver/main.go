// API server entry point for casemind.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/casemind/internal/bootstrap"
	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/casemind/internal/intelligence/common"
	httpserver "github.com/turtacn/casemind/internal/interfaces/http"
	"github.com/turtacn/casemind/internal/interfaces/http/handlers"
	"github.com/turtacn/casemind/internal/interfaces/http/middleware"
)

const (
	defaultConfigPath = "configs/config.yaml"
	metricsNamespace  = "casemind"
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *httpPort); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, httpPort int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if httpPort > 0 {
		cfg.Server.Port = httpPort
	}
	gin.SetMode(cfg.Server.Mode)

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting casemind API server",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port),
		logging.String("vector_store", cfg.VectorStore.Backend))

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            metricsNamespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	appMetrics := prometheus.NewAppMetrics(collector)
	engineMetrics, err := common.NewPrometheusEngineMetrics(collector.Registerer())
	if err != nil {
		return fmt.Errorf("engine metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.OpenInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := bootstrap.NewServices(ctx, cfg, infra, logger, engineMetrics)
	if err != nil {
		return err
	}

	router, err := buildRouter(cfg, infra, svc, logger, collector, appMetrics)
	if err != nil {
		return err
	}
	srv := httpserver.NewServer(cfg.Server, router, logger)

	watchConfig(configPath, cfg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err = <-errCh:
		logger.Error("HTTP server failed", logging.Err(err))
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if serr := srv.Shutdown(context.Background()); serr != nil {
			logger.Error("HTTP server shutdown error", logging.Err(serr))
		}
	}

	// Sessions still analysing get the shutdown timeout to finish.
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if cerr := svc.Close(closeCtx); cerr != nil {
		logger.Warn("services did not stop cleanly", logging.Err(cerr))
	}
	logger.Info("casemind API server stopped")
	return err
}

func buildRouter(
	cfg *config.Config,
	infra *bootstrap.Infrastructure,
	svc *bootstrap.Services,
	logger logging.Logger,
	collector prometheus.MetricsCollector,
	appMetrics *prometheus.AppMetrics,
) (*gin.Engine, error) {
	caseHandler, err := handlers.NewCaseHandler(handlers.CaseHandlerDeps{
		Ingest:    svc.Ingestion,
		Catalog:   svc.Catalog,
		Pipeline:  svc.Pipeline,
		Resolver:  svc.Taxonomy.Resolver,
		Templates: svc.Taxonomy.Templates,
		Metrics:   appMetrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	health := handlers.NewHealthHandler(version, healthCheckers(infra),
		handlers.WithCaseCounter(svc.Cases),
		handlers.WithSessionCounter(svc.Sessions),
		handlers.WithHealthMetrics(appMetrics))

	rc := httpserver.RouterConfig{
		CaseHandler:      caseHandler,
		CatalogHandler:   handlers.NewCatalogHandler(svc.Catalog),
		SessionHandler:   handlers.NewSessionHandler(svc.Sessions),
		HealthHandler:    health,
		RateLimit:        middleware.DefaultRateLimitConfig(),
		Logging:          middleware.DefaultLoggingConfig(),
		Logger:           logger,
		MetricsCollector: collector,
		Metrics:          appMetrics,
		MaxBodySize:      cfg.Server.MaxBodySize,
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.CORSOrigins
		rc.CORS = &cors
	}
	if cfg.Server.RateLimit > 0 {
		rc.RateLimiter = middleware.NewTokenBucketLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitBurst, time.Minute)
	}
	return httpserver.NewRouter(rc), nil
}

// watchConfig reports edits to the config file.  Connection settings need a
// restart; the log and similarity sections are reported so operators can see
// the new values were read.
func watchConfig(path string, current *config.Config, logger logging.Logger) {
	err := config.Watch(path, func(next *config.Config) {
		logger.Info("configuration file changed; restart to apply",
			logging.String("log_level", next.Log.Level),
			logging.Float64("similarity_threshold", next.Similarity.Threshold),
			logging.Int("similarity_top_k", next.Similarity.TopK),
			logging.Bool("connections_changed", next.Database != current.Database || next.Redis.Addr != current.Redis.Addr))
	}, func(err error) {
		logger.Warn("ignoring invalid configuration edit", logging.Err(err))
	})
	if err != nil {
		logger.Warn("configuration watch disabled", logging.Err(err))
	}
}

func healthCheckers(infra *bootstrap.Infrastructure) []handlers.HealthChecker {
	checks := infra.HealthChecks()
	out := make([]handlers.HealthChecker, 0, len(checks))
	for _, c := range checks {
		out = append(out, c)
	}
	return out
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return config.DefaultServerShutdownTimeout
}

//Personal.AI order the ending
