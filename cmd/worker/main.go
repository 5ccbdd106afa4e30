// Ingest worker entry point for casemind.  The worker consumes
// ingest.requested messages, batches them through the ingestion service and
// dead-letters what keeps failing.
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

	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/bootstrap"
	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/casemind/internal/intelligence/common"
	httpserver "github.com/turtacn/casemind/internal/interfaces/http"
	"github.com/turtacn/casemind/internal/interfaces/http/handlers"
)

const (
	defaultWorkerConfigPath = "configs/config.yaml"
	defaultHealthPort       = 8081
	defaultDrainTimeout     = 2 * time.Minute
	statsInterval           = 15 * time.Second
	metricsNamespace        = "casemind_worker"
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultWorkerConfigPath, "path to configuration file")
	healthPort := flag.Int("health-port", defaultHealthPort, "port for /healthz, /readyz and /metrics")
	concurrency := flag.Int("workers", 0, "parallel ingestions per batch (overrides batch.concurrency)")
	replication := flag.Int("replication-factor", 1, "replication factor for topics created at startup")
	flag.Parse()

	if err := run(*configPath, *healthPort, *concurrency, *replication); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, healthPort, concurrency, replication int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka.enabled must be true to run the ingest worker")
	}
	if concurrency > 0 {
		cfg.Batch.Concurrency = concurrency
	}
	gin.SetMode(gin.ReleaseMode)

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting casemind worker",
		logging.String("version", version),
		logging.String("topic", cfg.Kafka.IngestTopic),
		logging.Int("batch_size", cfg.Batch.Size),
		logging.Int("concurrency", cfg.Batch.Concurrency))

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

	if err := ensureTopics(ctx, cfg.Kafka, replication, logger); err != nil {
		return err
	}

	infra, err := bootstrap.OpenInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := bootstrap.NewServices(ctx, cfg, infra, logger, engineMetrics)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close(context.Background()) }()

	batchOpts := []ingestion.BatchOption{ingestion.WithResultFunc(resultLogger(logger, appMetrics))}
	if svc.Documents != nil {
		batchOpts = append(batchOpts, ingestion.WithDocumentStore(svc.Documents))
	}
	batch, err := ingestion.NewBatchIngestor(svc.Ingestion, ingestion.BatchConfig{
		Size:         cfg.Batch.Size,
		FlushTimeout: cfg.Batch.FlushTimeout,
		Concurrency:  cfg.Batch.Concurrency,
	}, logger, engineMetrics, batchOpts...)
	if err != nil {
		return err
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg.Kafka), logger)
	if err != nil {
		return err
	}
	if err := consumer.Subscribe(cfg.Kafka.IngestTopic, batch.HandleMessage); err != nil {
		return err
	}

	healthSrv := startHealthServer(healthPort, infra, collector, appMetrics, logger)

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	go reportStats(ctx, cfg.Kafka.IngestTopic, consumer, batch, appMetrics, logger)
	logger.Info("worker consuming", logging.String("topic", cfg.Kafka.IngestTopic))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Stop consuming first so the final flush sees every accepted message.
	if err := consumer.Close(); err != nil {
		logger.Warn("consumer close failed", logging.Err(err))
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), defaultDrainTimeout)
	defer cancel()
	if err := batch.Close(drainCtx); err != nil {
		logger.Error("final batch flush failed", logging.Err(err))
	}
	if err := healthSrv.Shutdown(context.Background()); err != nil {
		logger.Warn("health server shutdown error", logging.Err(err))
	}

	stats := batch.Stats()
	logger.Info("casemind worker stopped",
		logging.Int64("ingested", stats.Ingested),
		logging.Int64("duplicates", stats.Duplicates),
		logging.Int64("failed", stats.Failed))
	return nil
}

// ensureTopics creates the ingest, event and dead-letter topics when missing.
func ensureTopics(ctx context.Context, cfg config.KafkaConfig, replication int, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		return err
	}
	defer func() { _ = tm.Close() }()
	return tm.EnsureTopics(ctx, kafka.CaseTopics(cfg, replication))
}

func resultLogger(logger logging.Logger, metrics *prometheus.AppMetrics) ingestion.ResultFunc {
	return func(req *ingestion.IngestRequest, res *ingestion.IngestResult, elapsed time.Duration, err error) {
		outcome := "ingested"
		switch {
		case err != nil:
			outcome = "failed"
			logger.Warn("ingest failed",
				logging.String("source", req.SourceName),
				logging.Err(err))
		case res.IsDuplicate:
			outcome = "duplicate"
		}
		prometheus.RecordIngest(metrics, "kafka", outcome, elapsed)
	}
}

func startHealthServer(port int, infra *bootstrap.Infrastructure, collector prometheus.MetricsCollector, metrics *prometheus.AppMetrics, logger logging.Logger) *httpserver.Server {
	checks := infra.HealthChecks()
	checkers := make([]handlers.HealthChecker, 0, len(checks))
	for _, c := range checks {
		checkers = append(checkers, c)
	}
	router := httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(version, checkers, handlers.WithHealthMetrics(metrics)),
		Logger:           logger,
		MetricsCollector: collector,
	})
	srv := httpserver.NewServer(config.ServerConfig{Port: port}, router, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("health server failed", logging.Err(err))
		}
	}()
	return srv
}

func reportStats(ctx context.Context, topic string, consumer *kafka.Consumer, batch *ingestion.BatchIngestor, metrics *prometheus.AppMetrics, logger logging.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	var reportedDead int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := consumer.GetMetrics()
			dead := m.MessagesDeadLettered.Load()
			prometheus.RecordConsumerStats(metrics, topic, m.Lag.Load(), dead-reportedDead)
			reportedDead = dead
			s := batch.Stats()
			logger.Debug("worker stats",
				logging.Int64("consumed", m.MessagesConsumed.Load()),
				logging.Int64("lag", m.Lag.Load()),
				logging.Int64("dead_lettered", m.MessagesDeadLettered.Load()),
				logging.Int64("ingested", s.Ingested),
				logging.Int64("duplicates", s.Duplicates),
				logging.Int64("failed", s.Failed))
		}
	}
}

//Personal.AI order the ending
