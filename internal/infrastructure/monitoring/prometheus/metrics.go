package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds the service-level metrics shared by the API server and
// the ingest worker.  Engine internals (resolver strategies, pipeline phases,
// batch flushes, embedding cache) are recorded by the engine metrics on the
// same registry.
type AppMetrics struct {
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPRequestSize     HistogramVec
	HTTPResponseSize    HistogramVec
	HTTPActiveRequests  GaugeVec

	CaseIngestTotal    CounterVec
	CaseIngestDuration HistogramVec
	CaseTotalCount     GaugeVec
	SimilarSearchTotal CounterVec
	SimilarResultCount HistogramVec
	SessionsActive     GaugeVec

	MessageConsumerLag   GaugeVec
	MessagesDeadLettered CounterVec
	HealthCheckStatus    GaugeVec
}

var (
	httpDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	ingestDurationBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	sizeBuckets           = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
	resultCountBuckets    = []float64{0, 1, 2, 3, 5, 10, 20}
)

// NewAppMetrics registers the service metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	route := []string{"method", "path"}
	return &AppMetrics{
		HTTPRequestsTotal:   collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code"),
		HTTPRequestDuration: collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", httpDurationBuckets, route...),
		HTTPRequestSize:     collector.RegisterHistogram("http_request_size_bytes", "HTTP request size", sizeBuckets, route...),
		HTTPResponseSize:    collector.RegisterHistogram("http_response_size_bytes", "HTTP response size", sizeBuckets, route...),
		HTTPActiveRequests:  collector.RegisterGauge("http_active_requests", "Active HTTP requests", route...),

		CaseIngestTotal:    collector.RegisterCounter("case_ingest_total", "Case ingestion outcomes", "source", "outcome"),
		CaseIngestDuration: collector.RegisterHistogram("case_ingest_duration_seconds", "Case ingestion duration", ingestDurationBuckets, "source"),
		CaseTotalCount:     collector.RegisterGauge("case_total_count", "Cases in the catalogue"),
		SimilarSearchTotal: collector.RegisterCounter("similar_search_total", "Similar case searches", "mode", "status"),
		SimilarResultCount: collector.RegisterHistogram("similar_search_result_count", "Similar cases returned per search", resultCountBuckets, "mode"),
		SessionsActive:     collector.RegisterGauge("sessions_active", "Search sessions currently stored"),

		MessageConsumerLag:   collector.RegisterGauge("mq_consumer_lag", "Consumer lag in messages", "topic"),
		MessagesDeadLettered: collector.RegisterCounter("mq_dead_lettered_total", "Messages routed to the dead letter topic", "topic"),
		HealthCheckStatus:    collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component"),
	}
}

// RecordHTTPRequest records one served request.  A negative reqSize means
// the request length was unknown.
func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration, reqSize, respSize int64) {
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if reqSize >= 0 {
		metrics.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	}
	metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordIngest counts one ingestion.  outcome is "ingested", "duplicate" or
// "failed".  A non-positive duration is counted but not observed.
func RecordIngest(metrics *AppMetrics, source, outcome string, duration time.Duration) {
	metrics.CaseIngestTotal.WithLabelValues(source, outcome).Inc()
	if duration > 0 {
		metrics.CaseIngestDuration.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// RecordSimilarSearch counts one similar-case search and its result size.
func RecordSimilarSearch(metrics *AppMetrics, mode string, results int, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.SimilarSearchTotal.WithLabelValues(mode, status).Inc()
	if err == nil {
		metrics.SimilarResultCount.WithLabelValues(mode).Observe(float64(results))
	}
}

// RecordConsumerStats publishes a consumer metrics snapshot.  deadLettered is
// the increase since the previous snapshot.
func RecordConsumerStats(metrics *AppMetrics, topic string, lag int64, deadLettered int64) {
	metrics.MessageConsumerLag.WithLabelValues(topic).Set(float64(lag))
	if deadLettered > 0 {
		metrics.MessagesDeadLettered.WithLabelValues(topic).Add(float64(deadLettered))
	}
}

// SetHealth sets the health gauge of component to 1 or 0.
func SetHealth(metrics *AppMetrics, component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(component).Set(v)
}

//Personal.AI order the ending
