package common

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// EngineMetrics is the telemetry surface of the classification and similarity
// engine. Application services, the batch accumulator and the model-serving
// clients record through it so that the backend (Prometheus, in-memory, noop)
// can be swapped without touching business code.
type EngineMetrics interface {
	// RecordClassification records one template resolution and the strategy
	// that produced the winning match.
	RecordClassification(ctx context.Context, strategy string, confidence float64)

	// RecordDuplicateDecision records a duplicate-check outcome.
	RecordDuplicateDecision(ctx context.Context, method string, degraded bool)

	// RecordPipelinePhase records the latency of one similarity pipeline phase.
	RecordPipelinePhase(ctx context.Context, phase string, durationMs float64)

	// RecordCandidatesDropped counts candidates removed by a pipeline filter.
	RecordCandidatesDropped(ctx context.Context, reason string, n int)

	// RecordBatchFlush records one accumulator flush.
	RecordBatchFlush(ctx context.Context, params *FlushMetricParams)

	// RecordInference records a single call to a model-serving endpoint.
	RecordInference(ctx context.Context, params *InferenceMetricParams)

	// RecordCacheAccess records a cache hit or miss.
	RecordCacheAccess(ctx context.Context, hit bool, cacheName string)

	GetInferenceLatencyHistogram() LatencyHistogram
	GetCurrentStats() *EngineStats
}

// LatencyHistogram provides percentile-based latency observation.
type LatencyHistogram interface {
	// Observe records a latency sample in milliseconds.
	Observe(durationMs float64)

	// Percentile returns the value at the given percentile (0–100).
	Percentile(p float64) float64

	Count() int64
	Sum() float64
}

// ---------------------------------------------------------------------------
// Parameter structs
// ---------------------------------------------------------------------------

// InferenceMetricParams carries the data for a single model call.
type InferenceMetricParams struct {
	ModelName  string  `json:"model_name"`
	TaskType   string  `json:"task_type"`
	DurationMs float64 `json:"duration_ms"`
	Success    bool    `json:"success"`
	BatchSize  int     `json:"batch_size"`
}

// Flush triggers.
const (
	FlushTriggerSize    = "size"
	FlushTriggerTimeout = "timeout"
	FlushTriggerManual  = "manual"
)

// FlushMetricParams carries the data for one accumulator flush.
type FlushMetricParams struct {
	Accumulator string  `json:"accumulator"`
	Trigger     string  `json:"trigger"`
	Size        int     `json:"size"`
	DurationMs  float64 `json:"duration_ms"`
	Failed      bool    `json:"failed"`
}

// EngineStats is a point-in-time snapshot of engine metrics.
type EngineStats struct {
	TotalInferences       int64            `json:"total_inferences"`
	SuccessfulInferences  int64            `json:"successful_inferences"`
	FailedInferences      int64            `json:"failed_inferences"`
	AvgInferenceLatencyMs float64          `json:"avg_inference_latency_ms"`
	P50LatencyMs          float64          `json:"p50_latency_ms"`
	P95LatencyMs          float64          `json:"p95_latency_ms"`
	P99LatencyMs          float64          `json:"p99_latency_ms"`
	CacheHitRate          float64          `json:"cache_hit_rate"`
	Classifications       map[string]int64 `json:"classifications"`
	DuplicateDecisions    map[string]int64 `json:"duplicate_decisions"`
	Flushes               map[string]int64 `json:"flushes"`
}

// ---------------------------------------------------------------------------
// Prometheus implementation
// ---------------------------------------------------------------------------

const metricsPrefix = "casemind_engine_"

var (
	defaultLatencyBuckets    = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	defaultBatchSizeBuckets  = []float64{1, 2, 5, 10, 20, 50, 100, 250}
	defaultConfidenceBuckets = []float64{0.3, 0.6, 0.7, 0.8, 0.85, 0.9, 1}
)

type prometheusEngineMetrics struct {
	classificationTotal      *prometheus.CounterVec
	classificationConfidence *prometheus.HistogramVec
	duplicateTotal           *prometheus.CounterVec
	pipelinePhaseDuration    *prometheus.HistogramVec
	candidatesDroppedTotal   *prometheus.CounterVec
	batchFlushTotal          *prometheus.CounterVec
	batchFlushSize           *prometheus.HistogramVec
	batchFlushDuration       *prometheus.HistogramVec
	inferenceLatency         *prometheus.HistogramVec
	inferenceTotal           *prometheus.CounterVec
	cacheAccessTotal         *prometheus.CounterVec

	latencyHist *latencyHistogram
	totalInf    atomic.Int64
	successInf  atomic.Int64
	failedInf   atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	counts      *labelCounts
}

// NewPrometheusEngineMetrics creates a Prometheus-backed collector and
// registers every metric with the supplied Registerer.
func NewPrometheusEngineMetrics(registerer prometheus.Registerer) (EngineMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &prometheusEngineMetrics{
		latencyHist: newLatencyHistogram(),
		counts:      newLabelCounts(),
	}

	m.classificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "classification_total",
		Help: "Template resolutions by winning match strategy.",
	}, []string{"strategy"})

	m.classificationConfidence = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "classification_confidence",
		Help:    "Confidence of the selected template.",
		Buckets: defaultConfidenceBuckets,
	}, []string{"strategy"})

	m.duplicateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "duplicate_decisions_total",
		Help: "Duplicate-check outcomes by match method.",
	}, []string{"method", "degraded"})

	m.pipelinePhaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "pipeline_phase_duration_milliseconds",
		Help:    "Latency of similarity pipeline phases in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"phase"})

	m.candidatesDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "candidates_dropped_total",
		Help: "Similarity candidates removed by a filter.",
	}, []string{"reason"})

	m.batchFlushTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "batch_flush_total",
		Help: "Accumulator flushes by trigger and outcome.",
	}, []string{"accumulator", "trigger", "status"})

	m.batchFlushSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "batch_flush_size",
		Help:    "Number of items handed to the flush callback.",
		Buckets: defaultBatchSizeBuckets,
	}, []string{"accumulator"})

	m.batchFlushDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "batch_flush_duration_milliseconds",
		Help:    "Flush callback duration in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"accumulator"})

	m.inferenceLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "inference_duration_milliseconds",
		Help:    "Model-serving call latency in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"model_name", "task_type"})

	m.inferenceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "inference_total",
		Help: "Total number of model-serving calls.",
	}, []string{"model_name", "task_type", "status"})

	m.cacheAccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "cache_access_total",
		Help: "Total number of cache accesses.",
	}, []string{"cache", "result"})

	collectors := []prometheus.Collector{
		m.classificationTotal,
		m.classificationConfidence,
		m.duplicateTotal,
		m.pipelinePhaseDuration,
		m.candidatesDroppedTotal,
		m.batchFlushTotal,
		m.batchFlushSize,
		m.batchFlushDuration,
		m.inferenceLatency,
		m.inferenceTotal,
		m.cacheAccessTotal,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *prometheusEngineMetrics) RecordClassification(_ context.Context, strategy string, confidence float64) {
	m.classificationTotal.WithLabelValues(strategy).Inc()
	m.classificationConfidence.WithLabelValues(strategy).Observe(confidence)
	m.counts.inc(&m.counts.classifications, strategy, 1)
}

func (m *prometheusEngineMetrics) RecordDuplicateDecision(_ context.Context, method string, degraded bool) {
	m.duplicateTotal.WithLabelValues(method, boolLabel(degraded)).Inc()
	m.counts.inc(&m.counts.duplicates, method, 1)
}

func (m *prometheusEngineMetrics) RecordPipelinePhase(_ context.Context, phase string, durationMs float64) {
	m.pipelinePhaseDuration.WithLabelValues(phase).Observe(durationMs)
}

func (m *prometheusEngineMetrics) RecordCandidatesDropped(_ context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.candidatesDroppedTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *prometheusEngineMetrics) RecordBatchFlush(_ context.Context, p *FlushMetricParams) {
	if p == nil {
		return
	}
	status := "success"
	if p.Failed {
		status = "failure"
	}
	m.batchFlushTotal.WithLabelValues(p.Accumulator, p.Trigger, status).Inc()
	m.batchFlushSize.WithLabelValues(p.Accumulator).Observe(float64(p.Size))
	m.batchFlushDuration.WithLabelValues(p.Accumulator).Observe(p.DurationMs)
	m.counts.inc(&m.counts.flushes, p.Trigger, 1)
}

func (m *prometheusEngineMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	status := "success"
	if !p.Success {
		status = "failure"
	}
	m.inferenceLatency.WithLabelValues(p.ModelName, p.TaskType).Observe(p.DurationMs)
	m.inferenceTotal.WithLabelValues(p.ModelName, p.TaskType, status).Inc()

	m.latencyHist.Observe(p.DurationMs)
	m.totalInf.Add(1)
	if p.Success {
		m.successInf.Add(1)
	} else {
		m.failedInf.Add(1)
	}
}

func (m *prometheusEngineMetrics) RecordCacheAccess(_ context.Context, hit bool, cacheName string) {
	result := "miss"
	if hit {
		result = "hit"
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
	m.cacheAccessTotal.WithLabelValues(cacheName, result).Inc()
}

func (m *prometheusEngineMetrics) GetInferenceLatencyHistogram() LatencyHistogram {
	return m.latencyHist
}

func (m *prometheusEngineMetrics) GetCurrentStats() *EngineStats {
	total := m.totalInf.Load()

	var avgLatency float64
	if total > 0 {
		avgLatency = m.latencyHist.Sum() / float64(total)
	}

	stats := &EngineStats{
		TotalInferences:       total,
		SuccessfulInferences:  m.successInf.Load(),
		FailedInferences:      m.failedInf.Load(),
		AvgInferenceLatencyMs: avgLatency,
		P50LatencyMs:          m.latencyHist.Percentile(50),
		P95LatencyMs:          m.latencyHist.Percentile(95),
		P99LatencyMs:          m.latencyHist.Percentile(99),
		CacheHitRate:          hitRate(m.cacheHits.Load(), m.cacheMisses.Load()),
	}
	m.counts.fill(stats)
	return stats
}

// ---------------------------------------------------------------------------
// Noop implementation
// ---------------------------------------------------------------------------

type noopEngineMetrics struct{}

// NewNoopEngineMetrics returns a no-op metrics implementation.
func NewNoopEngineMetrics() EngineMetrics {
	return &noopEngineMetrics{}
}

func (n *noopEngineMetrics) RecordClassification(context.Context, string, float64) {}
func (n *noopEngineMetrics) RecordDuplicateDecision(context.Context, string, bool) {}
func (n *noopEngineMetrics) RecordPipelinePhase(context.Context, string, float64) {}
func (n *noopEngineMetrics) RecordCandidatesDropped(context.Context, string, int) {}
func (n *noopEngineMetrics) RecordBatchFlush(context.Context, *FlushMetricParams) {}
func (n *noopEngineMetrics) RecordInference(context.Context, *InferenceMetricParams) {}
func (n *noopEngineMetrics) RecordCacheAccess(context.Context, bool, string) {}
func (n *noopEngineMetrics) GetInferenceLatencyHistogram() LatencyHistogram { return newLatencyHistogram() }

func (n *noopEngineMetrics) GetCurrentStats() *EngineStats {
	return &EngineStats{
		Classifications:    map[string]int64{},
		DuplicateDecisions: map[string]int64{},
		Flushes:            map[string]int64{},
	}
}

// ---------------------------------------------------------------------------
// In-memory implementation (for testing)
// ---------------------------------------------------------------------------

// InMemoryEngineMetrics keeps every recorded event so tests can assert on
// them.
type InMemoryEngineMetrics struct {
	mu sync.Mutex

	inferences  []InferenceMetricParams
	flushes     []FlushMetricParams
	phases      map[string][]float64
	dropped     map[string]int
	cacheHits   int64
	cacheMisses int64
	counts      *labelCounts
	latencyHist *latencyHistogram
}

// NewInMemoryEngineMetrics returns an in-memory metrics implementation.
func NewInMemoryEngineMetrics() *InMemoryEngineMetrics {
	return &InMemoryEngineMetrics{
		phases:      make(map[string][]float64),
		dropped:     make(map[string]int),
		counts:      newLabelCounts(),
		latencyHist: newLatencyHistogram(),
	}
}

func (m *InMemoryEngineMetrics) RecordClassification(_ context.Context, strategy string, _ float64) {
	m.counts.inc(&m.counts.classifications, strategy, 1)
}

func (m *InMemoryEngineMetrics) RecordDuplicateDecision(_ context.Context, method string, _ bool) {
	m.counts.inc(&m.counts.duplicates, method, 1)
}

func (m *InMemoryEngineMetrics) RecordPipelinePhase(_ context.Context, phase string, durationMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[phase] = append(m.phases[phase], durationMs)
}

func (m *InMemoryEngineMetrics) RecordCandidatesDropped(_ context.Context, reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason] += n
}

func (m *InMemoryEngineMetrics) RecordBatchFlush(_ context.Context, p *FlushMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.flushes = append(m.flushes, *p)
	m.mu.Unlock()
	m.counts.inc(&m.counts.flushes, p.Trigger, 1)
}

func (m *InMemoryEngineMetrics) RecordInference(_ context.Context, p *InferenceMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inferences = append(m.inferences, *p)
	m.latencyHist.Observe(p.DurationMs)
}

func (m *InMemoryEngineMetrics) RecordCacheAccess(_ context.Context, hit bool, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func (m *InMemoryEngineMetrics) GetInferenceLatencyHistogram() LatencyHistogram {
	return m.latencyHist
}

func (m *InMemoryEngineMetrics) GetCurrentStats() *EngineStats {
	m.mu.Lock()
	total := int64(len(m.inferences))
	var success, failed int64
	var sumLatency float64
	for _, inf := range m.inferences {
		if inf.Success {
			success++
		} else {
			failed++
		}
		sumLatency += inf.DurationMs
	}
	hits, misses := m.cacheHits, m.cacheMisses
	m.mu.Unlock()

	var avgLatency float64
	if total > 0 {
		avgLatency = sumLatency / float64(total)
	}

	stats := &EngineStats{
		TotalInferences:       total,
		SuccessfulInferences:  success,
		FailedInferences:      failed,
		AvgInferenceLatencyMs: avgLatency,
		P50LatencyMs:          m.latencyHist.Percentile(50),
		P95LatencyMs:          m.latencyHist.Percentile(95),
		P99LatencyMs:          m.latencyHist.Percentile(99),
		CacheHitRate:          hitRate(hits, misses),
	}
	m.counts.fill(stats)
	return stats
}

// Flushes returns a copy of every recorded flush.
func (m *InMemoryEngineMetrics) Flushes() []FlushMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FlushMetricParams, len(m.flushes))
	copy(out, m.flushes)
	return out
}

// Inferences returns a copy of every recorded model call.
func (m *InMemoryEngineMetrics) Inferences() []InferenceMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InferenceMetricParams, len(m.inferences))
	copy(out, m.inferences)
	return out
}

// PhaseSamples returns how many latency samples were recorded for phase.
func (m *InMemoryEngineMetrics) PhaseSamples(phase string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.phases[phase])
}

// Dropped returns the number of candidates dropped for reason.
func (m *InMemoryEngineMetrics) Dropped(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

// Classifications returns the per-strategy classification counts.
func (m *InMemoryEngineMetrics) Classifications() map[string]int64 {
	return m.counts.snapshot(&m.counts.classifications)
}

// DuplicateDecisions returns the per-method duplicate-check counts.
func (m *InMemoryEngineMetrics) DuplicateDecisions() map[string]int64 {
	return m.counts.snapshot(&m.counts.duplicates)
}

// ---------------------------------------------------------------------------
// labelCounts backs the per-label maps of EngineStats
// ---------------------------------------------------------------------------

type labelCounts struct {
	mu              sync.Mutex
	classifications map[string]int64
	duplicates      map[string]int64
	flushes         map[string]int64
}

func newLabelCounts() *labelCounts {
	return &labelCounts{
		classifications: make(map[string]int64),
		duplicates:      make(map[string]int64),
		flushes:         make(map[string]int64),
	}
}

func (c *labelCounts) inc(target *map[string]int64, label string, n int64) {
	c.mu.Lock()
	(*target)[label] += n
	c.mu.Unlock()
}

func (c *labelCounts) snapshot(target *map[string]int64) map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(*target))
	for k, v := range *target {
		out[k] = v
	}
	return out
}

func (c *labelCounts) fill(stats *EngineStats) {
	stats.Classifications = c.snapshot(&c.classifications)
	stats.DuplicateDecisions = c.snapshot(&c.duplicates)
	stats.Flushes = c.snapshot(&c.flushes)
}

// ---------------------------------------------------------------------------
// latencyHistogram
// ---------------------------------------------------------------------------

type latencyHistogram struct {
	mu      sync.RWMutex
	samples []float64
	sum     float64
	sorted  bool
}

func newLatencyHistogram() *latencyHistogram {
	return &latencyHistogram{
		samples: make([]float64, 0, 256),
	}
}

func (h *latencyHistogram) Observe(durationMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, durationMs)
	h.sum += durationMs
	h.sorted = false
}

// Percentile returns the value at percentile p (0–100) using linear
// interpolation between the two nearest ranks.
func (h *latencyHistogram) Percentile(p float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.samples)
	if n == 0 {
		return 0
	}
	if !h.sorted {
		sort.Float64s(h.samples)
		h.sorted = true
	}
	if p <= 0 {
		return h.samples[0]
	}
	if p >= 100 {
		return h.samples[n-1]
	}

	rank := (p / 100) * float64(n-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= n {
		return h.samples[n-1]
	}
	frac := rank - float64(lower)
	return h.samples[lower] + frac*(h.samples[upper]-h.samples[lower])
}

func (h *latencyHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return int64(len(h.samples))
}

func (h *latencyHistogram) Sum() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sum
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// compile-time interface checks
var (
	_ EngineMetrics    = (*prometheusEngineMetrics)(nil)
	_ EngineMetrics    = (*noopEngineMetrics)(nil)
	_ EngineMetrics    = (*InMemoryEngineMetrics)(nil)
	_ LatencyHistogram = (*latencyHistogram)(nil)
)

//Personal.AI order the ending
