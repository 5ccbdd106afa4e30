package common

import (
	"bytes"
	"context"
	"encoding/json"
	stdliberrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// ServingClient talks to one model-serving endpoint (embedding model or
// cross-encoder) over JSON/HTTP.
type ServingClient interface {
	// Invoke POSTs req as JSON to path and decodes the response into resp.
	Invoke(ctx context.Context, path string, req, resp interface{}) error
	Healthy(ctx context.Context) error
	ModelName() string
	Close() error
}

var (
	ErrServingUnavailable = stdliberrors.New("serving unavailable")
	ErrInferenceTimeout   = stdliberrors.New("inference timeout")
	ErrCircuitOpen        = stdliberrors.New("circuit breaker is open")
	ErrClientClosed       = stdliberrors.New("client closed")
)

// ServingConfig configures an HTTP serving client.
type ServingConfig struct {
	BaseURL    string
	ModelName  string
	TaskType   string
	APIKey     string
	Timeout    time.Duration
	HealthPath string
	Retry      *RetryPolicy

	// CircuitThreshold consecutive failures open the breaker for
	// CircuitReset. Zero disables it.
	CircuitThreshold int
	CircuitReset     time.Duration
}

type httpServingClient struct {
	cfg     ServingConfig
	http    *http.Client
	cb      *circuitBreaker
	logger  logging.Logger
	metrics EngineMetrics
	closed  atomic.Bool
}

// NewHTTPServingClient creates a JSON/HTTP serving client.
func NewHTTPServingClient(cfg ServingConfig, logger logging.Logger, metrics EngineMetrics) (ServingClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.InvalidParam("base URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, errors.InvalidParam("base URL must be http or https").WithDetail(cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ModelName == "" {
		cfg.ModelName = "model"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewNoopEngineMetrics()
	}
	logger = logger.With(logging.String("model", cfg.ModelName))

	c := &httpServingClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		metrics: metrics,
	}
	if cfg.CircuitThreshold > 0 && cfg.CircuitReset > 0 {
		c.cb = newCircuitBreaker(cfg.ModelName, cfg.CircuitThreshold, cfg.CircuitReset, logger)
	}
	return c, nil
}

func (c *httpServingClient) ModelName() string { return c.cfg.ModelName }

func (c *httpServingClient) Invoke(ctx context.Context, path string, req, resp interface{}) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.cb.allow() {
		return errors.Wrap(ErrCircuitOpen, errors.ErrCodeModelUnavailable, "model endpoint circuit open").WithDetail(c.cfg.ModelName)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode model request")
	}

	start := time.Now()
	maxAttempts := 1
	if c.cfg.Retry != nil && c.cfg.Retry.MaxRetries > 0 {
		maxAttempts += c.cfg.Retry.MaxRetries
	}

	var lastErr error
attempts:
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt-1, c.cfg.Retry)
			c.logger.Warn("retrying model call",
				logging.String("path", path),
				logging.Int("attempt", attempt+1),
				logging.Duration("backoff", delay),
				logging.Err(lastErr))
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attempts
			case <-time.After(delay):
			}
		}

		lastErr = c.do(ctx, path, body, resp)
		if lastErr == nil {
			break
		}
		if !shouldRetry(lastErr, c.cfg.Retry) {
			break
		}
	}

	c.metrics.RecordInference(ctx, &InferenceMetricParams{
		ModelName:  c.cfg.ModelName,
		TaskType:   c.cfg.TaskType,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Success:    lastErr == nil,
	})

	if lastErr == nil {
		c.cb.recordSuccess()
		return nil
	}
	c.cb.recordFailure()
	return c.classify(lastErr)
}

// do performs one attempt. Transport faults and 5xx answers come back as
// ErrServingUnavailable so the retry policy can pick them up.
func (c *httpServingClient) do(ctx context.Context, path string, body []byte, resp interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrServingUnavailable, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrServingUnavailable, err)
	}

	switch {
	case httpResp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrServingUnavailable, httpResp.StatusCode, truncate(data, 256))
	case httpResp.StatusCode >= 300:
		return errors.Newf(errors.ErrCodeExternalService, "model endpoint rejected request: status %d", httpResp.StatusCode).
			WithDetail(truncate(data, 256))
	}

	if resp == nil {
		return nil
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "decode model response")
	}
	return nil
}

func (c *httpServingClient) classify(err error) error {
	switch {
	case stdliberrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(fmt.Errorf("%w: %v", ErrInferenceTimeout, err), errors.ErrCodeTimeout, "model call timed out").WithDetail(c.cfg.ModelName)
	case stdliberrors.Is(err, ErrServingUnavailable):
		return errors.Wrap(err, errors.ErrCodeModelUnavailable, "model endpoint unavailable").WithDetail(c.cfg.ModelName)
	}
	return err
}

func (c *httpServingClient) Healthy(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+c.cfg.HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeModelUnavailable, "model health check failed").WithDetail(c.cfg.ModelName)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.ErrCodeModelUnavailable, "model health check returned %d", resp.StatusCode).WithDetail(c.cfg.ModelName)
	}
	return nil
}

func (c *httpServingClient) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.http.CloseIdleConnections()
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

//Personal.AI order the ending
