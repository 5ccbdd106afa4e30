package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/intelligence/common"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

// IngestMessage is the JSON body of an ingest.requested message.  Content is
// base64 in JSON.  ObjectKey, when set, names a document already uploaded to
// the object store.
type IngestMessage struct {
	SourceName string `json:"source_name"`
	Content    []byte `json:"content,omitempty"`
	ObjectKey  string `json:"object_key,omitempty"`
	Text       string `json:"text,omitempty"`
	KnownID    string `json:"known_id,omitempty"`
}

// BatchConfig tunes the batch ingestor.
type BatchConfig struct {
	Size         int
	FlushTimeout time.Duration
	// Concurrency bounds parallel Ingest calls within one flush.
	Concurrency int
}

// BatchStats counts batch ingestion outcomes.
type BatchStats struct {
	Submitted  int64 `json:"submitted"`
	Ingested   int64 `json:"ingested"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
	common.AccumulatorStatus
}

// ResultFunc observes every processed request and how long it took.  err is
// nil on success.
type ResultFunc func(req *IngestRequest, res *IngestResult, elapsed time.Duration, err error)

// BatchIngestor buffers ingest requests and runs them in batches.
type BatchIngestor struct {
	svc         Service
	documents   DocumentStore
	acc         *common.BatchAccumulator[*IngestRequest]
	concurrency int
	onResult    ResultFunc
	logger      logging.Logger

	submitted  atomic.Int64
	ingested   atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

// BatchOption customises a BatchIngestor.
type BatchOption func(*BatchIngestor)

// WithResultFunc registers an observer for processed requests.
func WithResultFunc(fn ResultFunc) BatchOption {
	return func(b *BatchIngestor) { b.onResult = fn }
}

// WithDocumentStore lets messages reference already uploaded documents.
func WithDocumentStore(ds DocumentStore) BatchOption {
	return func(b *BatchIngestor) { b.documents = ds }
}

// NewBatchIngestor creates a BatchIngestor over svc.
func NewBatchIngestor(svc Service, cfg BatchConfig, logger logging.Logger, metrics common.EngineMetrics, opts ...BatchOption) (*BatchIngestor, error) {
	if svc == nil {
		return nil, apperrors.InvalidParam("batch ingestor requires an ingestion service")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	b := &BatchIngestor{
		svc:         svc,
		concurrency: cfg.Concurrency,
		logger:      logger.Named("batch_ingest"),
	}
	for _, opt := range opts {
		opt(b)
	}

	acc, err := common.NewBatchAccumulator[*IngestRequest](cfg.Size, cfg.FlushTimeout, b.flush,
		common.WithAccumulatorName("ingest"),
		common.WithAccumulatorLogger(logger),
		common.WithAccumulatorMetrics(metrics))
	if err != nil {
		return nil, err
	}
	b.acc = acc
	return b, nil
}

// Submit queues one request.
func (b *BatchIngestor) Submit(ctx context.Context, req *IngestRequest) error {
	if req == nil || (len(req.Content) == 0 && req.Text == "") {
		return apperrors.InvalidParam("document content is empty")
	}
	if err := b.acc.Add(ctx, req, req.SourceName); err != nil {
		return err
	}
	b.submitted.Add(1)
	return nil
}

// HandleMessage decodes an ingest.requested message and queues it.  It has
// the shape of a Kafka consumer handler.
func (b *BatchIngestor) HandleMessage(ctx context.Context, msg *pkgtypes.Message) error {
	var m IngestMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		// a malformed message will never decode; drop it instead of retrying
		b.logger.WithError(err).Warn("dropping malformed ingest message",
			logging.String("topic", msg.Topic),
			logging.Int64("offset", msg.Offset))
		return nil
	}
	req := &IngestRequest{SourceName: m.SourceName, Content: m.Content, Text: m.Text, KnownID: m.KnownID}
	if len(req.Content) == 0 && m.ObjectKey != "" {
		if b.documents == nil {
			return apperrors.New(apperrors.ErrCodeIngestionFailed, "message references an object but no document store is configured").WithDetail(m.ObjectKey)
		}
		data, err := b.documents.GetDocument(ctx, m.ObjectKey)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeIngestionFailed, "fetch referenced document").WithDetail(m.ObjectKey)
		}
		req.Content = data
	}
	if req.SourceName == "" {
		req.SourceName = string(msg.Key)
	}
	if err := b.Submit(ctx, req); err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeBadRequest) {
			b.logger.Warn("dropping empty ingest message", logging.Int64("offset", msg.Offset))
			return nil
		}
		return err
	}
	return nil
}

// Flush ingests whatever is buffered now.
func (b *BatchIngestor) Flush(ctx context.Context) error {
	return b.acc.Flush(ctx)
}

// Close flushes the remainder and stops accepting requests.
func (b *BatchIngestor) Close(ctx context.Context) error {
	return b.acc.Close(ctx)
}

// Stats returns counters and the accumulator state.
func (b *BatchIngestor) Stats() BatchStats {
	return BatchStats{
		Submitted:         b.submitted.Load(),
		Ingested:          b.ingested.Load(),
		Duplicates:        b.duplicates.Load(),
		Failed:            b.failed.Load(),
		AccumulatorStatus: b.acc.Status(),
	}
}

// flush ingests one batch with bounded concurrency.  Per-item failures are
// counted and reported; the batch fails only when every item failed.
func (b *BatchIngestor) flush(ctx context.Context, batch []common.BatchItem[*IngestRequest]) error {
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, item := range batch {
		req := item.Payload
		g.Go(func() error {
			start := time.Now()
			res, err := b.svc.Ingest(gctx, req)
			elapsed := time.Since(start)
			switch {
			case err != nil:
				failed.Add(1)
				b.failed.Add(1)
				b.logger.WithError(err).Warn("batch item not ingested", logging.String("source", req.SourceName))
			case res.IsDuplicate:
				b.duplicates.Add(1)
			default:
				b.ingested.Add(1)
			}
			if b.onResult != nil {
				b.onResult(req, res, elapsed, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 && int(n) == len(batch) {
		return fmt.Errorf("all %d items in batch failed", n)
	}
	return nil
}

//Personal.AI order the ending
