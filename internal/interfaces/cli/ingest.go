package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/casemind/internal/application/ingestion"
	"github.com/turtacn/casemind/internal/config"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/internal/infrastructure/storage/minio"
	"github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

// Ingest statuses.
const (
	statusIngested  = "ingested"
	statusDuplicate = "duplicate"
	statusQueued    = "queued"
	statusFailed    = "failed"
)

// IngestRow is the outcome for one file.
type IngestRow struct {
	File        string  `json:"file"`
	Status      string  `json:"status"`
	CaseID      string  `json:"case_id,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	TemplateID  string  `json:"template_id,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// IngestView lists every file's outcome.
type IngestView struct {
	Results []IngestRow `json:"results"`
}

func (v *IngestView) TableHeaders() []string {
	return []string{"File", "Status", "Case", "Template", "Confidence", "Detail"}
}

func (v *IngestView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Results))
	for _, r := range v.Results {
		detail := r.Error
		if detail == "" {
			detail = casefile.Fingerprint(r.Fingerprint).Short()
		}
		conf := "-"
		if r.TemplateID != "" {
			conf = formatScore(r.Confidence)
		}
		rows = append(rows, []string{r.File, colorStatus(r.Status), r.CaseID, r.TemplateID, conf, detail})
	}
	return rows
}

func (v *IngestView) failed() int {
	n := 0
	for _, r := range v.Results {
		if r.Status == statusFailed {
			n++
		}
	}
	return n
}

func colorStatus(s string) string {
	switch s {
	case statusIngested, statusQueued:
		return color.GreenString(s)
	case statusDuplicate:
		return color.YellowString(s)
	case statusFailed:
		return color.RedString(s)
	}
	return s
}

// enqueuer hands documents to the ingest worker through the broker.  When
// documents is set the bytes are uploaded first and only the object key
// travels on the topic.
type enqueuer struct {
	publisher ingestion.MessagePublisher
	documents ingestion.DocumentStore
	topic     string
}

// openEnqueuer connects the producer and, when enabled, the object store.  A
// variable so tests can substitute it.
var openEnqueuer = func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*enqueuer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, nil, errors.New(errors.ErrCodeMessagingError, "kafka is disabled; --enqueue requires kafka.enabled")
	}
	producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeMessagingError, "kafka producer")
	}
	e := &enqueuer{publisher: producer, topic: cfg.Kafka.IngestTopic}
	cleanup := func() { _ = producer.Close() }

	if cfg.MinIO.Enabled {
		mc, err := minio.NewMinIOClient(minio.ConfigFrom(cfg.MinIO), logger)
		if err != nil {
			cleanup()
			return nil, nil, errors.Wrap(err, errors.ErrCodeStorageError, "minio")
		}
		e.documents = minio.NewDocumentStore(mc, logger)
		cleanup = func() {
			_ = producer.Close()
			_ = mc.Close()
		}
	}
	return e, cleanup, nil
}

func (e *enqueuer) enqueue(ctx context.Context, name string, content []byte, knownID string) (casefile.Fingerprint, error) {
	fp := casefile.ComputeFingerprint(content)
	msg := ingestion.IngestMessage{SourceName: name, KnownID: knownID}
	if e.documents != nil {
		key := ingestion.DocumentKey(fp.String())
		if err := e.documents.PutDocument(ctx, key, content, "application/octet-stream"); err != nil {
			return fp, err
		}
		msg.ObjectKey = key
	} else {
		msg.Content = content
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fp, errors.Wrap(err, errors.ErrCodeSerialization, "encode ingest message")
	}
	return fp, e.publisher.Publish(ctx, &pkgtypes.ProducerMessage{
		Topic: e.topic,
		Key:   []byte(fp),
		Value: body,
	})
}

func newIngestCmd() *cobra.Command {
	var (
		knownID string
		queue   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Store documents in the case corpus",
		Long: "Analyse and store each document unless it is a duplicate.  With\n" +
			"--enqueue the documents are published to the ingest topic and stored\n" +
			"by the worker instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if knownID != "" && len(args) > 1 {
				return errors.InvalidParam("--known-id applies to a single file")
			}
			ctx, cancel := commandContext(cmd, cc)
			defer cancel()

			var view *IngestView
			if queue {
				view, err = enqueueFiles(ctx, cc, args, knownID)
			} else {
				view, err = ingestFiles(ctx, cc, args, knownID)
			}
			if err != nil {
				return err
			}
			if err := PrintResult(cmd, view); err != nil {
				return err
			}
			if n := view.failed(); n > 0 {
				return errors.Newf(errors.ErrCodeIngestionFailed, "%d of %d documents failed", n, len(view.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&knownID, "known-id", "", "identifier the document is known by (single file only)")
	cmd.Flags().BoolVar(&queue, "enqueue", false, "publish to the ingest topic instead of storing in-process")
	return cmd
}

func ingestFiles(ctx context.Context, cc *CLIContext, files []string, knownID string) (*IngestView, error) {
	svc, closeFn, err := openServices(ctx, cc.Config, cc.Logger)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	view := &IngestView{Results: make([]IngestRow, 0, len(files))}
	for _, file := range files {
		row := IngestRow{File: file}
		content, err := os.ReadFile(file)
		if err != nil {
			row.Status, row.Error = statusFailed, err.Error()
			view.Results = append(view.Results, row)
			continue
		}
		res, err := svc.Ingestion.Ingest(ctx, &ingestion.IngestRequest{
			SourceName: filepath.Base(file),
			Content:    content,
			KnownID:    knownID,
		})
		switch {
		case err != nil:
			row.Status, row.Error = statusFailed, err.Error()
		case res.IsDuplicate:
			row.Status = statusDuplicate
			row.CaseID, row.Fingerprint = res.CaseID, res.Fingerprint
		default:
			row.Status = statusIngested
			row.CaseID, row.Fingerprint = res.CaseID, res.Fingerprint
			row.TemplateID, row.Confidence = res.TemplateID, res.Confidence
		}
		view.Results = append(view.Results, row)
	}
	return view, nil
}

func enqueueFiles(ctx context.Context, cc *CLIContext, files []string, knownID string) (*IngestView, error) {
	q, closeFn, err := openEnqueuer(ctx, cc.Config, cc.Logger)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	view := &IngestView{Results: make([]IngestRow, 0, len(files))}
	for _, file := range files {
		row := IngestRow{File: file}
		content, err := os.ReadFile(file)
		if err == nil {
			var fp casefile.Fingerprint
			fp, err = q.enqueue(ctx, filepath.Base(file), content, knownID)
			row.Fingerprint = fp.String()
		}
		if err != nil {
			row.Status, row.Error = statusFailed, err.Error()
		} else {
			row.Status = statusQueued
		}
		view.Results = append(view.Results, row)
	}
	return view, nil
}

//Personal.AI order the ending
