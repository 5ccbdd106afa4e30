// Package ingestion implements the case write path: fingerprinting, the
// duplicate gate, metadata and fact extraction against the selected
// template, embedding, persistence and event publication.  It also hosts the
// batch ingestor fed from Kafka.
package ingestion

import (
	"context"
	"time"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/domain/ontology"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// ---------------------------------------------------------------------------
// Port interfaces
// ---------------------------------------------------------------------------

// TextSource turns raw document bytes into plain text.  PDF conversion lives
// behind this port.
type TextSource interface {
	Text(ctx context.Context, raw []byte, name string) (string, error)
}

// Extractor pulls structured data out of case text.
type Extractor interface {
	ExtractMetadata(ctx context.Context, text, sourceName string) (legalcase.CaseMetadata, error)
	Summarize(ctx context.Context, text string) (string, error)
	// ExtractFacts fills the template's fields grouped by tier.
	ExtractFacts(ctx context.Context, text string, tmpl *ontology.Template) (legalcase.ExtractedFacts, error)
}

// DocumentStore keeps the raw bytes of ingested documents and uploads.
type DocumentStore interface {
	PutDocument(ctx context.Context, key string, data []byte, contentType string) error
	GetDocument(ctx context.Context, key string) ([]byte, error)
	DeleteDocument(ctx context.Context, key string) error
}

// TextIndexer keeps a full-text copy of stored cases for catalogue search.
type TextIndexer interface {
	IndexCase(ctx context.Context, rec *casefile.CaseRecord) error
}

// EventPublisher announces write-path outcomes.
type EventPublisher interface {
	PublishCaseEvent(ctx context.Context, evt *CaseEvent) error
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Event types.
const (
	EventCaseIngested  = "case.ingested"
	EventCaseDuplicate = "case.duplicate"
)

// CaseEvent is published after every ingestion decision.
type CaseEvent struct {
	Type        string    `json:"type"`
	CaseID      string    `json:"case_id"`
	Fingerprint string    `json:"fingerprint"`
	SourceName  string    `json:"source_name"`
	TemplateID  string    `json:"template_id,omitempty"`
	MatchMethod string    `json:"match_method,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// DocumentKey is the object key of an ingested case's raw bytes.
func DocumentKey(fingerprint string) string { return "cases/" + fingerprint }

//Personal.AI order the ending
