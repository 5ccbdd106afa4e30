// Package session runs asynchronous "find similar cases" searches for
// uploaded documents.  An upload is analysed like an ingested case but never
// stored; the reranked candidate list is cached on the session so results
// can be re-filtered with different top_k and threshold values until the
// session expires.
package session

import (
	"context"
	"time"

	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// Status is the coarse lifecycle state of a session.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Phase is the processing step a session is in.
type Phase string

const (
	PhaseUploaded        Phase = "uploaded"
	PhaseExtracting      Phase = "extracting"
	PhaseSummarizing     Phase = "summarizing"
	PhaseExtractingFacts Phase = "extracting_facts"
	PhaseEmbedding       Phase = "embedding"
	PhaseSearching       Phase = "searching"
	PhaseCompleted       Phase = "completed"
	PhaseFailed          Phase = "failed"
)

var phaseProgress = map[Phase]int{
	PhaseUploaded:        0,
	PhaseExtracting:      10,
	PhaseSummarizing:     30,
	PhaseExtractingFacts: 55,
	PhaseEmbedding:       75,
	PhaseSearching:       90,
	PhaseCompleted:       100,
}

// Progress returns the completion percentage of a phase.  A failed session
// keeps the progress of the phase it failed in, so PhaseFailed has none.
func (p Phase) Progress() (int, bool) {
	v, ok := phaseProgress[p]
	return v, ok
}

// Session is one search over an uploaded document.
type Session struct {
	ID          string                    `json:"session_id"`
	Filename    string                    `json:"filename"`
	FileSize    int                       `json:"file_size"`
	Fingerprint string                    `json:"file_hash"`
	Status      Status                    `json:"status"`
	Phase       Phase                     `json:"current_phase"`
	Progress    int                       `json:"progress_percentage"`
	Error       string                    `json:"error,omitempty"`
	Options     similarity.Options        `json:"search_params"`
	Metadata    *legalcase.CaseMetadata   `json:"metadata,omitempty"`
	Facts       *legalcase.ExtractedFacts `json:"facts,omitempty"`
	TemplateID  string                    `json:"template_id,omitempty"`
	Duplicate   casefile.DuplicateStatus  `json:"duplicate"`
	Ranking     *similarity.Ranking       `json:"ranking,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	ExpiresAt   time.Time                 `json:"expires_at"`
}

// Done reports whether processing has finished either way.
func (s *Session) Done() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// enter moves the session into phase p.
func (s *Session) enter(p Phase, now time.Time) {
	s.Phase = p
	if v, ok := p.Progress(); ok {
		s.Progress = v
	}
	switch p {
	case PhaseUploaded:
		s.Status = StatusUploaded
	case PhaseCompleted:
		s.Status = StatusCompleted
	case PhaseFailed:
		s.Status = StatusFailed
	default:
		s.Status = StatusProcessing
	}
	s.UpdatedAt = now
}

// Store persists sessions until they expire.
type Store interface {
	// Save writes s, replacing any previous version.  ttl <= 0 means the
	// store default.
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	// Get returns a SessionNotFound error for unknown or expired ids.
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// CountActive counts sessions that have not expired.
	CountActive(ctx context.Context) (int64, error)
}

//Personal.AI order the ending
