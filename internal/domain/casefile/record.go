// Package casefile models stored legal cases: their content fingerprint, the
// extracted metadata and facts, the retrieval embeddings, and the persistence
// ports the application layer depends on.
package casefile

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/common"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprint
// ─────────────────────────────────────────────────────────────────────────────

// Fingerprint is the hex-encoded SHA-256 of a case document's raw bytes.  One
// fingerprint identifies at most one stored case.
type Fingerprint string

// ComputeFingerprint hashes raw document bytes.
func ComputeFingerprint(raw []byte) Fingerprint {
	sum := sha256.Sum256(raw)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// FingerprintReader hashes a document stream.
func FingerprintReader(r io.Reader) (Fingerprint, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeIngestionFailed, "failed to read document for fingerprinting")
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// ParseFingerprint normalises and validates a fingerprint string.
func ParseFingerprint(s string) (Fingerprint, error) {
	fp := Fingerprint(strings.ToLower(strings.TrimSpace(s)))
	return fp, fp.Validate()
}

// Validate checks that the fingerprint is 64 hex characters.
func (f Fingerprint) Validate() error {
	if len(f) != sha256.Size*2 {
		return errors.InvalidParam("fingerprint must be 64 hex characters").WithDetail(string(f))
	}
	if _, err := hex.DecodeString(string(f)); err != nil {
		return errors.InvalidParam("fingerprint is not hex encoded").WithDetail(string(f))
	}
	return nil
}

func (f Fingerprint) String() string { return string(f) }

// Short returns the first 12 characters, for logs.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// ─────────────────────────────────────────────────────────────────────────────
// Embeddings
// ─────────────────────────────────────────────────────────────────────────────

// VectorField selects which embedding a similarity query runs against.
type VectorField string

const (
	FieldFacts    VectorField = "facts"
	FieldMetadata VectorField = "metadata"
)

// IsValid reports whether the field is known.
func (f VectorField) IsValid() bool {
	return f == FieldFacts || f == FieldMetadata
}

// EmbeddingPair holds the two retrieval vectors of a case.
type EmbeddingPair struct {
	Facts    []float32 `json:"facts_vector,omitempty"`
	Metadata []float32 `json:"metadata_vector,omitempty"`
}

// Get returns the vector for field.
func (p EmbeddingPair) Get(field VectorField) []float32 {
	switch field {
	case FieldFacts:
		return p.Facts
	case FieldMetadata:
		return p.Metadata
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CaseRecord
// ─────────────────────────────────────────────────────────────────────────────

// CaseRecord is a stored, classified case.
type CaseRecord struct {
	ID                 string                   `json:"id"`
	Fingerprint        Fingerprint              `json:"fingerprint"`
	SourceName         string                   `json:"source_name"`
	Metadata           legalcase.CaseMetadata   `json:"metadata"`
	JudgmentDate       *time.Time               `json:"judgment_date,omitempty"`
	TemplateID         string                   `json:"template_id"`
	TemplateConfidence float64                  `json:"template_confidence"`
	Facts              legalcase.ExtractedFacts `json:"facts"`
	Embeddings         EmbeddingPair            `json:"-"`
	CreatedAt          time.Time                `json:"created_at"`
}

// NewCaseRecord builds a record with a fresh id.
func NewCaseRecord(fp Fingerprint, sourceName string, meta legalcase.CaseMetadata) *CaseRecord {
	rec := &CaseRecord{
		ID:          string(common.NewID()),
		Fingerprint: fp,
		SourceName:  sourceName,
		Metadata:    meta,
		CreatedAt:   time.Now().UTC(),
	}
	if d, ok := meta.ParsedDate(); ok {
		rec.JudgmentDate = &d
	}
	return rec
}

// knownIDSpace namespaces record ids derived from external identifiers.
var knownIDSpace = uuid.MustParse("6f1c3b0e-9a4d-5e27-8c1f-2d7b4a9e0c35")

// RecordID maps an external case identifier (a docket or citation such as
// "Crl.A. 123/2019") to the record id it is stored under.  Identifiers that
// are already record ids pass through; anything else hashes to a name-based
// UUID after case and whitespace folding.  Empty input yields "".
func RecordID(knownID string) string {
	known := strings.Join(strings.Fields(knownID), " ")
	if known == "" {
		return ""
	}
	if id, err := uuid.Parse(known); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(knownIDSpace, []byte(strings.ToUpper(known))).String()
}

// FactsText is the text embedded into the facts vector and sent to the
// reranker: the facts summary.
func (r *CaseRecord) FactsText() string {
	return strings.TrimSpace(r.Facts.Summary)
}

// MetadataText is the text embedded into the metadata vector.
func (r *CaseRecord) MetadataText() string {
	return r.Metadata.QueryText()
}

// TextFor returns the text that backs the given vector field.
func (r *CaseRecord) TextFor(field VectorField) string {
	if field == FieldMetadata {
		return r.MetadataText()
	}
	return r.FactsText()
}

// Validate checks the invariants required before persisting.
func (r *CaseRecord) Validate() error {
	if r.ID == "" {
		return errors.InvalidParam("case id is required")
	}
	if err := r.Fingerprint.Validate(); err != nil {
		return err
	}
	if r.TemplateID == "" {
		return errors.InvalidParam("template id is required").WithDetail(r.ID)
	}
	return nil
}

//Personal.AI order the ending
