package casefile

import (
	"context"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// MatchMethod records how a duplicate was detected.
type MatchMethod string

const (
	MatchContentHash MatchMethod = "CONTENT_HASH"
	MatchIdentifier  MatchMethod = "IDENTIFIER"
	MatchNew         MatchMethod = "NEW"
)

// Confidence attached to each duplicate decision.
const (
	ContentHashConfidence = 1.0
	IdentifierConfidence  = 0.95
)

// DuplicateStatus is the outcome of a duplicate check.
type DuplicateStatus struct {
	IsDuplicate bool        `json:"is_duplicate"`
	ExistingID  string      `json:"existing_id,omitempty"`
	Method      MatchMethod `json:"match_method"`
	Confidence  float64     `json:"confidence"`
	// Degraded is set when a storage fault forced the fail-open answer.
	Degraded bool `json:"degraded,omitempty"`
}

// NewStatus is the "not a duplicate" answer.
func NewStatus() DuplicateStatus {
	return DuplicateStatus{Method: MatchNew}
}

// DuplicateResolver decides whether a document is already stored, first by
// content fingerprint and then by a caller-supplied identifier.
type DuplicateResolver struct {
	fingerprints FingerprintLookup
	identifiers  IdentifierLookup
	logger       logging.Logger
}

// NewDuplicateResolver builds a resolver.  identifiers may be nil, in which
// case only the fingerprint is consulted.
func NewDuplicateResolver(fingerprints FingerprintLookup, identifiers IdentifierLookup, logger logging.Logger) *DuplicateResolver {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DuplicateResolver{fingerprints: fingerprints, identifiers: identifiers, logger: logger}
}

// Check looks fp up, then the record id derived from knownID when non-empty.  Storage faults never
// surface as errors: they are logged and the document is reported as new so
// ingestion keeps flowing.  The write path stays idempotent because Put
// refuses a second row for the same fingerprint.
func (r *DuplicateResolver) Check(ctx context.Context, fp Fingerprint, knownID string) DuplicateStatus {
	rec, err := r.fingerprints.GetByFingerprint(ctx, fp)
	switch {
	case err == nil && rec != nil:
		r.logger.Info("duplicate detected by content hash",
			logging.String("fingerprint", fp.Short()),
			logging.String("existing_id", rec.ID))
		return DuplicateStatus{IsDuplicate: true, ExistingID: rec.ID, Method: MatchContentHash, Confidence: ContentHashConfidence}
	case err != nil && !errors.IsNotFound(err):
		return r.failOpen(err, fp, "fingerprint")
	}

	if id := RecordID(knownID); id != "" && r.identifiers != nil {
		rec, err = r.identifiers.GetByID(ctx, id)
		switch {
		case err == nil && rec != nil:
			r.logger.Info("duplicate detected by identifier",
				logging.String("fingerprint", fp.Short()),
				logging.String("existing_id", rec.ID))
			return DuplicateStatus{IsDuplicate: true, ExistingID: rec.ID, Method: MatchIdentifier, Confidence: IdentifierConfidence}
		case err != nil && !errors.IsNotFound(err):
			return r.failOpen(err, fp, "identifier")
		}
	}

	r.logger.Debug("no duplicate found", logging.String("fingerprint", fp.Short()))
	return NewStatus()
}

func (r *DuplicateResolver) failOpen(err error, fp Fingerprint, lookup string) DuplicateStatus {
	fault := errors.Wrap(err, errors.ErrCodeStorageFault, lookup+" lookup failed")
	r.logger.WithError(fault).Warn("duplicate check degraded, treating document as new",
		logging.String("fingerprint", fp.Short()),
		logging.String("lookup", lookup))
	st := NewStatus()
	st.Degraded = true
	return st
}

//Personal.AI order the ending
