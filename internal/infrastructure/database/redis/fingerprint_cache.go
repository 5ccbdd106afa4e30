package redis

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/turtacn/casemind/internal/domain/casefile"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

// DefaultFingerprintTTL bounds how long a fingerprint hit is served from the
// cache.
const DefaultFingerprintTTL = 6 * time.Hour

// FingerprintCache is a read-through cache in front of a
// casefile.FingerprintLookup.  Only hits are cached: a stored case never
// changes its fingerprint, while a miss can turn into a hit on the next
// ingest.  Cache faults fall through to the wrapped lookup.  Cached records
// carry no embeddings.
type FingerprintCache struct {
	inner  casefile.FingerprintLookup
	cache  Cache
	ttl    time.Duration
	logger logging.Logger
}

var _ casefile.FingerprintLookup = (*FingerprintCache)(nil)

// NewFingerprintCache wraps inner.  ttl <= 0 uses DefaultFingerprintTTL.
func NewFingerprintCache(inner casefile.FingerprintLookup, cache Cache, ttl time.Duration, log logging.Logger) *FingerprintCache {
	if ttl <= 0 {
		ttl = DefaultFingerprintTTL
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &FingerprintCache{inner: inner, cache: cache, ttl: ttl, logger: log.Named("fingerprint_cache")}
}

func fingerprintKey(fp casefile.Fingerprint) string {
	return "fp:" + fp.String()
}

// GetByFingerprint serves from the cache and loads through the wrapped
// lookup on a miss.  Concurrent misses for one fingerprint share a load.
func (f *FingerprintCache) GetByFingerprint(ctx context.Context, fp casefile.Fingerprint) (*casefile.CaseRecord, error) {
	var rec casefile.CaseRecord
	err := f.cache.GetOrSet(ctx, fingerprintKey(fp), &rec, f.ttl, func(ctx context.Context) (interface{}, error) {
		return f.inner.GetByFingerprint(ctx, fp)
	})
	switch {
	case err == nil:
		return &rec, nil
	case stderrors.Is(err, casefile.ErrCaseNotFound):
		return nil, err
	case errors.IsCode(err, errors.ErrCodeCacheError), errors.IsCode(err, errors.ErrCodeSerialization):
		f.logger.Warn("fingerprint cache unavailable, reading through",
			logging.String("fingerprint", fp.Short()), logging.Err(err))
		return f.inner.GetByFingerprint(ctx, fp)
	default:
		return nil, err
	}
}

// Forget drops the cached entry for fp.
func (f *FingerprintCache) Forget(ctx context.Context, fp casefile.Fingerprint) error {
	return f.cache.Delete(ctx, fingerprintKey(fp))
}

//Personal.AI order the ending
