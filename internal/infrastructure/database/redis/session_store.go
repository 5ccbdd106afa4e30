package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/casemind/internal/application/session"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
)

const sessionKeyPrefix = "session:"

// SessionStore keeps search sessions as JSON strings that expire with the
// session TTL.  It implements session.Store.
type SessionStore struct {
	client     *Client
	prefix     string
	defaultTTL time.Duration
	logger     logging.Logger
}

var _ session.Store = (*SessionStore)(nil)

// NewSessionStore creates a store whose keys live under prefix + "session:".
func NewSessionStore(client *Client, prefix string, defaultTTL time.Duration, log logging.Logger) *SessionStore {
	if defaultTTL <= 0 {
		defaultTTL = session.DefaultTTL
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &SessionStore{client: client, prefix: prefix + sessionKeyPrefix, defaultTTL: defaultTTL, logger: log.Named("session_store")}
}

func (s *SessionStore) key(id string) string {
	return s.prefix + id
}

func (s *SessionStore) Save(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	if sess == nil || sess.ID == "" {
		return errors.InvalidParam("session id is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode session")
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to save session")
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.New(errors.ErrCodeSessionNotFound, "search session not found").WithDetail(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to load session")
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode session")
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete session")
	}
	return nil
}

// CountActive counts session keys.  Expired keys are already gone.
func (s *SessionStore) CountActive(ctx context.Context) (int64, error) {
	var (
		n      int64
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 200).Result()
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to count sessions")
		}
		n += int64(len(keys))
		if cursor = next; cursor == 0 {
			return n, nil
		}
	}
}

//Personal.AI order the ending
