package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/turtacn/casemind/pkg/errors"
)

// MemoryStore keeps sessions in process.  It serves the CLI and tests; the
// API server uses the Redis store so sessions survive restarts and are shared
// between replicas.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore.  now may be nil.
func NewMemoryStore(defaultTTL time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), defaultTTL: defaultTTL, now: now}
}

// Save stores a serialised copy so later mutations by the caller are not
// visible to readers.
func (m *MemoryStore) Save(_ context.Context, s *Session, ttl time.Duration) error {
	if s == nil || s.ID == "" {
		return apperrors.InvalidParam("session id is required")
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	data, err := json.Marshal(s)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "encode session")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s.ID] = memoryEntry{data: data, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok && !m.now().Before(e.expiresAt) {
		delete(m.entries, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeSessionNotFound, "search session not found").WithDetail(id)
	}
	var s Session
	if err := json.Unmarshal(e.data, &s); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "decode session")
	}
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) CountActive(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for id, e := range m.entries {
		if now.Before(e.expiresAt) {
			n++
			continue
		}
		delete(m.entries, id)
	}
	return n, nil
}

//Personal.AI order the ending
