package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/casemind/internal/application/session"
	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/casemind/pkg/errors"
)

func TestSessionStore_SaveGetDelete(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewSessionStore(client, "casemind:", time.Hour, logging.NewNopLogger())
	ctx := context.Background()

	sess := &session.Session{
		ID:       "s-1",
		Filename: "judgment.pdf",
		Status:   session.StatusProcessing,
		Phase:    session.PhaseSummarizing,
		Progress: 30,
	}
	require.NoError(t, store.Save(ctx, sess, 0))
	assert.Equal(t, time.Hour, mr.TTL("casemind:session:s-1"))

	got, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseSummarizing, got.Phase)
	assert.Equal(t, 30, got.Progress)

	n, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Delete(ctx, "s-1"))
	_, err = store.Get(ctx, "s-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSessionNotFound))
}

func TestSessionStore_Expiry(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewSessionStore(client, "", 0, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &session.Session{ID: "short"}, time.Minute))
	require.NoError(t, store.Save(ctx, &session.Session{ID: "long"}, 0))
	assert.Equal(t, session.DefaultTTL, mr.TTL("session:long"))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "short")
	assert.True(t, pkgerrors.IsNotFound(err))
	n, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionStore_Errors(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewSessionStore(client, "", time.Hour, nil)
	ctx := context.Background()

	assert.True(t, pkgerrors.IsCode(store.Save(ctx, &session.Session{}, 0), pkgerrors.ErrCodeBadRequest))

	require.NoError(t, mr.Set("session:bad", "{not json"))
	_, err := store.Get(ctx, "bad")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))

	mr.SetError("ERR unavailable")
	_, err = store.CountActive(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

//Personal.AI order the ending
