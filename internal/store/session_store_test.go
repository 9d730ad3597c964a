package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/leadstream/internal/mapping"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client)
}

func TestSessionStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := &SessionSnapshot{
		ID:       "sess-1",
		FileName: "leads.csv",
		Columns: []mapping.ColumnMapping{
			{Index: 0, Header: "email", Token: "email", Field: mapping.FieldEmail,
				Tier: mapping.TierConfirmed, Score: 1.0, State: mapping.StateConfirmed},
		},
	}
	require.NoError(t, s.SaveSession(ctx, snap))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "leads.csv", got.FileName)
	require.Len(t, got.Columns, 1)
	assert.Equal(t, mapping.FieldEmail, got.Columns[0].Field)
}

func TestSessionStoreNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = s.GetProgress(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestSessionStoreProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Progress{SessionID: "sess-1", Status: "ingesting", RowsRead: 500, Imported: 498, Malformed: 2}
	require.NoError(t, s.SaveProgress(ctx, p))
	assert.False(t, p.UpdatedAt.IsZero())

	got, err := s.GetProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 498, got.Imported)
	assert.Equal(t, 2, got.Malformed)
}

func TestSessionStoreDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, &SessionSnapshot{ID: "sess-1"}))
	require.NoError(t, s.SaveProgress(ctx, &Progress{SessionID: "sess-1"}))
	require.NoError(t, s.DeleteSession(ctx, "sess-1"))

	_, err := s.GetSession(ctx, "sess-1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}
