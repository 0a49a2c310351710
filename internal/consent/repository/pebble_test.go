package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/consent/domain"
)

func newTestRepo(t *testing.T) *PebbleRepository {
	t.Helper()
	db, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPebbleRepository(db)
}

func TestPebbleRepository_GetMissingIsNone(t *testing.T) {
	repo := newTestRepo(t)

	record, err := repo.Get(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.StateNone, record.State)
	assert.Equal(t, "alice", record.From)
	assert.Equal(t, "bob", record.To)
}

func TestPebbleRepository_DirectedPairs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(ctx, domain.Record{From: "alice", To: "bob", State: domain.StateBlocked, UpdatedAt: now}))

	forward, err := repo.Get(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.StateBlocked, forward.State)

	backward, err := repo.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StateNone, backward.State)
}

func TestPebbleRepository_ListByRecipient(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	put := func(from, to string, state domain.State, offset time.Duration) {
		at := base.Add(offset)
		require.NoError(t, repo.Put(ctx, domain.Record{From: from, To: to, State: state, RequestedAt: &at, UpdatedAt: at}))
	}
	put("carol", "bob", domain.StatePending, time.Minute)
	put("dave", "bob", domain.StatePending, 2*time.Minute)
	put("erin", "bob", domain.StateAccepted, 3*time.Minute)
	put("alice", "bobby", domain.StatePending, 4*time.Minute)

	pending, err := repo.ListByRecipient(ctx, "bob", domain.StatePending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "dave", pending[0].From)
	assert.Equal(t, "carol", pending[1].From)

	limited, err := repo.ListByRecipient(ctx, "bob", domain.StatePending, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
