package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/domain"
)

func newTestStore(t *testing.T, limits Limits) *PebbleStore {
	t.Helper()
	db, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPebbleStore(db, limits)
}

func msg(id, from, to string) domain.Message {
	return domain.Message{
		ID:        id,
		From:      from,
		To:        to,
		Text:      "text " + id,
		Consent:   domain.ConsentAccepted,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPebbleStore_SaveIndexesAllLists(t *testing.T) {
	store := newTestStore(t, Limits{Inbox: 10, Outbox: 10, Thread: 10})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, msg("m1", "alice", "bob")))
	require.NoError(t, store.Save(ctx, msg("m2", "bob", "alice")))

	inbox, err := store.List(ctx, domain.InboxKey("bob"), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, inbox)

	outbox, err := store.List(ctx, domain.OutboxKey("alice"), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, outbox)

	thread, err := store.List(ctx, domain.ThreadKey("bob", "alice"), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1"}, thread)

	got, ok, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "text m1", got.Text)
}

func TestPebbleStore_DuplicateIDIndexesNothing(t *testing.T) {
	store := newTestStore(t, Limits{Inbox: 10, Outbox: 10, Thread: 10})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, msg("m1", "alice", "bob")))
	require.ErrorIs(t, store.Save(ctx, msg("m1", "alice", "carol")), ErrDuplicateID)

	inbox, err := store.List(ctx, domain.InboxKey("carol"), 10)
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestPebbleStore_TrimsNewestFirst(t *testing.T) {
	store := newTestStore(t, Limits{Inbox: 3, Outbox: 5, Thread: 2})
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		require.NoError(t, store.Save(ctx, msg(fmt.Sprintf("m%d", i), "alice", "bob")))
	}

	inbox, err := store.List(ctx, domain.InboxKey("bob"), 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"m6", "m5", "m4"}, inbox)

	outbox, err := store.List(ctx, domain.OutboxKey("alice"), 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"m6", "m5", "m4", "m3", "m2"}, outbox)

	thread, err := store.List(ctx, domain.ThreadKey("alice", "bob"), 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"m6", "m5"}, thread)

	limited, err := store.List(ctx, domain.OutboxKey("alice"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m6", "m5"}, limited)
}

func TestPebbleStore_ListKeysDoNotCollide(t *testing.T) {
	store := newTestStore(t, Limits{Inbox: 10, Outbox: 10, Thread: 10})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, msg("m1", "carol", "bob")))
	require.NoError(t, store.Save(ctx, msg("m2", "carol", "bobby")))

	inbox, err := store.List(ctx, domain.InboxKey("bob"), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, inbox)
}

func TestPebbleStore_MarkRead(t *testing.T) {
	store := newTestStore(t, Limits{Inbox: 10, Outbox: 10, Thread: 10})
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, msg("m1", "alice", "bob")))
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.MarkRead(ctx, []string{"m1", "missing"}, at))
	require.NoError(t, store.MarkRead(ctx, []string{"m1"}, at.Add(time.Hour)))

	msgs, err := store.GetMany(ctx, []string{"missing", "m1"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Read)
	require.NotNil(t, msgs[0].ReadAt)
	assert.True(t, msgs[0].ReadAt.Equal(at))
}
