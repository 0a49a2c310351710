package ttlstore

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
)

func newTestStore(t *testing.T) (*PebbleStore, *clock.MockClock) {
	t.Helper()
	db, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	clk := clock.NewMockClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	return NewPebbleStore(db, clk), clk
}

func TestIncrWithTTL_FixedWindow(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	n, err := store.IncrWithTTL(ctx, RateKey("alice"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	clk.Advance(59 * time.Minute)
	n, err = store.IncrWithTTL(ctx, RateKey("alice"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// the second increment must not have extended the window
	clk.Advance(2 * time.Minute)
	n, err = store.IncrWithTTL(ctx, RateKey("alice"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIncrWithTTL_ConcurrentCountsAreDistinct(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	const workers = 20

	var wg sync.WaitGroup
	results := make([]int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := store.IncrWithTTL(ctx, "counter", time.Minute)
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a] < results[b] })
	for i, n := range results {
		assert.Equal(t, int64(i+1), n)
	}
}

func TestSetIfAbsent(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	ok, err := store.SetIfAbsent(ctx, NonceKey("n-1"), 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetIfAbsent(ctx, NonceKey("n-1"), 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(11 * time.Minute)
	ok, err = store.SetIfAbsent(ctx, NonceKey("n-1"), 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetIfAbsent_SingleWinnerUnderContention(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.SetIfAbsent(ctx, NonceKey("shared"), time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestDeleteExpired(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	_, err := store.IncrWithTTL(ctx, "short", time.Minute)
	require.NoError(t, err)
	_, err = store.SetIfAbsent(ctx, "long", time.Hour)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	deleted, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	ok, err := store.SetIfAbsent(ctx, "long", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
