package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
)

func newTestRepo(t *testing.T) *PebbleRepository {
	t.Helper()
	db, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPebbleRepository(db)
}

func sampleIdentity(handle string) domain.Identity {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.Identity{
		ID:           "id-" + handle,
		Handle:       handle,
		PasswordHash: "hash",
		PublicKey:    "key-1",
		Status:       domain.StatusActive,
		KeyRotatedAt: now,
		CreatedAt:    now,
	}
}

func TestPebbleRepository_CreateAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleIdentity("alice")))
	require.ErrorIs(t, repo.Create(ctx, sampleIdentity("alice")), commonerrors.ErrHandleTaken)

	got, err := repo.FindByHandle(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "key-1", got.PublicKey)
	assert.False(t, got.HasRecoveryKey())

	_, err = repo.FindByHandle(ctx, "bob")
	require.ErrorIs(t, err, commonerrors.ErrUserNotFound)
}

func TestPebbleRepository_SetRecoveryKeyOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleIdentity("alice")))

	require.NoError(t, repo.SetRecoveryKey(ctx, "alice", "rk"))
	require.ErrorIs(t, repo.SetRecoveryKey(ctx, "alice", "rk2"), commonerrors.ErrRecoveryKeyAlreadySet)
	require.ErrorIs(t, repo.SetRecoveryKey(ctx, "bob", "rk"), commonerrors.ErrUserNotFound)

	got, err := repo.FindByHandle(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "rk", got.RecoveryPublicKey)
}

func TestPebbleRepository_RotateKeyCompareAndSwap(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleIdentity("alice")))
	rotatedAt := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RotateKey(ctx, "alice", "key-1", "key-2", rotatedAt))
	require.ErrorIs(t, repo.RotateKey(ctx, "alice", "key-1", "key-3", rotatedAt), commonerrors.ErrRotationConflict)

	got, err := repo.FindByHandle(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "key-2", got.PublicKey)
	assert.True(t, got.KeyRotatedAt.Equal(rotatedAt))
}

func TestPebbleRepository_Revoke(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleIdentity("alice")))
	first := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Revoke(ctx, "alice", first))
	require.NoError(t, repo.Revoke(ctx, "alice", first.Add(time.Hour)))
	require.ErrorIs(t, repo.Revoke(ctx, "bob", first), commonerrors.ErrUserNotFound)

	got, err := repo.FindByHandle(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())
	require.NotNil(t, got.RevokedAt)
	assert.True(t, got.RevokedAt.Equal(first))

	require.ErrorIs(t, repo.RotateKey(ctx, "alice", "key-1", "key-2", first), commonerrors.ErrRotationConflict)
}
