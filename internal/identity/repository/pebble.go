package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
)

const keyspace = "identity"

type PebbleRepository struct {
	db *kv.DB
	mu sync.Mutex
}

func NewPebbleRepository(db *kv.DB) *PebbleRepository {
	return &PebbleRepository{db: db}
}

func identityKey(handle string) []byte {
	return []byte("idn:" + handle)
}

func (r *PebbleRepository) load(ctx context.Context, handle string) (domain.Identity, error) {
	var identity domain.Identity
	ok, err := r.db.GetJSON(ctx, identityKey(handle), keyspace, &identity)
	if err != nil {
		return domain.Identity{}, err
	}
	if !ok {
		return domain.Identity{}, commonerrors.ErrUserNotFound
	}
	return identity, nil
}

func (r *PebbleRepository) store(ctx context.Context, identity domain.Identity) error {
	b := r.db.NewBatch()
	if err := kv.SetJSON(b, identityKey(identity.Handle), identity); err != nil {
		b.Close()
		return err
	}
	return r.db.Commit(ctx, b, keyspace)
}

// update applies fn to the stored identity under the repository lock.
func (r *PebbleRepository) update(ctx context.Context, handle string, fn func(*domain.Identity) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, err := r.load(ctx, handle)
	if err != nil {
		return err
	}
	if err := fn(&identity); err != nil {
		return err
	}
	return r.store(ctx, identity)
}

func (r *PebbleRepository) Create(ctx context.Context, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.load(ctx, identity.Handle)
	if err == nil {
		return commonerrors.ErrHandleTaken
	}
	if !errors.Is(err, commonerrors.ErrUserNotFound) {
		return err
	}
	return r.store(ctx, identity)
}

func (r *PebbleRepository) FindByHandle(ctx context.Context, handle string) (domain.Identity, error) {
	return r.load(ctx, handle)
}

func (r *PebbleRepository) SetRecoveryKey(ctx context.Context, handle, recoveryKey string) error {
	return r.update(ctx, handle, func(identity *domain.Identity) error {
		if identity.HasRecoveryKey() {
			return commonerrors.ErrRecoveryKeyAlreadySet
		}
		identity.RecoveryPublicKey = recoveryKey
		return nil
	})
}

func (r *PebbleRepository) Revoke(ctx context.Context, handle string, at time.Time) error {
	return r.update(ctx, handle, func(identity *domain.Identity) error {
		identity.Status = domain.StatusRevoked
		if identity.RevokedAt == nil {
			revokedAt := at.UTC()
			identity.RevokedAt = &revokedAt
		}
		return nil
	})
}

func (r *PebbleRepository) RotateKey(ctx context.Context, handle, oldKey, newKey string, rotatedAt time.Time) error {
	return r.update(ctx, handle, func(identity *domain.Identity) error {
		if identity.PublicKey != oldKey || identity.IsRevoked() {
			return commonerrors.ErrRotationConflict
		}
		identity.PublicKey = newKey
		identity.KeyRotatedAt = rotatedAt.UTC()
		return nil
	})
}
