package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/db"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
)

type Repository interface {
	Create(ctx context.Context, identity domain.Identity) error
	FindByHandle(ctx context.Context, handle string) (domain.Identity, error)
	SetRecoveryKey(ctx context.Context, handle, recoveryKey string) error
	Revoke(ctx context.Context, handle string, at time.Time) error
	// RotateKey swaps the signing key only if it still equals oldKey and the
	// identity is active; otherwise it returns ErrRotationConflict.
	RotateKey(ctx context.Context, handle, oldKey, newKey string, rotatedAt time.Time) error
}

const table = "identities"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Create(ctx context.Context, identity domain.Identity) error {
	start := time.Now()
	var recovery *string
	if identity.RecoveryPublicKey != "" {
		recovery = &identity.RecoveryPublicKey
	}
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO identities (id, handle, password_hash, public_key, recovery_public_key, status, key_rotated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		identity.ID,
		identity.Handle,
		identity.PasswordHash,
		identity.PublicKey,
		recovery,
		string(identity.Status),
		identity.KeyRotatedAt,
		identity.CreatedAt,
	)
	if err != nil && db.IsUniqueViolation(err) {
		return commonerrors.ErrHandleTaken
	}
	return db.HandleExecError(err, "create identity", table, start)
}

func (r *PgRepository) FindByHandle(ctx context.Context, handle string) (domain.Identity, error) {
	start := time.Now()
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, handle, password_hash, public_key, COALESCE(recovery_public_key, ''), status, key_rotated_at, created_at, revoked_at
		 FROM identities WHERE handle = $1`,
		handle,
	)

	var identity domain.Identity
	var status string
	err := row.Scan(
		&identity.ID,
		&identity.Handle,
		&identity.PasswordHash,
		&identity.PublicKey,
		&identity.RecoveryPublicKey,
		&status,
		&identity.KeyRotatedAt,
		&identity.CreatedAt,
		&identity.RevokedAt,
	)
	if err := db.HandleQueryError(err, commonerrors.ErrUserNotFound, "find identity", table, start); err != nil {
		return domain.Identity{}, err
	}
	identity.Status = domain.Status(status)
	identity.KeyRotatedAt = identity.KeyRotatedAt.UTC()
	identity.CreatedAt = identity.CreatedAt.UTC()
	return identity, nil
}

func (r *PgRepository) SetRecoveryKey(ctx context.Context, handle, recoveryKey string) error {
	start := time.Now()
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE identities SET recovery_public_key = $2 WHERE handle = $1 AND recovery_public_key IS NULL`,
		handle,
		recoveryKey,
	)
	if err := db.HandleExecError(err, "set recovery key", table, start); err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByHandle(ctx, handle); err != nil {
		return err
	}
	return commonerrors.ErrRecoveryKeyAlreadySet
}

func (r *PgRepository) Revoke(ctx context.Context, handle string, at time.Time) error {
	start := time.Now()
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE identities SET status = 'revoked', revoked_at = COALESCE(revoked_at, $2) WHERE handle = $1`,
		handle,
		at,
	)
	if err := db.HandleExecError(err, "revoke identity", table, start); err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return commonerrors.ErrUserNotFound
	}
	return nil
}

func (r *PgRepository) RotateKey(ctx context.Context, handle, oldKey, newKey string, rotatedAt time.Time) error {
	start := time.Now()
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE identities SET public_key = $3, key_rotated_at = $4
		 WHERE handle = $1 AND public_key = $2 AND status = 'active'`,
		handle,
		oldKey,
		newKey,
		rotatedAt,
	)
	if err := db.HandleExecError(err, "rotate identity key", table, start); err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return commonerrors.ErrRotationConflict
	}
	return nil
}
