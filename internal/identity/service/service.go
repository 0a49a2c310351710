package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	identityrepo "github.com/AlibekovAA/dh-trust/backend/internal/identity/repository"
)

type IdentityService struct {
	repo  identityrepo.Repository
	clock clock.Clock
	log   *logger.Logger
}

func NewIdentityService(repo identityrepo.Repository, clk clock.Clock, log *logger.Logger) *IdentityService {
	return &IdentityService{
		repo:  repo,
		clock: clk,
		log:   log,
	}
}

// View is the public projection of an identity.
type View struct {
	Handle         string `json:"handle"`
	PublicKey      string `json:"public_key"`
	Fingerprint    string `json:"fingerprint"`
	Status         string `json:"status"`
	KeyRotatedAt   int64  `json:"key_rotated_at"`
	HasRecoveryKey bool   `json:"has_recovery_key"`
}

func NewView(identity identitydomain.Identity) View {
	fingerprint := ""
	if key, err := commoncrypto.ParsePublicKey(identity.PublicKey); err == nil {
		fingerprint = commoncrypto.Fingerprint(key)
	}
	return View{
		Handle:         identity.Handle,
		PublicKey:      identity.PublicKey,
		Fingerprint:    fingerprint,
		Status:         string(identity.Status),
		KeyRotatedAt:   identity.KeyRotatedAt.UnixMilli(),
		HasRecoveryKey: identity.HasRecoveryKey(),
	}
}

func (s *IdentityService) Get(ctx context.Context, rawHandle string) (identitydomain.Identity, error) {
	handle, err := identitydomain.NormalizeHandle(rawHandle)
	if err != nil {
		return identitydomain.Identity{}, err
	}

	identity, err := s.repo.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, commonerrors.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"handle": handle,
				"action": "get_identity_not_found",
			}).Debug("identity not found")
			return identitydomain.Identity{}, err
		}
		s.log.WithFields(ctx, logger.Fields{
			"handle": handle,
			"action": "get_identity_failed",
		}).Errorf("get identity failed: %v", err)
		return identitydomain.Identity{}, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

func (s *IdentityService) PublicKey(ctx context.Context, handle string) (string, error) {
	identity, err := s.Get(ctx, handle)
	if err != nil {
		return "", err
	}
	return identity.PublicKey, nil
}

func (s *IdentityService) Fingerprint(ctx context.Context, handle string) (string, error) {
	identity, err := s.Get(ctx, handle)
	if err != nil {
		return "", err
	}
	return NewView(identity).Fingerprint, nil
}

// EnrollRecoveryKey sets the recovery key once. It must differ from the
// signing key, or rotation would accept proofs signed by the key it replaces.
func (s *IdentityService) EnrollRecoveryKey(ctx context.Context, rawHandle, recoveryKey string) (identitydomain.Identity, error) {
	identity, err := s.Get(ctx, rawHandle)
	if err != nil {
		return identitydomain.Identity{}, err
	}
	if identity.IsRevoked() {
		return identitydomain.Identity{}, commonerrors.ErrIdentityRevoked
	}

	canonical, err := commoncrypto.CanonicalPublicKey(recoveryKey)
	if err != nil {
		return identitydomain.Identity{}, commonerrors.ErrInvalidKeyFormat
	}
	if canonical == identity.PublicKey {
		return identitydomain.Identity{}, commonerrors.ErrSameRecoveryKey
	}

	if err := s.repo.SetRecoveryKey(ctx, identity.Handle, canonical); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"handle": identity.Handle,
			"action": "recovery_key_enroll_failed",
		}).Warnf("recovery key enrollment failed: %v", err)
		return identitydomain.Identity{}, err
	}

	s.log.WithFields(ctx, logger.Fields{
		"handle": identity.Handle,
		"action": "recovery_key_enrolled",
	}).Info("recovery key enrolled")
	identity.RecoveryPublicKey = canonical
	return identity, nil
}

func (s *IdentityService) Revoke(ctx context.Context, rawHandle string) error {
	handle, err := identitydomain.NormalizeHandle(rawHandle)
	if err != nil {
		return err
	}
	if err := s.repo.Revoke(ctx, handle, s.clock.Now().UTC()); err != nil {
		return err
	}
	s.log.WithFields(ctx, logger.Fields{
		"handle": handle,
		"action": "identity_revoked",
	}).Warn("identity revoked")
	return nil
}

// CheckSession rejects tokens issued before the last key rotation and tokens
// of revoked or re-created identities.
func (s *IdentityService) CheckSession(ctx context.Context, claims jwtverify.SessionClaims) error {
	identity, err := s.repo.FindByHandle(ctx, claims.Handle)
	if err != nil {
		if errors.Is(err, commonerrors.ErrUserNotFound) {
			return commonerrors.ErrSessionInvalidated
		}
		return err
	}
	if identity.ID != claims.Subject {
		return commonerrors.ErrSessionInvalidated
	}
	if identity.IsRevoked() {
		return commonerrors.ErrIdentityRevoked
	}
	if claims.IssuedAtMs < identity.KeyRotatedAt.UnixMilli() {
		return commonerrors.ErrSessionInvalidated
	}
	return nil
}
