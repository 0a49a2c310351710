package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	identityrepo "github.com/AlibekovAA/dh-trust/backend/internal/identity/repository"
)

type AuthService struct {
	repo        identityrepo.Repository
	hasher      commoncrypto.PasswordHasher
	idGenerator commoncrypto.IDGenerator
	tokens      *TokenIssuer
	clock       clock.Clock
	log         *logger.Logger
}

func NewAuthService(
	repo identityrepo.Repository,
	hasher commoncrypto.PasswordHasher,
	idGenerator commoncrypto.IDGenerator,
	tokens *TokenIssuer,
	clk clock.Clock,
	log *logger.Logger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		hasher:      hasher,
		idGenerator: idGenerator,
		tokens:      tokens,
		clock:       clk,
		log:         log,
	}
}

type RegisterInput struct {
	Handle            string
	Password          string
	PublicKey         string
	RecoveryPublicKey string
}

type LoginInput struct {
	Handle   string
	Password string
}

type AuthResult struct {
	Identity identitydomain.Identity
	Token    string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	handle, err := validateCredentials(input.Handle, input.Password)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"handle": input.Handle,
			"action": "register_validation_failed",
		}).Warnf("register validation failed: %v", err)
		return AuthResult{}, err
	}

	publicKey, err := commoncrypto.CanonicalPublicKey(input.PublicKey)
	if err != nil {
		return AuthResult{}, commonerrors.ErrInvalidKeyFormat.WithDetails(map[string]any{"field": "public_key"})
	}

	var recoveryKey string
	if input.RecoveryPublicKey != "" {
		recoveryKey, err = commoncrypto.CanonicalPublicKey(input.RecoveryPublicKey)
		if err != nil {
			return AuthResult{}, commonerrors.ErrInvalidKeyFormat.WithDetails(map[string]any{"field": "recovery_public_key"})
		}
		if recoveryKey == publicKey {
			return AuthResult{}, commonerrors.ErrSameRecoveryKey
		}
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"handle": handle,
			"action": "register_hash_failed",
		}).Errorf("register failed: password hash error: %v", err)
		return AuthResult{}, err
	}

	id, err := s.idGenerator.NewID()
	if err != nil {
		return AuthResult{}, fmt.Errorf("failed to generate identity id: %w", err)
	}

	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	identity := identitydomain.Identity{
		ID:                id,
		Handle:            handle,
		PasswordHash:      hash,
		PublicKey:         publicKey,
		RecoveryPublicKey: recoveryKey,
		Status:            identitydomain.StatusActive,
		KeyRotatedAt:      now,
		CreatedAt:         now,
	}

	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, commonerrors.ErrHandleTaken) {
			s.log.WithFields(ctx, logger.Fields{
				"handle": handle,
				"action": "register_handle_taken",
			}).Warn("register failed: handle taken")
			return AuthResult{}, err
		}
		s.log.WithFields(ctx, logger.Fields{
			"handle": handle,
			"action": "register_create_failed",
		}).Errorf("register failed: %v", err)
		return AuthResult{}, err
	}

	token, err := s.tokens.Issue(identity, now, OriginRegister)
	if err != nil {
		return AuthResult{}, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"handle":       handle,
		"identity_id":  id,
		"has_recovery": recoveryKey != "",
		"action":       "register_success",
	}).Info("register success")

	return AuthResult{Identity: identity, Token: token}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	handle, err := identitydomain.NormalizeHandle(input.Handle)
	if err != nil {
		return AuthResult{}, commonerrors.ErrInvalidCredentials
	}

	identity, err := s.repo.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, commonerrors.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"handle": handle,
				"action": "login_unknown_handle",
			}).Warn("login failed: unknown handle")
			return AuthResult{}, commonerrors.ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if err := s.hasher.Compare(identity.PasswordHash, input.Password); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"handle": handle,
			"action": "login_invalid_password",
		}).Warn("login failed: invalid password")
		return AuthResult{}, commonerrors.ErrInvalidCredentials
	}

	if identity.IsRevoked() {
		s.log.WithFields(ctx, logger.Fields{
			"handle": handle,
			"action": "login_revoked",
		}).Warn("login failed: identity revoked")
		return AuthResult{}, commonerrors.ErrIdentityRevoked
	}

	token, err := s.tokens.Issue(identity, s.clock.Now().UTC(), OriginLogin)
	if err != nil {
		return AuthResult{}, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"handle": handle,
		"action": "login_success",
	}).Info("login success")

	return AuthResult{Identity: identity, Token: token}, nil
}
