package service

import (
	"context"
	"time"

	authservice "github.com/AlibekovAA/dh-trust/backend/internal/auth/service"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	identityrepo "github.com/AlibekovAA/dh-trust/backend/internal/identity/repository"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/repository"
	"github.com/AlibekovAA/dh-trust/backend/internal/signature"
	"github.com/AlibekovAA/dh-trust/backend/internal/ttlstore"
)

type Proof struct {
	NewPublicKey string
	// Timestamp is kept as submitted so the canonical form matches what
	// the client signed.
	Timestamp any
	Nonce     string
	Signature string
}

type RotateInput struct {
	Handle       string
	NewPublicKey string
	Proof        Proof
	ClientIP     string
	UserAgent    string
	TraceID      string
}

type RotateResult struct {
	Handle       string
	NewPublicKey string
	KeyRotatedAt time.Time
	Token        string
}

type Limits struct {
	RateLimit  int
	RateWindow time.Duration
}

type RotationService struct {
	identities  identityrepo.Repository
	ttl         ttlstore.Store
	audit       repository.AuditLog
	verifier    *signature.Verifier
	tokens      *authservice.TokenIssuer
	idGenerator commoncrypto.IDGenerator
	limits      Limits
	clock       clock.Clock
	log         *logger.Logger
}

func NewRotationService(
	identities identityrepo.Repository,
	ttl ttlstore.Store,
	audit repository.AuditLog,
	verifier *signature.Verifier,
	tokens *authservice.TokenIssuer,
	idGenerator commoncrypto.IDGenerator,
	limits Limits,
	clk clock.Clock,
	log *logger.Logger,
) *RotationService {
	return &RotationService{
		identities:  identities,
		ttl:         ttl,
		audit:       audit,
		verifier:    verifier,
		tokens:      tokens,
		idGenerator: idGenerator,
		limits:      limits,
		clock:       clk,
		log:         log,
	}
}

// attempt carries what is known about a rotation so far; it becomes the
// audit entry whatever the outcome.
type attempt struct {
	handle string
	oldKey string
	newKey string
}

// Rotate replaces the signing key of input.Handle after proof of control
// over its recovery key. Checks run cheapest first and the nonce is only
// consumed once every other check has passed.
func (s *RotationService) Rotate(ctx context.Context, input RotateInput) (RotateResult, error) {
	at := attempt{handle: input.Handle, newKey: input.NewPublicKey}

	result, err := s.rotate(ctx, input, &at)

	reason := domain.ReasonSuccess
	if err != nil {
		reason = commonerrors.CodeOf(err)
		if reason == "" {
			reason = commonerrors.ErrInternalError.Code()
		}
	}
	s.record(ctx, input, at, err == nil, reason)

	fields := logger.Fields{
		"handle": at.handle,
		"reason": reason,
		"action": "key_rotation",
	}
	if err != nil {
		metrics.RotationAttemptsTotal.WithLabelValues("failure", reason).Inc()
		s.log.WithFields(ctx, fields).Warnf("key rotation rejected: %v", err)
		return RotateResult{}, err
	}
	metrics.RotationAttemptsTotal.WithLabelValues("success", reason).Inc()
	s.log.WithFields(ctx, fields).Info("signing key rotated")
	return result, nil
}

func (s *RotationService) rotate(ctx context.Context, input RotateInput, at *attempt) (RotateResult, error) {
	handle, err := identitydomain.NormalizeHandle(input.Handle)
	if err != nil {
		return RotateResult{}, err
	}
	at.handle = handle

	newKey, err := commoncrypto.CanonicalPublicKey(input.NewPublicKey)
	if err != nil {
		return RotateResult{}, commonerrors.ErrInvalidKeyFormat.WithDetails(map[string]any{"field": "new_public_key"})
	}
	at.newKey = newKey
	if input.Proof.Nonce == "" || input.Proof.Signature == "" || input.Proof.NewPublicKey == "" {
		return RotateResult{}, commonerrors.ErrInvalidRequest.WithDetails(map[string]any{"proof": "new_public_key, nonce and signature are required"})
	}

	count, err := s.ttl.IncrWithTTL(ctx, ttlstore.RateKey(handle), s.limits.RateWindow)
	if err != nil {
		return RotateResult{}, err
	}
	if count > int64(s.limits.RateLimit) {
		return RotateResult{}, commonerrors.ErrRateLimited.WithDetails(map[string]any{
			"retry_window_seconds": int64(s.limits.RateWindow / time.Second),
		})
	}

	identity, err := s.identities.FindByHandle(ctx, handle)
	if err != nil {
		return RotateResult{}, err
	}
	at.oldKey = identity.PublicKey

	if !identity.HasRecoveryKey() {
		return RotateResult{}, commonerrors.ErrNoRecoveryKey
	}
	if identity.IsRevoked() {
		return RotateResult{}, commonerrors.ErrIdentityRevoked
	}
	if newKey == identity.PublicKey {
		return RotateResult{}, commonerrors.ErrKeyAlreadySet
	}

	proofKey, err := commoncrypto.CanonicalPublicKey(input.Proof.NewPublicKey)
	if err != nil || proofKey != newKey {
		return RotateResult{}, commonerrors.ErrInvalidRecoveryProof
	}
	fields := map[string]any{
		"new_public_key": input.Proof.NewPublicKey,
		"nonce":          input.Proof.Nonce,
		"timestamp":      input.Proof.Timestamp,
	}
	if !s.verifier.VerifyProof(fields, input.Proof.Signature, identity.RecoveryPublicKey) {
		return RotateResult{}, commonerrors.ErrInvalidRecoveryProof
	}

	serverTime := s.clock.Now().UnixMilli()
	clientTime, ok := signature.ParseTimestamp(input.Proof.Timestamp)
	if !ok {
		return RotateResult{}, commonerrors.ErrInvalidTimestamp.WithDetails(map[string]any{"server_time": serverTime})
	}
	if skew, within := s.verifier.Skew(clientTime); !within {
		return RotateResult{}, commonerrors.ErrInvalidTimestamp.WithDetails(map[string]any{
			"server_time":  serverTime,
			"client_time":  clientTime,
			"skew_seconds": int64(skew / time.Second),
		})
	}

	fresh, err := s.ttl.SetIfAbsent(ctx, ttlstore.NonceKey(input.Proof.Nonce), 2*s.verifier.Window())
	if err != nil {
		return RotateResult{}, err
	}
	if !fresh {
		return RotateResult{}, commonerrors.ErrReplayAttack
	}

	rotatedAt := s.clock.Now().UTC().Truncate(time.Millisecond)
	if err := s.identities.RotateKey(ctx, handle, identity.PublicKey, newKey, rotatedAt); err != nil {
		return RotateResult{}, err
	}

	identity.PublicKey = newKey
	identity.KeyRotatedAt = rotatedAt
	token, err := s.tokens.Issue(identity, rotatedAt, authservice.OriginRotation)
	if err != nil {
		return RotateResult{}, commonerrors.ErrInternalError.WithCause(err)
	}

	return RotateResult{
		Handle:       handle,
		NewPublicKey: newKey,
		KeyRotatedAt: rotatedAt,
		Token:        token,
	}, nil
}

// RecordRejected audits an attempt refused before it reached Rotate, such as
// an undecodable request body.
func (s *RotationService) RecordRejected(ctx context.Context, input RotateInput, err error) {
	handle := input.Handle
	if normalized, nerr := identitydomain.NormalizeHandle(handle); nerr == nil {
		handle = normalized
	}
	reason := commonerrors.CodeOf(err)
	if reason == "" {
		reason = commonerrors.ErrInvalidRequest.Code()
	}
	metrics.RotationAttemptsTotal.WithLabelValues("failure", reason).Inc()
	s.record(ctx, input, attempt{handle: handle}, false, reason)
}

func (s *RotationService) record(ctx context.Context, input RotateInput, at attempt, success bool, reason string) {
	id, err := s.idGenerator.NewID()
	if err == nil {
		err = s.audit.Append(ctx, domain.AuditEntry{
			ID:        id,
			Handle:    at.handle,
			OldKey:    at.oldKey,
			NewKey:    at.newKey,
			Success:   success,
			Reason:    reason,
			ClientIP:  input.ClientIP,
			UserAgent: input.UserAgent,
			TraceID:   input.TraceID,
			CreatedAt: s.clock.Now().UTC(),
		})
	}
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"handle":  at.handle,
			"reason":  reason,
			"success": success,
			"action":  "rotation_audit_failed",
		}).Errorf("failed to append rotation audit entry: %v", err)
	}
}

func (s *RotationService) Audit(ctx context.Context, rawHandle string, limit int) ([]domain.AuditEntry, error) {
	handle, err := identitydomain.NormalizeHandle(rawHandle)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > constants.MaxListLimit {
		limit = constants.DefaultAuditLimit
	}
	return s.audit.List(ctx, handle, limit)
}
