package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authservice "github.com/AlibekovAA/dh-trust/backend/internal/auth/service"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	identityrepo "github.com/AlibekovAA/dh-trust/backend/internal/identity/repository"
	identityservice "github.com/AlibekovAA/dh-trust/backend/internal/identity/service"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/repository"
	"github.com/AlibekovAA/dh-trust/backend/internal/signature"
	"github.com/AlibekovAA/dh-trust/backend/internal/ttlstore"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC)

type keypair struct {
	pub  string
	priv ed25519.PrivateKey
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return keypair{pub: commoncrypto.EncodeKey(pub), priv: priv}
}

type fixture struct {
	svc        *RotationService
	repo       *identityrepo.PebbleRepository
	identities *identityservice.IdentityService
	audit      *repository.PebbleAuditLog
	jwt        *jwtverify.Verifier
	tokens     *authservice.TokenIssuer
	clock      *clock.MockClock
	signing    keypair
	recovery   keypair
}

func newFixture(t *testing.T, rateLimit int) *fixture {
	t.Helper()
	db, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log, err := logger.New("", "test", "error")
	require.NoError(t, err)

	clk := clock.NewMockClock(testNow)
	f := &fixture{
		repo:     identityrepo.NewPebbleRepository(db),
		audit:    repository.NewPebbleAuditLog(db),
		jwt:      jwtverify.NewVerifier(testSecret, clk),
		tokens:   authservice.NewTokenIssuer(testSecret, commoncrypto.NewUUIDGenerator(), 24*time.Hour),
		clock:    clk,
		signing:  newKeypair(t),
		recovery: newKeypair(t),
	}
	f.identities = identityservice.NewIdentityService(f.repo, clk, log)
	f.svc = NewRotationService(
		f.repo,
		ttlstore.NewPebbleStore(db, clk),
		f.audit,
		signature.NewVerifier(clk, 300*time.Second),
		f.tokens,
		commoncrypto.NewUUIDGenerator(),
		Limits{RateLimit: rateLimit, RateWindow: time.Hour},
		clk,
		log,
	)
	return f
}

func (f *fixture) createIdentity(t *testing.T, handle string, withRecovery bool) identitydomain.Identity {
	t.Helper()
	created := testNow.Add(-time.Hour)
	identity := identitydomain.Identity{
		ID:           "id-" + handle,
		Handle:       handle,
		PasswordHash: "x",
		PublicKey:    f.signing.pub,
		Status:       identitydomain.StatusActive,
		KeyRotatedAt: created,
		CreatedAt:    created,
	}
	if withRecovery {
		identity.RecoveryPublicKey = f.recovery.pub
	}
	require.NoError(t, f.repo.Create(context.Background(), identity))
	return identity
}

func (f *fixture) input(t *testing.T, handle, newKey, nonce string, ts time.Time, signer ed25519.PrivateKey) RotateInput {
	t.Helper()
	timestamp := json.Number(strconv.FormatInt(ts.UnixMilli(), 10))
	canonical, err := signature.Canonicalize(map[string]any{
		"new_public_key": newKey,
		"nonce":          nonce,
		"timestamp":      timestamp,
	})
	require.NoError(t, err)
	return RotateInput{
		Handle:       handle,
		NewPublicKey: newKey,
		Proof: Proof{
			NewPublicKey: newKey,
			Timestamp:    timestamp,
			Nonce:        nonce,
			Signature:    base64.StdEncoding.EncodeToString(ed25519.Sign(signer, canonical)),
		},
		ClientIP:  "10.0.0.1",
		UserAgent: "test",
		TraceID:   "trace-1",
	}
}

func (f *fixture) lastAudit(t *testing.T, handle string) domain.AuditEntry {
	t.Helper()
	entries, err := f.audit.List(context.Background(), handle, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}

func TestRotate_Success(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	identity := f.createIdentity(t, "alice", true)

	oldToken, err := f.tokens.Issue(identity, identity.KeyRotatedAt, authservice.OriginLogin)
	require.NoError(t, err)
	oldClaims, err := f.jwt.ParseToken(oldToken)
	require.NoError(t, err)
	require.NoError(t, f.identities.CheckSession(ctx, oldClaims))

	next := newKeypair(t)
	res, err := f.svc.Rotate(ctx, f.input(t, "alice", next.pub, "nonce-1", testNow, f.recovery.priv))
	require.NoError(t, err)
	assert.Equal(t, next.pub, res.NewPublicKey)
	assert.True(t, testNow.Equal(res.KeyRotatedAt))

	stored, err := f.repo.FindByHandle(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, next.pub, stored.PublicKey)

	require.ErrorIs(t, f.identities.CheckSession(ctx, oldClaims), commonerrors.ErrSessionInvalidated)
	newClaims, err := f.jwt.ParseToken(res.Token)
	require.NoError(t, err)
	require.NoError(t, f.identities.CheckSession(ctx, newClaims))

	entry := f.lastAudit(t, "alice")
	assert.True(t, entry.Success)
	assert.Equal(t, domain.ReasonSuccess, entry.Reason)
	assert.Equal(t, f.signing.pub, entry.OldKey)
	assert.Equal(t, next.pub, entry.NewKey)
	assert.Equal(t, "10.0.0.1", entry.ClientIP)
	assert.Equal(t, "trace-1", entry.TraceID)

	f.clock.Advance(time.Minute)
	_, err = f.svc.Rotate(ctx, f.input(t, "alice", newKeypair(t).pub, "nonce-2", f.clock.Now(), f.recovery.priv))
	require.ErrorIs(t, err, commonerrors.ErrRateLimited)
	assert.Equal(t, "rate_limited", f.lastAudit(t, "alice").Reason)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Rotate(ctx, f.input(t, "alice", newKeypair(t).pub, "nonce-3", f.clock.Now(), f.recovery.priv))
	require.NoError(t, err)
}

func TestRotate_NonceReplay(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	f.createIdentity(t, "alice", true)

	_, err := f.svc.Rotate(ctx, f.input(t, "alice", newKeypair(t).pub, "same", testNow, f.recovery.priv))
	require.NoError(t, err)

	_, err = f.svc.Rotate(ctx, f.input(t, "alice", newKeypair(t).pub, "same", testNow, f.recovery.priv))
	require.ErrorIs(t, err, commonerrors.ErrReplayAttack)
	assert.Equal(t, "replay_attack", f.lastAudit(t, "alice").Reason)
}

func TestRotate_StaleTimestampKeepsNonce(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	f.createIdentity(t, "alice", true)
	next := newKeypair(t)

	_, err := f.svc.Rotate(ctx, f.input(t, "alice", next.pub, "n-1", testNow.Add(-400*time.Second), f.recovery.priv))
	require.ErrorIs(t, err, commonerrors.ErrInvalidTimestamp)
	de, ok := commonerrors.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, int64(-400), de.Details()["skew_seconds"])
	assert.Equal(t, testNow.UnixMilli(), de.Details()["server_time"])
	assert.Equal(t, testNow.Add(-400*time.Second).UnixMilli(), de.Details()["client_time"])

	_, err = f.svc.Rotate(ctx, f.input(t, "alice", next.pub, "n-1", testNow, f.recovery.priv))
	require.NoError(t, err)
}

func TestRotate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture) RotateInput
		want    error
	}{
		{
			name: "invalid key format",
			prepare: func(t *testing.T, f *fixture) RotateInput {
				f.createIdentity(t, "alice", true)
				in := f.input(t, "alice", newKeypair(t).pub, "n", testNow, f.recovery.priv)
				in.NewPublicKey = "not-a-key"
				return in
			},
			want: commonerrors.ErrInvalidKeyFormat,
		},
		{
			name: "unknown identity",
			prepare: func(t *testing.T, f *fixture) RotateInput {
				return f.input(t, "ghost", newKeypair(t).pub, "n", testNow, f.recovery.priv)
			},
			want: commonerrors.ErrUserNotFound,
		},
		{
			name: "no recovery key",
			prepare: func(t *testing.T, f *fixture) RotateInput {
				f.createIdentity(t, "alice", false)
				return f.input(t, "alice", newKeypair(t).pub, "n", testNow, f.recovery.priv)
			},
			want: commonerrors.ErrNoRecoveryKey,
		},
		{
			name: "revoked",
			prepare: func(t *testing.T, f *fixture) RotateInput {
				f.createIdentity(t, "alice", true)
				require.NoError(t, f.repo.Revoke(context.Background(), "alice", testNow))
				return f.input(t, "alice", newKeypair(t).pub, "n", testNow, f.recovery.priv)
			},
			want: commonerrors.ErrIdentityRevoked,
		},
		{
			name: "same key",
			prepare: func(t *testing.T, f *fixture) RotateInput {
				f.createIdentity(t, "alice", true)
				return f.input(t, "alice", f.signing.pub, "n", testNow, f.recovery.priv)
			},
			want: commonerrors.ErrKeyAlreadySet,
		},
		{
			name: "proof signed by signing key",
			prepare: func(t *testing.T, f *fixture) RotateInput {
				f.createIdentity(t, "alice", true)
				return f.input(t, "alice", newKeypair(t).pub, "n", testNow, f.signing.priv)
			},
			want: commonerrors.ErrInvalidRecoveryProof,
		},
		{
			name: "proof for another key",
			prepare: func(t *testing.T, f *fixture) RotateInput {
				f.createIdentity(t, "alice", true)
				in := f.input(t, "alice", newKeypair(t).pub, "n", testNow, f.recovery.priv)
				in.NewPublicKey = newKeypair(t).pub
				return in
			},
			want: commonerrors.ErrInvalidRecoveryProof,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 5)
			in := tt.prepare(t, f)

			_, err := f.svc.Rotate(context.Background(), in)
			require.ErrorIs(t, err, tt.want)

			entry := f.lastAudit(t, in.Handle)
			assert.False(t, entry.Success)
			assert.Equal(t, commonerrors.CodeOf(tt.want), entry.Reason)

			if identity, err := f.repo.FindByHandle(context.Background(), "alice"); err == nil {
				assert.Equal(t, f.signing.pub, identity.PublicKey)
			}
		})
	}
}

func TestRotate_RateLimitPrecedesLookup(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Rotate(ctx, f.input(t, "ghost", newKeypair(t).pub, "n-1", testNow, f.recovery.priv))
	require.ErrorIs(t, err, commonerrors.ErrUserNotFound)

	_, err = f.svc.Rotate(ctx, f.input(t, "ghost", newKeypair(t).pub, "n-2", testNow, f.recovery.priv))
	require.ErrorIs(t, err, commonerrors.ErrRateLimited)
}

func TestRotate_FormatErrorsDoNotCountTowardRate(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.createIdentity(t, "alice", true)

	bad := f.input(t, "alice", newKeypair(t).pub, "n-1", testNow, f.recovery.priv)
	bad.NewPublicKey = "zz"
	_, err := f.svc.Rotate(ctx, bad)
	require.ErrorIs(t, err, commonerrors.ErrInvalidKeyFormat)

	_, err = f.svc.Rotate(ctx, f.input(t, "alice", newKeypair(t).pub, "n-2", testNow, f.recovery.priv))
	require.NoError(t, err)
}

func TestAudit(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	f.createIdentity(t, "alice", false)

	_, err := f.svc.Rotate(ctx, f.input(t, "alice", newKeypair(t).pub, "n", testNow, f.recovery.priv))
	require.Error(t, err)

	entries, err := f.svc.Audit(ctx, "@Alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "no_recovery_key", entries[0].Reason)
}
