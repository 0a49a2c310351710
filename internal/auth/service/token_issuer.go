package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

const (
	OriginRegister = "register"
	OriginLogin    = "login"
	OriginRotation = "rotation"
)

type TokenIssuer struct {
	jwtSecret   []byte
	idGenerator commoncrypto.IDGenerator
	sessionTTL  time.Duration
}

func NewTokenIssuer(jwtSecret string, idGenerator commoncrypto.IDGenerator, sessionTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		jwtSecret:   []byte(jwtSecret),
		idGenerator: idGenerator,
		sessionTTL:  sessionTTL,
	}
}

// Issue mints a session token whose iat_ms is issuedAt, so the caller decides
// where the token sits relative to key_rotated_at.
func (ti *TokenIssuer) Issue(identity identitydomain.Identity, issuedAt time.Time, origin string) (string, error) {
	jti, err := ti.idGenerator.NewID()
	if err != nil {
		return "", err
	}

	claims := jwtverify.SessionClaims{
		Handle:     identity.Handle,
		IssuedAtMs: issuedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ti.sessionTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.jwtSecret)
	if err != nil {
		return "", err
	}

	metrics.SessionTokensIssued.WithLabelValues(origin).Inc()
	return token, nil
}
