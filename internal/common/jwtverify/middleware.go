package jwtverify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	commonhttp "github.com/AlibekovAA/dh-trust/backend/internal/common/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

// SessionClaims is the payload of a session token. IssuedAtMs carries
// millisecond precision so a token minted in the same second as a rotation
// can still be ordered against key_rotated_at.
type SessionClaims struct {
	Handle     string `json:"usr"`
	IssuedAtMs int64  `json:"iat_ms"`
	jwt.RegisteredClaims
}

func (c SessionClaims) IssuedAt() time.Time {
	return time.UnixMilli(c.IssuedAtMs).UTC()
}

// SessionChecker validates a parsed token against current identity state.
type SessionChecker interface {
	CheckSession(ctx context.Context, claims SessionClaims) error
}

type Verifier struct {
	secret []byte
	clock  clock.Clock
}

func NewVerifier(secret string, clk clock.Clock) *Verifier {
	return &Verifier{secret: []byte(secret), clock: clk}
}

type contextKey string

const claimsKey contextKey = "session_claims"

func (v *Verifier) ParseToken(tokenString string) (SessionClaims, error) {
	metrics.JWTValidationsTotal.Inc()

	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		reason := "invalid"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "expired"
		}
		metrics.JWTValidationsFailed.WithLabelValues(reason).Inc()
		return SessionClaims{}, commonerrors.ErrInvalidToken.WithCause(err)
	}

	if claims.Subject == "" || claims.Handle == "" || claims.IssuedAtMs == 0 {
		metrics.JWTValidationsFailed.WithLabelValues("missing_claims").Inc()
		return SessionClaims{}, commonerrors.ErrInvalidToken
	}
	return claims, nil
}

// Authenticate extracts the bearer token, or the token query parameter for
// websocket upgrades, and runs it through checker when one is given.
func (v *Verifier) Authenticate(r *http.Request, checker SessionChecker) (SessionClaims, error) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		return SessionClaims{}, commonerrors.ErrMissingAuthorization
	}

	claims, err := v.ParseToken(tokenString)
	if err != nil {
		return SessionClaims{}, err
	}

	if checker != nil {
		if err := checker.CheckSession(r.Context(), claims); err != nil {
			if commonerrors.CodeOf(err) == commonerrors.ErrSessionInvalidated.Code() {
				metrics.JWTValidationsFailed.WithLabelValues("session_invalidated").Inc()
			}
			return SessionClaims{}, err
		}
	}
	return claims, nil
}

func (v *Verifier) Middleware(checker SessionChecker, log *logger.Logger) func(next http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, err := v.Authenticate(r, checker)
			if err != nil {
				log.WithFields(r.Context(), logger.Fields{
					"path":   r.URL.Path,
					"action": "jwt_auth_failed",
				}).Warnf("jwt auth failed: %v", err)
				commonhttp.HandleError(w, r, err, log)
				return
			}

			next(w, r.WithContext(WithClaims(r.Context(), claims)))
		}
	}
}

func WithClaims(ctx context.Context, claims SessionClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func FromContext(ctx context.Context) (SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(SessionClaims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	raw := r.Header.Get("Authorization")
	if strings.HasPrefix(raw, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	}
	if raw == "" && r.URL.Path == "/ws" {
		return r.URL.Query().Get("token")
	}
	return ""
}
