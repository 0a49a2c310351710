package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/consent/domain"
	consentrepo "github.com/AlibekovAA/dh-trust/backend/internal/consent/repository"
	"github.com/AlibekovAA/dh-trust/backend/internal/consent/service"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

type allowAll struct{}

func (allowAll) CheckSession(context.Context, jwtverify.SessionClaims) error { return nil }

func token(t *testing.T, handle string) string {
	t.Helper()
	claims := jwtverify.SessionClaims{
		Handle:     handle,
		IssuedAtMs: testNow.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "id-" + handle,
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func setup(t *testing.T) (*http.ServeMux, *service.Engine) {
	t.Helper()
	db, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log, err := logger.New("", "test", "error")
	require.NoError(t, err)

	clk := clock.NewMockClock(testNow)
	engine := service.NewEngine(consentrepo.NewPebbleRepository(db), nil, service.Options{}, clk, log)

	mux := http.NewServeMux()
	NewHandler(engine, jwtverify.NewVerifier(testSecret, clk), allowAll{}, time.Second, log).Register(mux)
	return mux, engine
}

func serve(mux *http.ServeMux, method, target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPendingAndAccept(t *testing.T) {
	mux, engine := setup(t)
	ctx := context.Background()

	_, err := engine.Evaluate(ctx, "alice", "bob", "", "hello there")
	require.NoError(t, err)

	rec := serve(mux, http.MethodGet, "/consent/pending?user=bob", token(t, "alice"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(mux, http.MethodGet, "/consent/pending", token(t, "bob"))
	require.Equal(t, http.StatusOK, rec.Code)
	var pending struct {
		User    string          `json:"user"`
		Pending []domain.Record `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, "bob", pending.User)
	require.Len(t, pending.Pending, 1)
	assert.Equal(t, "hello there", pending.Pending[0].Preview)

	rec = serve(mux, http.MethodPost, "/consent/alice/accept", token(t, "bob"))
	require.Equal(t, http.StatusOK, rec.Code)
	var record domain.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, domain.StateAccepted, record.State)

	rec = serve(mux, http.MethodPost, "/consent/carol/accept", token(t, "bob"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlock(t *testing.T) {
	mux, engine := setup(t)

	rec := serve(mux, http.MethodPost, "/consent/mallory/block", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(mux, http.MethodPost, "/consent/mallory/block", token(t, "bob"))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := engine.Evaluate(context.Background(), "mallory", "bob", "", "hi")
	require.Error(t, err)
}
