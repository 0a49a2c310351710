package http

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authservice "github.com/AlibekovAA/dh-trust/backend/internal/auth/service"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	identityrepo "github.com/AlibekovAA/dh-trust/backend/internal/identity/repository"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/repository"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/service"
	"github.com/AlibekovAA/dh-trust/backend/internal/signature"
	"github.com/AlibekovAA/dh-trust/backend/internal/ttlstore"
)

const adminKey = "admin-key"

var testNow = time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*http.ServeMux, ed25519.PrivateKey) {
	t.Helper()
	db, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log, err := logger.New("", "test", "error")
	require.NoError(t, err)
	clk := clock.NewMockClock(testNow)

	signingPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	recoveryPub, recoveryPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	repo := identityrepo.NewPebbleRepository(db)
	require.NoError(t, repo.Create(context.Background(), identitydomain.Identity{
		ID:                "id-alice",
		Handle:            "alice",
		PasswordHash:      "x",
		PublicKey:         commoncrypto.EncodeKey(signingPub),
		RecoveryPublicKey: commoncrypto.EncodeKey(recoveryPub),
		Status:            identitydomain.StatusActive,
		KeyRotatedAt:      testNow.Add(-time.Hour),
		CreatedAt:         testNow.Add(-time.Hour),
	}))

	svc := service.NewRotationService(
		repo,
		ttlstore.NewPebbleStore(db, clk),
		repository.NewPebbleAuditLog(db),
		signature.NewVerifier(clk, 300*time.Second),
		authservice.NewTokenIssuer("0123456789abcdef0123456789abcdef", commoncrypto.NewUUIDGenerator(), time.Hour),
		commoncrypto.NewUUIDGenerator(),
		service.Limits{RateLimit: 5, RateWindow: time.Hour},
		clk,
		log,
	)

	mux := http.NewServeMux()
	NewHandler(svc, nil, adminKey, time.Second, log).Register(mux)
	return mux, recoveryPriv
}

func rotateBody(t *testing.T, signer ed25519.PrivateKey, nonce string, ts time.Time) (string, []byte) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	newKey := commoncrypto.EncodeKey(pub)
	timestamp := json.Number(strconv.FormatInt(ts.UnixMilli(), 10))

	canonical, err := signature.Canonicalize(map[string]any{"new_public_key": newKey, "nonce": nonce, "timestamp": timestamp})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"new_public_key": newKey,
		"proof": map[string]any{
			"new_public_key": newKey,
			"timestamp":      timestamp,
			"nonce":          nonce,
			"signature":      base64.StdEncoding.EncodeToString(ed25519.Sign(signer, canonical)),
		},
	})
	require.NoError(t, err)
	return newKey, body
}

func post(mux *http.ServeMux, target string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body)))
	return rec
}

func TestRotate(t *testing.T) {
	mux, recovery := setup(t)

	newKey, body := rotateBody(t, recovery, "n-1", testNow)
	rec := post(mux, "/identity/alice/rotate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, newKey, resp["new_public_key"])
	assert.Equal(t, true, resp["sessions_invalidated"])
	assert.Equal(t, float64(testNow.UnixMilli()), resp["key_rotated_at"])
	assert.NotEmpty(t, resp["token"])
}

func TestRotate_StaleTimestampReportsSkew(t *testing.T) {
	mux, recovery := setup(t)

	_, body := rotateBody(t, recovery, "n-1", testNow.Add(10*time.Minute))
	rec := post(mux, "/identity/alice/rotate", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_timestamp", resp.Code)
	assert.Equal(t, float64(600), resp.Details["skew_seconds"])
}

func TestRotate_MalformedBodyIsAudited(t *testing.T) {
	mux, _ := setup(t)

	rec := post(mux, "/identity/alice/rotate", []byte(`{"new_public_key":`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/identity/alice/audit", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/identity/alice/audit", nil)
	req.Header.Set("X-Admin-Key", adminKey)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []struct {
			Reason  string `json:"reason"`
			Success bool   `json:"success"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "invalid_json", resp.Entries[0].Reason)
	assert.False(t, resp.Entries[0].Success)
}
