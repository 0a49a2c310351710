package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type harness struct {
	hub    *Hub
	server *httptest.Server
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, err := logger.New("", "test", "error")
	require.NoError(t, err)

	now := time.Now().UTC()
	clk := clock.NewMockClock(now)
	hub := NewHub(time.Second, clk, log)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	mux := http.NewServeMux()
	NewHandler(hub, jwtverify.NewVerifier(testSecret, clk), nil, DefaultClientConfig(), log).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &harness{hub: hub, server: server, now: now}
}

func (h *harness) token(t *testing.T, handle string) string {
	t.Helper()
	claims := jwtverify.SessionClaims{
		Handle:     handle,
		IssuedAtMs: h.now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "id-" + handle,
			ID:        "jti-" + handle,
			ExpiresAt: jwt.NewNumericDate(h.now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (h *harness) dial(t *testing.T, handle string) *gorillaWS.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws?token=" + h.token(t, handle)
	conn, _, err := gorillaWS.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.hub.IsOnline(handle) }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *gorillaWS.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestNotify_DeliversToConnectedHandle(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "bob")

	h.hub.Notify(context.Background(), "bob", TypeMessage, map[string]string{"id": "m1", "from": "alice"})

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeMessage, env.Type)
	assert.Equal(t, h.now.UnixMilli(), env.SentAt)
	assert.JSONEq(t, `{"id":"m1","from":"alice"}`, string(env.Payload))
}

func TestNotify_OfflineIsNoop(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.hub.IsOnline("carol"))
	h.hub.Notify(context.Background(), "carol", TypeConsentRequest, map[string]string{"from": "alice"})
}

func TestNewConnectionReplacesExisting(t *testing.T) {
	h := newHarness(t)
	first := h.dial(t, "bob")
	second := h.dial(t, "bob")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	h.hub.Notify(context.Background(), "bob", TypeConsentRequest, map[string]string{"from": "alice"})
	env := readEnvelope(t, second)
	assert.Equal(t, TypeConsentRequest, env.Type)
}

func TestUpgradeRequiresToken(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"

	_, resp, err := gorillaWS.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestShutdownNotifiesClients(t *testing.T) {
	log, err := logger.New("", "test", "error")
	require.NoError(t, err)
	clk := clock.NewMockClock(time.Now())
	hub := NewHub(time.Second, clk, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	mux := http.NewServeMux()
	NewHandler(hub, jwtverify.NewVerifier(testSecret, clk), nil, DefaultClientConfig(), log).Register(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	h := &harness{hub: hub, server: server, now: clk.Now()}
	conn := h.dial(t, "bob")

	cancel()
	<-done

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeShutdown, env.Type)
	assert.False(t, hub.IsOnline("bob"))
}
