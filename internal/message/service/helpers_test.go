package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/resilience"
	consentrepo "github.com/AlibekovAA/dh-trust/backend/internal/consent/repository"
	consentservice "github.com/AlibekovAA/dh-trust/backend/internal/consent/service"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/repository"
	"github.com/AlibekovAA/dh-trust/backend/internal/signature"
)

var testNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

type mockIdentities struct {
	GetFunc func(ctx context.Context, handle string) (identitydomain.Identity, error)
}

func (m *mockIdentities) Get(ctx context.Context, handle string) (identitydomain.Identity, error) {
	return m.GetFunc(ctx, handle)
}

type notification struct {
	To    string
	Event string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) Notify(_ context.Context, to, event string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{To: to, Event: event})
}

func (n *recordingNotifier) Events() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.events...)
}

type user struct {
	identity identitydomain.Identity
	priv     ed25519.PrivateKey
}

type fixture struct {
	svc      *Service
	store    *repository.PebbleStore
	consent  *consentservice.Engine
	notifier *recordingNotifier
	clock    *clock.MockClock
	users    map[string]*user
}

func newFixture(t *testing.T, enforcement signature.Enforcement) *fixture {
	t.Helper()

	db, err := kv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log, err := logger.New("", "test", "error")
	require.NoError(t, err)

	clk := clock.NewMockClock(testNow)
	store := repository.NewPebbleStore(db, repository.Limits{Inbox: 100, Outbox: 100, Thread: 100})
	engine := consentservice.NewEngine(
		consentrepo.NewPebbleRepository(db),
		NewHistoryReader(store),
		consentservice.Options{SystemHandles: []string{"system"}, GrandfatherPending: true},
		clk,
		log,
	)

	f := &fixture{
		store:    store,
		consent:  engine,
		notifier: &recordingNotifier{},
		clock:    clk,
		users:    map[string]*user{},
	}
	for _, handle := range []string{"alice", "bob", "carol"} {
		f.addUser(t, handle)
	}

	identities := &mockIdentities{GetFunc: func(_ context.Context, handle string) (identitydomain.Identity, error) {
		u, ok := f.users[handle]
		if !ok {
			return identitydomain.Identity{}, commonerrors.ErrUserNotFound
		}
		return u.identity, nil
	}}

	policy := signature.NewPolicy(enforcement, signature.NewVerifier(clk, 5*time.Minute), log)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Threshold: 5, ResetAfter: time.Second, Name: "messages_test"})

	f.svc = NewService(
		store,
		identities,
		engine,
		policy,
		f.notifier,
		breaker,
		commoncrypto.NewUUIDGenerator(),
		Options{SystemHandles: []string{"system"}},
		clk,
		log,
	)
	return f
}

func (f *fixture) addUser(t *testing.T, handle string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	f.users[handle] = &user{
		identity: identitydomain.Identity{
			ID:        "id-" + handle,
			Handle:    handle,
			PublicKey: commoncrypto.EncodeKey(pub),
			Status:    identitydomain.StatusActive,
		},
		priv: priv,
	}
}

// signedInput builds a send request whose body is signed by from's key.
func (f *fixture) signedInput(t *testing.T, id, from, to, text string) SendInput {
	t.Helper()
	body := map[string]any{
		"id":        id,
		"from":      from,
		"to":        to,
		"text":      text,
		"nonce":     "nonce-" + id,
		"timestamp": json.Number(strconv.FormatInt(f.clock.Now().UnixMilli(), 10)),
	}
	canonical, err := signature.Canonicalize(signature.StripTransport(body))
	require.NoError(t, err)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(f.users[from].priv, canonical))
	body["signature"] = sig

	return SendInput{
		ID:        id,
		From:      from,
		To:        to,
		Text:      text,
		Nonce:     "nonce-" + id,
		Signature: sig,
		Body:      body,
	}
}

func plainInput(id, from, to, text string) SendInput {
	return SendInput{
		ID:   id,
		From: from,
		To:   to,
		Text: text,
		Body: map[string]any{"id": id, "from": from, "to": to, "text": text},
	}
}
