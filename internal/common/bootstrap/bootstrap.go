package bootstrap

import (
	"context"
	"fmt"
	"os"

	authservice "github.com/AlibekovAA/dh-trust/backend/internal/auth/service"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/config"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/dh-trust/backend/internal/common/crypto"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/db"
	commonhttp "github.com/AlibekovAA/dh-trust/backend/internal/common/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/kv"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/resilience"
	consentrepo "github.com/AlibekovAA/dh-trust/backend/internal/consent/repository"
	consentservice "github.com/AlibekovAA/dh-trust/backend/internal/consent/service"
	identityrepo "github.com/AlibekovAA/dh-trust/backend/internal/identity/repository"
	identityservice "github.com/AlibekovAA/dh-trust/backend/internal/identity/service"
	messagerepo "github.com/AlibekovAA/dh-trust/backend/internal/message/repository"
	messageservice "github.com/AlibekovAA/dh-trust/backend/internal/message/service"
	"github.com/AlibekovAA/dh-trust/backend/internal/realtime"
	rotationrepo "github.com/AlibekovAA/dh-trust/backend/internal/rotation/repository"
	rotationservice "github.com/AlibekovAA/dh-trust/backend/internal/rotation/service"
	"github.com/AlibekovAA/dh-trust/backend/internal/signature"
	"github.com/AlibekovAA/dh-trust/backend/internal/ttlstore"
)

// Storage is the set of repositories behind one backend.
type Storage struct {
	Identities identityrepo.Repository
	TTL        ttlstore.Store
	Messages   messagerepo.Store
	Consent    consentrepo.Repository
	Audit      rotationrepo.AuditLog
	Pinger     commonhttp.Pinger
	Close      func()
}

type App struct {
	Config   config.TrustConfig
	Log      *logger.Logger
	Clock    clock.Clock
	Storage  Storage
	Verifier *jwtverify.Verifier
	Limiters *commonhttp.StrictRateLimiter
	Hub      *realtime.Hub

	Identity *identityservice.IdentityService
	Auth     *authservice.AuthService
	Consent  *consentservice.Engine
	Messages *messageservice.Service
	Rotation *rotationservice.RotationService
}

func NewApp(ctx context.Context) (*App, error) {
	log, err := initializeLogger("trust")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log.SetLevel(cfg.LogLevel)

	clk := clock.NewRealClock()
	storage, err := openStorage(ctx, cfg, clk, log)
	if err != nil {
		return nil, err
	}

	app, err := assemble(cfg, storage, clk, log)
	if err != nil {
		storage.Close()
		return nil, err
	}
	return app, nil
}

func openStorage(ctx context.Context, cfg config.TrustConfig, clk clock.Clock, log *logger.Logger) (Storage, error) {
	limits := messagerepo.Limits{
		Inbox:  cfg.Policy.InboxMaxLen,
		Outbox: cfg.Policy.OutboxMaxLen,
		Thread: cfg.Policy.ThreadMaxLen,
	}

	switch cfg.StorageBackend {
	case config.BackendPebble:
		store, err := kv.Open(cfg.PebblePath, log)
		if err != nil {
			return Storage{}, err
		}
		return Storage{
			Identities: identityrepo.NewPebbleRepository(store),
			TTL:        ttlstore.NewPebbleStore(store, clk),
			Messages:   messagerepo.NewPebbleStore(store, limits),
			Consent:    consentrepo.NewPebbleRepository(store),
			Audit:      rotationrepo.NewPebbleAuditLog(store),
			Pinger:     store,
			Close: func() {
				if err := store.Close(); err != nil {
					log.Errorf("failed to close pebble: %v", err)
				}
			},
		}, nil

	default:
		pool, err := db.NewPool(ctx, log, cfg.DatabaseURL)
		if err != nil {
			return Storage{}, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return Storage{}, fmt.Errorf("failed to apply schema: %w", err)
		}
		db.StartPoolMetrics(ctx, pool, constants.DBPoolMetricsInterval)

		return Storage{
			Identities: identityrepo.NewPgRepository(pool),
			TTL:        ttlstore.NewPgStore(pool, clk),
			Messages:   messagerepo.NewPgStore(pool, limits),
			Consent:    consentrepo.NewPgRepository(pool),
			Audit:      rotationrepo.NewPgAuditLog(pool),
			Pinger:     pool,
			Close:      pool.Close,
		}, nil
	}
}

func assemble(cfg config.TrustConfig, storage Storage, clk clock.Clock, log *logger.Logger) (*App, error) {
	enforcement, err := signature.ParseEnforcement(cfg.Policy.SignatureEnforcement)
	if err != nil {
		return nil, err
	}

	idGen := commoncrypto.NewUUIDGenerator()
	tokens := authservice.NewTokenIssuer(cfg.JWTSecret, idGen, cfg.SessionTTL)
	signatures := signature.NewVerifier(clk, cfg.Policy.ReplayWindow)
	hub := realtime.NewHub(constants.DefaultWebSocketSendTimeout, clk, log)

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Threshold:  constants.DefaultCircuitBreakerThreshold,
		Timeout:    constants.DefaultCircuitBreakerTimeout,
		ResetAfter: constants.DefaultCircuitBreakerReset,
		Name:       "message_store",
		Logger:     log,
	})

	identity := identityservice.NewIdentityService(storage.Identities, clk, log)
	auth := authservice.NewAuthService(storage.Identities, commoncrypto.NewBcryptHasher(), idGen, tokens, clk, log)

	engine := consentservice.NewEngine(
		storage.Consent,
		messageservice.NewHistoryReader(storage.Messages),
		consentservice.Options{
			SystemHandles:      cfg.Policy.SystemHandles,
			GrandfatherPending: cfg.Policy.ConsentGrandfatherPending,
		},
		clk,
		log,
	)

	messages := messageservice.NewService(
		storage.Messages,
		identity,
		engine,
		signature.NewPolicy(enforcement, signatures, log),
		hub,
		breaker,
		idGen,
		messageservice.Options{SystemHandles: cfg.Policy.SystemHandles},
		clk,
		log,
	)

	rotation := rotationservice.NewRotationService(
		storage.Identities,
		storage.TTL,
		storage.Audit,
		signatures,
		tokens,
		idGen,
		rotationservice.Limits{
			RateLimit:  cfg.Policy.RotationRateLimit,
			RateWindow: cfg.Policy.RotationRateWindow,
		},
		clk,
		log,
	)

	log.WithFields(context.Background(), logger.Fields{
		"backend":     cfg.StorageBackend,
		"enforcement": string(enforcement),
		"window":      cfg.Policy.ReplayWindow.String(),
		"action":      "trust_app_ready",
	}).Info("trust service assembled")

	return &App{
		Config:   cfg,
		Log:      log,
		Clock:    clk,
		Storage:  storage,
		Verifier: jwtverify.NewVerifier(cfg.JWTSecret, clk),
		Limiters: commonhttp.NewStrictRateLimiter(),
		Hub:      hub,
		Identity: identity,
		Auth:     auth,
		Consent:  engine,
		Messages: messages,
		Rotation: rotation,
	}, nil
}

func initializeLogger(serviceName string) (*logger.Logger, error) {
	return logger.New(os.Getenv("LOG_DIR"), serviceName, os.Getenv("LOG_LEVEL"))
}
