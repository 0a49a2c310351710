package constants

import "time"

const (
	HandleMinLength    = 3
	HandleMaxLength    = 32
	PasswordMinLength  = 8
	PasswordMaxLength  = 72
	JWTSecretMinLength = 32

	Ed25519PublicKeySize = 32
	Ed25519SignatureSize = 64

	MaxMessageLength      = 4000
	MaxClientMessageIDLen = 128
	ConsentPreviewLength  = 140
	DefaultMaxRequestSize = 1 << 20

	DefaultInboxMaxLen  = 1000
	DefaultOutboxMaxLen = 1000
	DefaultThreadMaxLen = 500
	DefaultListLimit    = 50
	MaxListLimit        = 500
	ConsentHistoryDepth = 50
	DefaultAuditLimit   = 100

	DefaultReplayWindow       = 300 * time.Second
	DefaultRotationRateLimit  = 1
	DefaultRotationRateWindow = time.Hour
	DefaultSessionTTL         = 24 * time.Hour
	DefaultCleanupCron        = "*/15 * * * *"

	DBPoolMaxConns        = 25
	DBPoolMinConns        = 5
	DBPoolConnMaxLifetime = time.Hour
	DBPoolConnMaxIdleTime = 30 * time.Minute
	DBPoolHealthCheck     = time.Minute
	DBPoolConnectTimeout  = 5 * time.Second
	DBPoolMaxAttempts     = 10
	DBPoolRetryDelay      = time.Second
	DBPoolMetricsInterval = 30 * time.Second

	ServerReadHeaderTimeout = 10 * time.Second
	ServerIdleTimeout       = 120 * time.Second

	ShutdownTimeout = 30 * time.Second
	DrainTimeout    = 10 * time.Second

	DefaultHTTPPort       = "8080"
	DefaultRequestTimeout = 5 * time.Second
	DefaultPebblePath     = "data/trust"

	DefaultCircuitBreakerThreshold = 50
	DefaultCircuitBreakerTimeout   = 10 * time.Second
	DefaultCircuitBreakerReset     = 10 * time.Second

	RateLimitCleanupInterval           = 5 * time.Minute
	RateLimitRegisterRequestsPerSecond = 0.2
	RateLimitRegisterBurst             = 3
	RateLimitLoginRequestsPerSecond    = 1
	RateLimitLoginBurst                = 5
	RateLimitRotateRequestsPerSecond   = 0.5
	RateLimitRotateBurst               = 3
	RateLimitGeneralRequestsPerSecond  = 20
	RateLimitGeneralBurst              = 40

	DefaultWebSocketWriteWait   = 10 * time.Second
	DefaultWebSocketPongWait    = 60 * time.Second
	DefaultWebSocketPingPeriod  = 54 * time.Second
	DefaultWebSocketMaxMsgSize  = 4 * 1024
	DefaultWebSocketSendBufSize = 64
	DefaultWebSocketSendTimeout = 2 * time.Second
	WebSocketReadBufferSize     = 1024
	WebSocketWriteBufferSize    = 1024

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28

	HeaderSystemKey = "X-System-Key"
	HeaderAdminKey  = "X-Admin-Key"
	HeaderTraceID   = "X-Trace-ID"
)

type TraceIDKeyType string

const TraceIDKey TraceIDKeyType = "trace_id"
