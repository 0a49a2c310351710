package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
)

const (
	BackendPostgres = "postgres"
	BackendPebble   = "pebble"
)

type TrustConfig struct {
	HTTPPort        string
	JWTSecret       string
	SessionTTL      time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	DrainTimeout    time.Duration

	StorageBackend string
	DatabaseURL    string
	PebblePath     string

	SystemAPIKey string
	AdminAPIKey  string

	CleanupCron string

	LogDir   string
	LogLevel string

	Policy Policy
}

// Policy holds the trust settings that may also come from TRUST_POLICY_FILE.
type Policy struct {
	SignatureEnforcement      string
	ReplayWindow              time.Duration
	RotationRateLimit         int
	RotationRateWindow        time.Duration
	SystemHandles             []string
	ConsentGrandfatherPending bool
	InboxMaxLen               int
	OutboxMaxLen              int
	ThreadMaxLen              int
}

func DefaultPolicy() Policy {
	return Policy{
		SignatureEnforcement:      "log",
		ReplayWindow:              constants.DefaultReplayWindow,
		RotationRateLimit:         constants.DefaultRotationRateLimit,
		RotationRateWindow:        constants.DefaultRotationRateWindow,
		SystemHandles:             []string{"system"},
		ConsentGrandfatherPending: true,
		InboxMaxLen:               constants.DefaultInboxMaxLen,
		OutboxMaxLen:              constants.DefaultOutboxMaxLen,
		ThreadMaxLen:              constants.DefaultThreadMaxLen,
	}
}

// Load reads an optional .env file, then the environment, then the optional
// policy file. Values from the policy file override policy env vars.
func Load() (TrustConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return TrustConfig{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFromEnv()
}

func LoadFromEnv() (TrustConfig, error) {
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return TrustConfig{}, err
	}
	if err := validateJWTSecret(jwtSecret); err != nil {
		return TrustConfig{}, err
	}

	cfg := TrustConfig{
		HTTPPort:        getEnv("HTTP_PORT", constants.DefaultHTTPPort),
		JWTSecret:       jwtSecret,
		SessionTTL:      getDurationEnv("SESSION_TTL", constants.DefaultSessionTTL),
		RequestTimeout:  getDurationEnv("REQUEST_TIMEOUT", constants.DefaultRequestTimeout),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", constants.ShutdownTimeout),
		DrainTimeout:    getDurationEnv("DRAIN_TIMEOUT", constants.DrainTimeout),
		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", BackendPostgres)),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		PebblePath:      getEnv("PEBBLE_PATH", constants.DefaultPebblePath),
		SystemAPIKey:    getEnv("SYSTEM_API_KEY", ""),
		AdminAPIKey:     getEnv("ADMIN_API_KEY", ""),
		CleanupCron:     getEnv("CLEANUP_CRON", constants.DefaultCleanupCron),
		LogDir:          getEnv("LOG_DIR", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Policy:          policyFromEnv(),
	}

	if path := getEnv("TRUST_POLICY_FILE", ""); path != "" {
		if err := applyPolicyFile(path, &cfg.Policy); err != nil {
			return TrustConfig{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return TrustConfig{}, err
	}
	return cfg, nil
}

func policyFromEnv() Policy {
	p := DefaultPolicy()
	p.SignatureEnforcement = strings.ToLower(getEnv("SIGNATURE_ENFORCEMENT", p.SignatureEnforcement))
	p.ReplayWindow = getDurationEnv("REPLAY_WINDOW", p.ReplayWindow)
	p.RotationRateLimit = getIntEnv("ROTATION_RATE_LIMIT", p.RotationRateLimit)
	p.RotationRateWindow = getDurationEnv("ROTATION_RATE_WINDOW", p.RotationRateWindow)
	if v := getEnv("SYSTEM_HANDLES", ""); v != "" {
		p.SystemHandles = splitList(v)
	}
	p.ConsentGrandfatherPending = getBoolEnv("CONSENT_GRANDFATHER_PENDING", p.ConsentGrandfatherPending)
	p.InboxMaxLen = getIntEnv("INBOX_MAX_LEN", p.InboxMaxLen)
	p.OutboxMaxLen = getIntEnv("OUTBOX_MAX_LEN", p.OutboxMaxLen)
	p.ThreadMaxLen = getIntEnv("THREAD_MAX_LEN", p.ThreadMaxLen)
	return p
}

func (c TrustConfig) validate() error {
	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL", commonerrors.ErrMissingRequiredEnv)
		}
	case BackendPebble:
		if c.PebblePath == "" {
			return fmt.Errorf("%w: PEBBLE_PATH", commonerrors.ErrMissingRequiredEnv)
		}
	default:
		return fmt.Errorf("%w: STORAGE_BACKEND must be postgres or pebble, got %q", commonerrors.ErrInvalidConfig, c.StorageBackend)
	}
	if c.RequestTimeout <= 0 || c.ShutdownTimeout <= 0 || c.DrainTimeout <= 0 {
		return fmt.Errorf("%w: request, shutdown and drain timeouts must be positive", commonerrors.ErrInvalidConfig)
	}
	if c.DrainTimeout > c.ShutdownTimeout {
		return fmt.Errorf("%w: DRAIN_TIMEOUT exceeds SHUTDOWN_TIMEOUT", commonerrors.ErrInvalidConfig)
	}
	return c.Policy.Validate()
}

func (p Policy) Validate() error {
	switch p.SignatureEnforcement {
	case "off", "log", "reject":
	default:
		return fmt.Errorf("%w: signature enforcement must be off, log or reject, got %q", commonerrors.ErrInvalidConfig, p.SignatureEnforcement)
	}
	if p.ReplayWindow <= 0 {
		return fmt.Errorf("%w: replay window must be positive", commonerrors.ErrInvalidConfig)
	}
	if p.RotationRateLimit < 1 || p.RotationRateWindow <= 0 {
		return fmt.Errorf("%w: rotation rate limit and window must be positive", commonerrors.ErrInvalidConfig)
	}
	if p.InboxMaxLen < 1 || p.OutboxMaxLen < 1 || p.ThreadMaxLen < 1 {
		return fmt.Errorf("%w: list bounds must be positive", commonerrors.ErrInvalidConfig)
	}
	return nil
}

func validateJWTSecret(secret string) error {
	if len(secret) < constants.JWTSecretMinLength {
		return fmt.Errorf("%w: got %d bytes", commonerrors.ErrInvalidJWTSecret, len(secret))
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func mustEnv(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", commonerrors.ErrMissingRequiredEnv, key)
	}
	return v, nil
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getIntEnv(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBoolEnv(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
