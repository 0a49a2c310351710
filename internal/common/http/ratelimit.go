package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

// RateLimiter is a per-client token bucket guarding the HTTP surface. It is
// process-local and only sheds load; the rotation limit lives in the shared TTL store.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	name     string
	stop     chan struct{}
	once     sync.Once
}

func NewRateLimiter(name string, requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		name:     name,
		stop:     make(chan struct{}),
	}

	go rl.cleanupLimiters(constants.RateLimitCleanupInterval)

	return rl
}

func (rl *RateLimiter) cleanupLimiters(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for key, limiter := range rl.limiters {
				if limiter.Tokens() >= float64(rl.burst) {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

func (rl *RateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			metrics.RateLimitBlocked.WithLabelValues(rl.name).Inc()
			WriteErrorEnvelope(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", nil, TraceIDFromContext(r.Context()))
			return
		}
		next(w, r)
	}
}

type LimiterKind string

const (
	LimiterRegister LimiterKind = "register"
	LimiterLogin    LimiterKind = "login"
	LimiterRotate   LimiterKind = "rotate"
	LimiterGeneral  LimiterKind = "general"
)

type StrictRateLimiter struct {
	limiters map[LimiterKind]*RateLimiter
}

func NewStrictRateLimiter() *StrictRateLimiter {
	return &StrictRateLimiter{
		limiters: map[LimiterKind]*RateLimiter{
			LimiterRegister: NewRateLimiter(string(LimiterRegister), constants.RateLimitRegisterRequestsPerSecond, constants.RateLimitRegisterBurst),
			LimiterLogin:    NewRateLimiter(string(LimiterLogin), constants.RateLimitLoginRequestsPerSecond, constants.RateLimitLoginBurst),
			LimiterRotate:   NewRateLimiter(string(LimiterRotate), constants.RateLimitRotateRequestsPerSecond, constants.RateLimitRotateBurst),
			LimiterGeneral:  NewRateLimiter(string(LimiterGeneral), constants.RateLimitGeneralRequestsPerSecond, constants.RateLimitGeneralBurst),
		},
	}
}

// For is safe on a nil receiver, which disables limiting.
func (srl *StrictRateLimiter) For(kind LimiterKind) func(http.HandlerFunc) http.HandlerFunc {
	if srl == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}
	limiter, ok := srl.limiters[kind]
	if !ok {
		limiter = srl.limiters[LimiterGeneral]
	}
	return limiter.Wrap
}

func (srl *StrictRateLimiter) Stop() {
	if srl == nil {
		return
	}
	for _, l := range srl.limiters {
		l.Stop()
	}
}
