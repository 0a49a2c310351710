package http

import (
	"context"
	"net/http"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteErrorEnvelope(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed", nil, "")
			return
		}
		log.Debug("health check request")
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyHandler reports 503 while the storage backend cannot be reached.
func ReadyHandler(storage Pinger, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := storage.Ping(ctx); err != nil {
			log.WithFields(ctx, logger.Fields{
				"action": "readiness_failed",
			}).Warnf("readiness check failed: %v", err)
			WriteErrorEnvelope(w, http.StatusServiceUnavailable, CodeNotReady, "storage unavailable", nil, TraceIDFromContext(ctx))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
