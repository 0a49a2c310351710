package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
)

func KeysEqual(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// RequireAdminKey rejects every request when no admin key is configured.
func RequireAdminKey(adminKey string, log *logger.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				WriteErrorEnvelope(w, http.StatusForbidden, CodeAdminDisabled, "admin api disabled", nil, TraceIDFromContext(r.Context()))
				return
			}
			if !KeysEqual(adminKey, r.Header.Get(constants.HeaderAdminKey)) {
				log.WithFields(r.Context(), logger.Fields{
					"path":      r.URL.Path,
					"client_ip": GetClientIP(r),
					"action":    "admin_key_rejected",
				}).Warn("admin request rejected")
				HandleError(w, r, commonerrors.ErrForbidden, log)
				return
			}
			next(w, r)
		}
	}
}
