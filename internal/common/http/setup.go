package http

import (
	"net/http"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/httpmetrics"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
)

// BuildBaseHandler wraps the REST mux. Trace ids are assigned before recovery
// so a recovered panic still reports one.
func BuildBaseHandler(log *logger.Logger, handler http.Handler) http.Handler {
	collector := httpmetrics.New()
	limitBody := MaxRequestSizeMiddleware(constants.DefaultMaxRequestSize)

	return SecurityHeadersMiddleware(TraceIDMiddleware(RecoveryMiddleware(log)(limitBody(collector.Wrap(handler)))))
}
