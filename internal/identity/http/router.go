package http

import (
	"net/http"
	"time"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	commonhttp "github.com/AlibekovAA/dh-trust/backend/internal/common/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/identity/service"
)

type recoveryKeyRequest struct {
	RecoveryPublicKey string `json:"recovery_public_key" validate:"required"`
}

type revokeResponse struct {
	Handle string `json:"handle"`
	Status string `json:"status"`
}

type Handler struct {
	identity *service.IdentityService
	verifier *jwtverify.Verifier
	adminKey string
	timeout  time.Duration
	log      *logger.Logger
}

func NewHandler(identity *service.IdentityService, verifier *jwtverify.Verifier, adminKey string, timeout time.Duration, log *logger.Logger) *Handler {
	return &Handler{
		identity: identity,
		verifier: verifier,
		adminKey: adminKey,
		timeout:  timeout,
		log:      log,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	withTimeout := commonhttp.WithTimeout(h.timeout)
	authed := h.verifier.Middleware(h.identity, h.log)

	mux.HandleFunc("GET /identity/{handle}", withTimeout(h.get))
	mux.HandleFunc("POST /identity/{handle}/recovery-key", withTimeout(authed(h.enrollRecoveryKey)))
	mux.HandleFunc("POST /admin/identity/{handle}/revoke", commonhttp.RequireAdminKey(h.adminKey, h.log)(withTimeout(h.revoke)))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity.Get(r.Context(), r.PathValue("handle"))
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	commonhttp.WriteJSON(w, http.StatusOK, service.NewView(identity))
}

func (h *Handler) enrollRecoveryKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle, err := identitydomain.NormalizeHandle(r.PathValue("handle"))
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	claims, _ := jwtverify.FromContext(ctx)
	if claims.Handle != handle {
		h.log.WithFields(ctx, logger.Fields{
			"handle":     handle,
			"token_user": claims.Handle,
			"action":     "recovery_key_forbidden",
		}).Warn("recovery key enrollment for another identity rejected")
		commonhttp.HandleError(w, r, commonerrors.ErrForbidden, h.log)
		return
	}

	var req recoveryKeyRequest
	if _, err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	identity, err := h.identity.EnrollRecoveryKey(ctx, handle, req.RecoveryPublicKey)
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	commonhttp.WriteJSON(w, http.StatusOK, service.NewView(identity))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	handle, err := identitydomain.NormalizeHandle(r.PathValue("handle"))
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	if err := h.identity.Revoke(r.Context(), handle); err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	commonhttp.WriteJSON(w, http.StatusOK, revokeResponse{Handle: handle, Status: string(identitydomain.StatusRevoked)})
}
