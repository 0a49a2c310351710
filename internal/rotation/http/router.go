package http

import (
	"net/http"
	"strconv"
	"time"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	commonhttp "github.com/AlibekovAA/dh-trust/backend/internal/common/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/rotation/service"
)

type proofRequest struct {
	NewPublicKey string `json:"new_public_key" validate:"required"`
	Timestamp    any    `json:"timestamp" validate:"required"`
	Nonce        string `json:"nonce" validate:"required"`
	Signature    string `json:"signature" validate:"required"`
}

type rotateRequest struct {
	NewPublicKey string       `json:"new_public_key" validate:"required"`
	Proof        proofRequest `json:"proof"`
}

type rotateResponse struct {
	Handle              string `json:"handle"`
	NewPublicKey        string `json:"new_public_key"`
	KeyRotatedAt        int64  `json:"key_rotated_at"`
	SessionsInvalidated bool   `json:"sessions_invalidated"`
	Token               string `json:"token"`
}

type auditResponse struct {
	Handle  string              `json:"handle"`
	Entries []domain.AuditEntry `json:"entries"`
}

type Handler struct {
	rotation *service.RotationService
	limiters *commonhttp.StrictRateLimiter
	adminKey string
	timeout  time.Duration
	log      *logger.Logger
}

func NewHandler(rotation *service.RotationService, limiters *commonhttp.StrictRateLimiter, adminKey string, timeout time.Duration, log *logger.Logger) *Handler {
	return &Handler{
		rotation: rotation,
		limiters: limiters,
		adminKey: adminKey,
		timeout:  timeout,
		log:      log,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	withTimeout := commonhttp.WithTimeout(h.timeout)
	mux.HandleFunc("POST /identity/{handle}/rotate", h.limiters.For(commonhttp.LimiterRotate)(withTimeout(h.rotate)))
	mux.HandleFunc("GET /admin/identity/{handle}/audit", commonhttp.RequireAdminKey(h.adminKey, h.log)(withTimeout(h.audit)))
}

func (h *Handler) rotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	input := service.RotateInput{
		Handle:    r.PathValue("handle"),
		ClientIP:  commonhttp.GetClientIP(r),
		UserAgent: r.UserAgent(),
		TraceID:   commonhttp.TraceIDFromContext(ctx),
	}

	var req rotateRequest
	if _, err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		// Malformed attempts are audited as well.
		h.rotation.RecordRejected(ctx, input, err)
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	input.NewPublicKey = req.NewPublicKey
	input.Proof = service.Proof{
		NewPublicKey: req.Proof.NewPublicKey,
		Timestamp:    req.Proof.Timestamp,
		Nonce:        req.Proof.Nonce,
		Signature:    req.Proof.Signature,
	}

	result, err := h.rotation.Rotate(ctx, input)
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, rotateResponse{
		Handle:              result.Handle,
		NewPublicKey:        result.NewPublicKey,
		KeyRotatedAt:        result.KeyRotatedAt.UnixMilli(),
		SessionsInvalidated: true,
		Token:               result.Token,
	})
}

func (h *Handler) audit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			commonhttp.HandleError(w, r, commonerrors.ErrInvalidRequest.WithDetails(map[string]any{"field": "limit"}), h.log)
			return
		}
		limit = n
	}

	entries, err := h.rotation.Audit(r.Context(), r.PathValue("handle"), limit)
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	commonhttp.WriteJSON(w, http.StatusOK, auditResponse{Handle: r.PathValue("handle"), Entries: entries})
}
