package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	commonhttp "github.com/AlibekovAA/dh-trust/backend/internal/common/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/consent/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/consent/service"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
)

type pendingResponse struct {
	User    string          `json:"user"`
	Pending []domain.Record `json:"pending"`
}

type Handler struct {
	engine   *service.Engine
	verifier *jwtverify.Verifier
	checker  jwtverify.SessionChecker
	timeout  time.Duration
	log      *logger.Logger
}

func NewHandler(engine *service.Engine, verifier *jwtverify.Verifier, checker jwtverify.SessionChecker, timeout time.Duration, log *logger.Logger) *Handler {
	return &Handler{
		engine:   engine,
		verifier: verifier,
		checker:  checker,
		timeout:  timeout,
		log:      log,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	withTimeout := commonhttp.WithTimeout(h.timeout)
	authed := h.verifier.Middleware(h.checker, h.log)

	mux.HandleFunc("GET /consent/pending", withTimeout(authed(h.pending)))
	mux.HandleFunc("POST /consent/{handle}/accept", withTimeout(authed(h.accept)))
	mux.HandleFunc("POST /consent/{handle}/block", withTimeout(authed(h.block)))
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := jwtverify.FromContext(ctx)

	user := claims.Handle
	if raw := r.URL.Query().Get("user"); raw != "" {
		handle, err := identitydomain.NormalizeHandle(raw)
		if err != nil {
			commonhttp.HandleError(w, r, err, h.log)
			return
		}
		if handle != claims.Handle {
			commonhttp.HandleError(w, r, commonerrors.ErrForbidden, h.log)
			return
		}
		user = handle
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			commonhttp.HandleError(w, r, commonerrors.ErrInvalidRequest.WithDetails(map[string]any{"field": "limit"}), h.log)
			return
		}
		limit = n
	}

	records, err := h.engine.Pending(ctx, user, limit)
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	commonhttp.WriteJSON(w, http.StatusOK, pendingResponse{User: user, Pending: records})
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Accept)
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Block)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, owner, other string) (domain.Record, error)) {
	ctx := r.Context()
	other, err := identitydomain.NormalizeHandle(r.PathValue("handle"))
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	claims, _ := jwtverify.FromContext(ctx)
	record, err := action(ctx, claims.Handle, other)
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	commonhttp.WriteJSON(w, http.StatusOK, record)
}
