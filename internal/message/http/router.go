package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
	commonhttp "github.com/AlibekovAA/dh-trust/backend/internal/common/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/service"
)

type sendRequest struct {
	ID        string          `json:"id"`
	From      string          `json:"from" validate:"required"`
	To        string          `json:"to" validate:"required"`
	Text      string          `json:"text"`
	Payload   json.RawMessage `json:"payload"`
	V         json.Number     `json:"v"`
	Nonce     string          `json:"nonce"`
	Signature string          `json:"signature"`
	Sig       string          `json:"sig"`
}

type sendResponse struct {
	Message           domain.Message       `json:"message"`
	Consent           domain.ConsentStatus `json:"consent"`
	Delivered         bool                 `json:"delivered"`
	Duplicate         bool                 `json:"duplicate"`
	SignatureVerified *bool                `json:"signatureVerified,omitempty"`
	SignatureReason   string               `json:"signatureReason,omitempty"`
}

type listResponse struct {
	User     string           `json:"user"`
	With     string           `json:"with,omitempty"`
	View     string           `json:"view"`
	Messages []domain.Message `json:"messages"`
}

type Handler struct {
	messages  *service.Service
	verifier  *jwtverify.Verifier
	checker   jwtverify.SessionChecker
	systemKey string
	limiters  *commonhttp.StrictRateLimiter
	timeout   time.Duration
	log       *logger.Logger
}

func NewHandler(
	messages *service.Service,
	verifier *jwtverify.Verifier,
	checker jwtverify.SessionChecker,
	systemKey string,
	limiters *commonhttp.StrictRateLimiter,
	timeout time.Duration,
	log *logger.Logger,
) *Handler {
	return &Handler{
		messages:  messages,
		verifier:  verifier,
		checker:   checker,
		systemKey: systemKey,
		limiters:  limiters,
		timeout:   timeout,
		log:       log,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	withTimeout := commonhttp.WithTimeout(h.timeout)
	limited := h.limiters.For(commonhttp.LimiterGeneral)

	mux.HandleFunc("POST /messages", limited(withTimeout(h.send)))
	mux.HandleFunc("GET /messages", limited(withTimeout(h.verifier.Middleware(h.checker, h.log)(h.list))))
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := commonhttp.ReadBody(r)
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	var req sendRequest
	if err := commonhttp.DecodeJSON(body, &req); err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	if err := commonhttp.ValidateStruct(&req); err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}
	var signed map[string]any
	if err := commonhttp.DecodeJSON(body, &signed); err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	if err := h.authorizeSender(r, req.From); err != nil {
		h.log.WithFields(ctx, logger.Fields{
			"from":      req.From,
			"client_ip": commonhttp.GetClientIP(r),
			"action":    "send_unauthorized",
		}).Warnf("send rejected: %v", err)
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	sig := req.Signature
	if sig == "" {
		sig = req.Sig
	}

	result, err := h.messages.Send(ctx, service.SendInput{
		ID:        req.ID,
		From:      req.From,
		To:        req.To,
		Text:      req.Text,
		Payload:   req.Payload,
		Version:   req.V,
		Nonce:     req.Nonce,
		Signature: sig,
		Body:      signed,
	})
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	msg := result.Message
	commonhttp.WriteJSON(w, status, sendResponse{
		Message:           msg,
		Consent:           msg.Consent,
		Delivered:         msg.Consent == domain.ConsentAccepted,
		Duplicate:         result.Duplicate,
		SignatureVerified: msg.SignatureVerified,
		SignatureReason:   msg.SignatureReason,
	})
}

// authorizeSender accepts a session token for from, or the system key when
// from is a system handle.
func (h *Handler) authorizeSender(r *http.Request, rawFrom string) error {
	from, err := identitydomain.NormalizeHandle(rawFrom)
	if err != nil {
		return err
	}

	if provided := r.Header.Get(constants.HeaderSystemKey); provided != "" {
		if h.messages.IsSystem(from) && commonhttp.KeysEqual(h.systemKey, provided) {
			return nil
		}
		return commonerrors.ErrForbidden
	}

	claims, err := h.verifier.Authenticate(r, h.checker)
	if err != nil {
		return err
	}
	if claims.Handle != from {
		return commonerrors.ErrForbidden
	}
	return nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	claims, _ := jwtverify.FromContext(ctx)

	user := claims.Handle
	if raw := query.Get("user"); raw != "" {
		handle, err := identitydomain.NormalizeHandle(raw)
		if err != nil {
			commonhttp.HandleError(w, r, err, h.log)
			return
		}
		user = handle
	}
	if user != claims.Handle {
		h.log.WithFields(ctx, logger.Fields{
			"user":       user,
			"token_user": claims.Handle,
			"action":     "list_forbidden",
		}).Warn("message listing for another identity rejected")
		commonhttp.HandleError(w, r, commonerrors.ErrForbidden, h.log)
		return
	}

	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	resp := listResponse{User: user}
	var msgs []domain.Message
	switch {
	case query.Get("with") != "":
		other, err := identitydomain.NormalizeHandle(query.Get("with"))
		if err != nil {
			commonhttp.HandleError(w, r, err, h.log)
			return
		}
		resp.With = other
		resp.View = "thread"
		msgs, err = h.messages.Thread(ctx, user, other, limit)
		if err != nil {
			commonhttp.HandleError(w, r, err, h.log)
			return
		}
	case query.Get("sent") == "true":
		resp.View = "outbox"
		msgs, err = h.messages.Outbox(ctx, user, limit)
	default:
		resp.View = "inbox"
		msgs, err = h.messages.Inbox(ctx, user, limit, query.Get("markRead") == "true")
	}
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	if msgs == nil {
		msgs = []domain.Message{}
	}
	resp.Messages = msgs
	commonhttp.WriteJSON(w, http.StatusOK, resp)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, commonerrors.ErrInvalidRequest.WithDetails(map[string]any{"field": "limit"})
	}
	return n, nil
}
