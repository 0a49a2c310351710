package http

import (
	"net/http"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/auth/service"
	commonhttp "github.com/AlibekovAA/dh-trust/backend/internal/common/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	identityservice "github.com/AlibekovAA/dh-trust/backend/internal/identity/service"
)

type registerRequest struct {
	Handle            string `json:"handle" validate:"required"`
	Password          string `json:"password" validate:"required"`
	PublicKey         string `json:"public_key" validate:"required"`
	RecoveryPublicKey string `json:"recovery_public_key"`
}

type loginRequest struct {
	Handle   string `json:"handle" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Token    string               `json:"token"`
	Identity identityservice.View `json:"identity"`
}

type Handler struct {
	auth     *service.AuthService
	limiters *commonhttp.StrictRateLimiter
	timeout  time.Duration
	log      *logger.Logger
}

func NewHandler(auth *service.AuthService, limiters *commonhttp.StrictRateLimiter, timeout time.Duration, log *logger.Logger) *Handler {
	return &Handler{auth: auth, limiters: limiters, timeout: timeout, log: log}
}

func (h *Handler) Register(mux *http.ServeMux) {
	withTimeout := commonhttp.WithTimeout(h.timeout)
	mux.HandleFunc("POST /identity/register", h.limiters.For(commonhttp.LimiterRegister)(withTimeout(h.register)))
	mux.HandleFunc("POST /identity/login", h.limiters.For(commonhttp.LimiterLogin)(withTimeout(h.login)))
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if _, err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	result, err := h.auth.Register(r.Context(), service.RegisterInput{
		Handle:            req.Handle,
		Password:          req.Password,
		PublicKey:         req.PublicKey,
		RecoveryPublicKey: req.RecoveryPublicKey,
	})
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	commonhttp.WriteJSON(w, http.StatusCreated, sessionResponse{
		Token:    result.Token,
		Identity: identityservice.NewView(result.Identity),
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if _, err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	result, err := h.auth.Login(r.Context(), service.LoginInput{
		Handle:   req.Handle,
		Password: req.Password,
	})
	if err != nil {
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, sessionResponse{
		Token:    result.Token,
		Identity: identityservice.NewView(result.Identity),
	})
}
