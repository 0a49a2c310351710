package realtime

import (
	"context"
	"net/http"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
	commonhttp "github.com/AlibekovAA/dh-trust/backend/internal/common/http"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
)

type Handler struct {
	hub      *Hub
	verifier *jwtverify.Verifier
	checker  jwtverify.SessionChecker
	upgrader gorillaWS.Upgrader
	cfg      ClientConfig
	log      *logger.Logger
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:      constants.DefaultWebSocketWriteWait,
		PongWait:       constants.DefaultWebSocketPongWait,
		PingPeriod:     constants.DefaultWebSocketPingPeriod,
		MaxMessageSize: constants.DefaultWebSocketMaxMsgSize,
		SendBufferSize: constants.DefaultWebSocketSendBufSize,
	}
}

func NewHandler(hub *Hub, verifier *jwtverify.Verifier, checker jwtverify.SessionChecker, cfg ClientConfig, log *logger.Logger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		checker:  checker,
		cfg:      cfg,
		log:      log,
		upgrader: gorillaWS.Upgrader{
			ReadBufferSize:  constants.WebSocketReadBufferSize,
			WriteBufferSize: constants.WebSocketWriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.serve)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, err := h.verifier.Authenticate(r, h.checker)
	if err != nil {
		h.log.WithFields(ctx, logger.Fields{
			"client_ip": commonhttp.GetClientIP(r),
			"action":    "ws_auth_failed",
		}).Warnf("websocket auth failed: %v", err)
		commonhttp.HandleError(w, r, err, h.log)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithFields(ctx, logger.Fields{
			"handle": claims.Handle,
			"action": "ws_upgrade_failed",
		}).Errorf("websocket upgrade failed: %v", err)
		return
	}

	// The connection outlives the request context.
	client := NewClient(context.WithoutCancel(ctx), h.hub, conn, claims.Handle, h.cfg, h.log)
	h.hub.Register(client)
	client.Start()
}
