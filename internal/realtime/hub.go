package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/clock"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

// Hub tracks one live connection per handle and pushes events to it. A newer
// connection for the same handle replaces the older one.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	register    chan *Client
	unregister  chan *Client
	done        chan struct{}
	sendTimeout time.Duration
	clock       clock.Clock
	log         *logger.Logger
}

func NewHub(sendTimeout time.Duration, clk clock.Clock, log *logger.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		sendTimeout: sendTimeout,
		clock:       clk,
		log:         log,
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			existing, ok := h.clients[client.handle]
			h.clients[client.handle] = client
			total := len(h.clients)
			h.mu.Unlock()

			if ok {
				existing.close()
				h.log.WithFields(client.ctx, logger.Fields{
					"handle": client.handle,
					"action": "ws_close_existing",
				}).Info("websocket closing existing connection")
			} else {
				metrics.RealtimeConnectionsActive.Inc()
			}
			h.log.WithFields(client.ctx, logger.Fields{
				"handle": client.handle,
				"total":  total,
				"action": "ws_register",
			}).Info("websocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[client.handle]
			if ok && current == client {
				delete(h.clients, client.handle)
			}
			h.mu.Unlock()

			if ok && current == client {
				metrics.RealtimeConnectionsActive.Dec()
				h.log.WithFields(client.ctx, logger.Fields{
					"handle": client.handle,
					"action": "ws_unregister",
				}).Info("websocket client unregistered")
			}
			client.close()
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	frame, _ := json.Marshal(Envelope{Type: TypeShutdown, SentAt: h.clock.Now().UnixMilli()})

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for handle, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, handle)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.enqueue(frame, h.sendTimeout)
		client.close()
		metrics.RealtimeConnectionsActive.Dec()
	}

	h.log.WithFields(context.Background(), logger.Fields{
		"clients": len(clients),
		"action":  "ws_hub_shutdown",
	}).Info("websocket hub shutdown completed")
}

func (h *Hub) IsOnline(handle string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[handle]
	return ok
}

// Notify pushes event to handle if it is connected. Delivery is best effort;
// stored messages stay the source of truth.
func (h *Hub) Notify(ctx context.Context, to, event string, payload any) {
	h.mu.RLock()
	client, ok := h.clients[to]
	h.mu.RUnlock()
	if !ok {
		metrics.RealtimeDeliveriesTotal.WithLabelValues(event, "offline").Inc()
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.WithFields(ctx, logger.Fields{
			"handle": to,
			"type":   event,
			"action": "ws_marshal",
		}).Errorf("websocket marshal error: %v", err)
		return
	}
	frame, err := json.Marshal(Envelope{Type: event, Payload: raw, SentAt: h.clock.Now().UnixMilli()})
	if err != nil {
		return
	}

	if !client.enqueue(frame, h.sendTimeout) {
		metrics.RealtimeDeliveriesTotal.WithLabelValues(event, "dropped").Inc()
		h.log.WithFields(ctx, logger.Fields{
			"handle": to,
			"type":   event,
			"action": "ws_send_timeout",
		}).Warn("websocket send timed out")
		return
	}
	metrics.RealtimeDeliveriesTotal.WithLabelValues(event, "delivered").Inc()
}
