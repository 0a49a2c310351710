package realtime

import (
	"context"
	"sync"
	"time"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/logger"
	"github.com/AlibekovAA/dh-trust/backend/internal/observability/metrics"
)

type ClientConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// Client is one websocket connection of an authenticated handle. The server
// only pushes; inbound frames other than control frames are discarded.
type Client struct {
	hub    *Hub
	conn   *gorillaWS.Conn
	handle string
	send   chan []byte
	cfg    ClientConfig
	log    *logger.Logger
	ctx    context.Context

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(ctx context.Context, hub *Hub, conn *gorillaWS.Conn, handle string, cfg ClientConfig, log *logger.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		handle: handle,
		send:   make(chan []byte, cfg.SendBufferSize),
		done:   make(chan struct{}),
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
	}
}

func (c *Client) Handle() string {
	return c.handle
}

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// enqueue hands a frame to the write pump, giving up after timeout or once
// the client is closed.
func (c *Client) enqueue(frame []byte, timeout time.Duration) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	case <-timer.C:
		return false
	}
}

// close stops the write pump after it flushes frames already queued.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	reason := "client_closed"
	defer func() {
		metrics.RealtimeDisconnections.WithLabelValues(reason).Inc()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if gorillaWS.IsUnexpectedCloseError(err, gorillaWS.CloseGoingAway, gorillaWS.CloseAbnormalClosure) {
				reason = "read_error"
				c.log.WithFields(c.ctx, logger.Fields{
					"handle": c.handle,
					"action": "ws_read_error",
				}).Warnf("websocket read error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(gorillaWS.TextMessage, frame); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(gorillaWS.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(gorillaWS.TextMessage, frame); err != nil {
				return
			}
		default:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(gorillaWS.CloseMessage, []byte{})
			return
		}
	}
}
