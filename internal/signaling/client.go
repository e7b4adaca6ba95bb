package signaling

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/BioHazard786/Nexus/internal/metrics"
)

// ClientConfig holds the per-connection limits.
type ClientConfig struct {
	// SendQueueSize bounds the outbound queue; overflowing messages are dropped.
	SendQueueSize int

	// MaxMessageBytes is the largest frame accepted from the peer.
	MaxMessageBytes int64

	// PongWait is how long to wait for the next pong before giving up on the
	// peer. Pings are sent at 9/10 of this period.
	PongWait time.Duration

	// WriteWait is the time allowed to write a single frame.
	WriteWait time.Duration

	// MessagesPerSecond and MessageBurst rate limit inbound frames. A rate of
	// zero or less disables limiting.
	MessagesPerSecond float64
	MessageBurst      int
}

// DefaultClientConfig returns the limits used when a field is left zero.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SendQueueSize:     256,
		MaxMessageBytes:   64 * 1024, // enough for SDP with many candidates
		PongWait:          60 * time.Second,
		WriteWait:         10 * time.Second,
		MessagesPerSecond: 50,
		MessageBurst:      100,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	def := DefaultClientConfig()
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = def.MaxMessageBytes
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = def.MessageBurst
	}
	return c
}

// Client is a wrapper for a single websocket connection (a peer).
type Client struct {
	// ID is the opaque identity announced to room-mates.
	ID ConnID

	hub  *Hub
	conn *websocket.Conn
	cfg  ClientConfig

	// send is the bounded outbound queue. Only the hub writes to and closes it;
	// WritePump drains it.
	send chan []byte

	limiter *rate.Limiter
}

// NewClient wraps an upgraded connection and assigns it a fresh identity.
func NewClient(hub *Hub, conn *websocket.Conn, cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()

	var limiter *rate.Limiter
	if cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst)
	}

	return &Client{
		ID:      ConnID(uuid.NewString()),
		hub:     hub,
		conn:    conn,
		cfg:     cfg,
		send:    make(chan []byte, cfg.SendQueueSize),
		limiter: limiter,
	}
}

// enqueue hands a frame to the write pump without blocking. It reports false
// when the queue is full.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.log.Warn("connection closed unexpectedly", "conn", c.ID, "err", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.metrics.Inc(metrics.MessagesRateLimited)
			c.hub.log.Debug("rate limited, dropping message", "conn", c.ID)
			continue
		}

		if msgType != websocket.TextMessage {
			c.hub.metrics.Inc(metrics.MessagesMalformed)
			c.hub.log.Debug("ignoring non-text frame", "conn", c.ID)
			continue
		}

		in, err := DecodeInbound(data)
		if err != nil {
			c.hub.metrics.Inc(metrics.MessagesMalformed)
			c.hub.log.Debug("ignoring message", "conn", c.ID, "err", err, "unknown_type", errors.Is(err, ErrUnknownType))
			continue
		}
		in.From = c.ID

		if !c.hub.Submit(in) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("write failed", "conn", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
