package session

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/domain"
)

// WSConfig holds websocket channel tunables.
type WSConfig struct {
	SendBuffer   int
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		SendBuffer:   64,
		PingInterval: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// WSChannel adapts a gorilla websocket connection to the Channel
// interface. A dedicated writer goroutine owns all writes; Send never
// blocks the pipeline — when the buffer is full the message is dropped
// and counted.
type WSChannel struct {
	id      string
	userID  string
	conn    *websocket.Conn
	cfg     WSConfig
	logger  *zap.Logger
	send    chan domain.StreamMessage
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool

	connected  atomic.Bool
	lastActive atomic.Int64

	sent    atomic.Int64
	dropped atomic.Int64
}

// Compile-time check: WSChannel implements Channel.
var _ Channel = (*WSChannel)(nil)

// NewWSChannel wraps an upgraded websocket connection.
func NewWSChannel(conn *websocket.Conn, userID string, cfg WSConfig, logger *zap.Logger) *WSChannel {
	ch := &WSChannel{
		id:     "ch_" + uuid.NewString()[:8],
		userID: userID,
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		send:   make(chan domain.StreamMessage, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
	ch.connected.Store(true)
	ch.touch()
	return ch
}

// ID returns the channel id.
func (c *WSChannel) ID() string { return c.id }

// UserID returns the owning user id.
func (c *WSChannel) UserID() string { return c.userID }

// IsConnected reports whether the underlying connection is live.
func (c *WSChannel) IsConnected() bool { return c.connected.Load() }

// Send queues a message for the writer goroutine.
func (c *WSChannel) Send(msg domain.StreamMessage) error {
	if !c.connected.Load() {
		return domain.ErrChannelClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.dropped.Add(1)
		c.logger.Warn("channel send buffer full, dropping message",
			zap.String("channel_id", c.id),
			zap.String("type", string(msg.Type)))
		return nil
	}
}

// Run starts the read and write pumps and blocks until the connection
// closes. Inbound messages other than ping are handed to onMessage;
// ping is answered with pong and refreshes the liveness timestamp.
// Malformed messages are logged and ignored, the connection stays open.
func (c *WSChannel) Run(onMessage func(Inbound)) {
	go c.writePump()
	c.readPump(onMessage)
}

// Close tears the connection down. Idempotent.
func (c *WSChannel) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.connected.Store(false)
	close(c.done)
	_ = c.conn.Close()
}

// LastActive returns the last liveness refresh.
func (c *WSChannel) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *WSChannel) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *WSChannel) readPump(onMessage func(Inbound)) {
	defer c.Close()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error",
					zap.String("channel_id", c.id), zap.Error(err))
			}
			return
		}
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		if msgType != websocket.TextMessage {
			continue
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.logger.Warn("malformed client message, ignoring",
				zap.String("channel_id", c.id), zap.Error(err))
			continue
		}

		if in.Type == InPing {
			_ = c.Send(domain.StreamMessage{Type: domain.MsgPong, Timestamp: time.Now()})
			continue
		}
		onMessage(in)
	}
}

func (c *WSChannel) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("marshal stream message",
					zap.String("channel_id", c.id), zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("websocket write failed",
					zap.String("channel_id", c.id), zap.Error(err))
				return
			}
			c.sent.Add(1)
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
