package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	sendBufferSize = 256
)

// ClientConn is the subset of *websocket.Conn the client leg needs.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// WriteData is one queued outbound message.
type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// clientHandler receives what the client leg reads.
type clientHandler interface {
	handleClientText(payload []byte)
	handleClientAudio(chunk []byte)
	handleClientGone(err error)
}

// client is the browser leg of a bridge.
type client struct {
	conn    ClientConn
	handler clientHandler
	logger  *zap.Logger

	pingPeriod time.Duration
	pongWait   time.Duration

	// Buffered channel of outbound messages.
	send chan WriteData

	mu         sync.Mutex
	closing    bool
	closeFrame []byte

	closeConnOnce sync.Once
	done          chan struct{}
}

func newClient(conn ClientConn, handler clientHandler, opts Options, logger *zap.Logger) *client {
	return &client{
		conn:       conn,
		handler:    handler,
		logger:     logger,
		pingPeriod: opts.PingPeriod,
		pongWait:   opts.PongWait,
		send:       make(chan WriteData, sendBufferSize),
		done:       make(chan struct{}),
	}
}

func (c *client) start() {
	go c.writePump()
	go c.readPump()
}

// enqueue queues a message without blocking. A full buffer drops the message.
func (c *client) enqueue(msg WriteData) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("Client send buffer full, dropping message",
			zap.Int("type", msg.Type),
			zap.Int("size", len(msg.Payload)))
		return false
	}
}

func (c *client) sendJSON(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode client message", zap.Error(err))
		return false
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *client) sendBinary(payload []byte) bool {
	return c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: payload})
}

// shutdown flushes what is queued, sends a close frame and waits up to grace
// for the write pump before closing the socket.
func (c *client) shutdown(code int, reason string, grace time.Duration) {
	c.mu.Lock()
	if !c.closing {
		c.closing = true
		c.closeFrame = websocket.FormatCloseMessage(code, reason)
		close(c.send)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
	case <-time.After(grace):
		c.logger.Warn("Client did not drain within grace period", zap.Duration("grace", grace))
	}
	c.closeConn()
}

func (c *client) closeConn() {
	c.closeConnOnce.Do(func() {
		c.conn.Close()
	})
}

// readPump pumps messages from the websocket connection to the bridge.
func (c *client) readPump() {
	var readErr error
	defer func() {
		c.handler.handleClientGone(readErr)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("Client connection error", zap.Error(err))
				readErr = err
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.handler.handleClientText(message)
		case websocket.BinaryMessage:
			c.handler.handleClientAudio(message)
		}
	}
}

// writePump pumps messages from the bridge to the websocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.mu.Lock()
				frame := c.closeFrame
				c.mu.Unlock()
				c.conn.WriteMessage(websocket.CloseMessage, frame)
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Debug("Failed to write client message", zap.Error(err))
				c.closeConn()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeConn()
				return
			}
		}
	}
}
