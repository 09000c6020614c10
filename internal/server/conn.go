package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"maestro/internal/logging"
	"maestro/internal/shared/jsonx"
)

// envelope is the bidirectional wire frame: {"type": ..., "content": ...}.
type envelope struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// inboundEnvelope defers content decoding to the handler for the type.
type inboundEnvelope struct {
	Type    string           `json:"type"`
	Content jsonx.RawMessage `json:"content"`
}

// Connection wraps one websocket client. All writes go through the outbound
// channel so the write pump is the only goroutine touching the socket for
// sends; Send is therefore safe from any goroutine.
type Connection struct {
	ws       *websocket.Conn
	outbound chan envelope

	closeOnce sync.Once
	closed    chan struct{}

	pingInterval time.Duration
	logger       logging.Logger
}

func newConnection(ws *websocket.Conn, maxMessageBytes int64, pingInterval time.Duration) *Connection {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ws.SetReadLimit(maxMessageBytes)

	conn := &Connection{
		ws:           ws,
		outbound:     make(chan envelope, 256),
		closed:       make(chan struct{}),
		pingInterval: pingInterval,
		logger:       logging.NewComponentLogger("Connection"),
	}

	pongWait := 2*pingInterval + 10*time.Second
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go conn.writePump()
	return conn
}

// Send queues one envelope. After Close (or a dead peer) emissions become
// no-op errors rather than blocking the pipeline.
func (c *Connection) Send(msgType string, content any) error {
	select {
	case <-c.closed:
		return fmt.Errorf("connection closed")
	default:
	}
	select {
	case c.outbound <- envelope{Type: msgType, Content: content}:
		return nil
	case <-c.closed:
		return fmt.Errorf("connection closed")
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.outbound:
			data, err := jsonx.Marshal(env)
			if err != nil {
				c.logger.Warn("Encode %s envelope: %v", env.Type, err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// ReadEnvelope blocks for the next inbound frame.
func (c *Connection) ReadEnvelope() (*inboundEnvelope, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var env inboundEnvelope
	if err := jsonx.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	return &env, nil
}

// Close tears the socket down once; concurrent calls are safe.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
