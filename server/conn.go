package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBufSize = 256

	writeWait = 10 * time.Second
	// pongWait must exceed pingPeriod so a healthy peer always answers
	// in time.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// wireMessage is the envelope every message travels in, both directions.
type wireMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// inboundMessage defers payload decoding to the dispatched handler.
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func marshalEvent(event string, data any) ([]byte, error) {
	return json.Marshal(wireMessage{Event: event, Data: data})
}

// Conn wraps one websocket connection with a buffered outbound queue so
// a slow peer never blocks a broadcast loop.
type Conn struct {
	id string
	ws *websocket.Conn

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}

	log slog.Logger
}

func newConn(ws *websocket.Conn, log slog.Logger) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBufSize),
		done: make(chan struct{}),
		log:  log,
	}
}

// enqueue queues b for delivery without blocking. A full buffer counts as
// a transport failure for this one message.
func (c *Conn) enqueue(b []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection %s closed", c.id)
	default:
	}

	select {
	case c.send <- b:
		return nil
	default:
		return fmt.Errorf("send buffer full for connection %s", c.id)
	}
}

// sendEvent marshals and queues a single event for this connection only.
func (c *Conn) sendEvent(event string, data any) {
	b, err := marshalEvent(event, data)
	if err != nil {
		c.log.Errorf("marshal %s event: %v", event, err)
		return
	}
	if err := c.enqueue(b); err != nil {
		c.log.Debugf("drop %s event: %v", event, err)
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// readLoop pumps inbound frames into dispatch until the peer goes away.
// It runs on the connection's own goroutine; returning means the
// connection is dead.
func (c *Conn) readLoop(dispatch func(*Conn, []byte)) {
	defer c.close()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debugf("connection %s read error: %v", c.id, err)
			}
			return
		}
		if msgType == websocket.TextMessage {
			dispatch(c, msg)
		}
	}
}

// writeLoop drains the send queue and keeps the peer alive with pings.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
