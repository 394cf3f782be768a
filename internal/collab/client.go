package collab

import (
	"encoding/json"
	"sync"
	"time"

	"collab-server/internal/models"
	"collab-server/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
)

// Client is one authenticated duplex connection. Identity is fixed at
// handshake time; the room pointer is owned by the hub goroutine and must
// not be touched anywhere else.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once

	id       string
	identity models.Identity
	room     *RoomSession
}

func NewClient(hub *Hub, conn *websocket.Conn, identity models.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.sendBufferSize),
		done:     make(chan struct{}),
		id:       uuid.NewString(),
		identity: identity,
	}
}

// ID is the server-internal connection identifier; it is never sent to
// clients.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) Identity() models.Identity {
	return c.identity
}

// shutdown releases the write pump. Safe to call more than once and from
// any goroutine.
func (c *Client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
}

// enqueue hands a frame to the write pump without ever blocking the caller.
// Returns false if the client is gone or its buffer is full.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// sendEvent marshals an envelope and enqueues it. Usable from any goroutine.
func (c *Client) sendEvent(event models.EventType, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error marshaling %s payload: %v", event, err)
		return true
	}
	frame, err := json.Marshal(models.Envelope{Event: event, Data: data})
	if err != nil {
		logger.Error("Error marshaling %s envelope: %v", event, err)
		return true
	}
	return c.enqueue(frame)
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	// Read deadline and pong handler for connection health
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			c.sendEvent(models.EventError, models.ErrorPayload{Message: "invalid message format"})
			continue
		}

		select {
		case c.hub.events <- inboundEvent{client: c, env: env}:
		case <-c.done:
			return
		case <-c.hub.shutdown:
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
