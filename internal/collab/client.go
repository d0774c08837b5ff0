package collab

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"inkboard/internal/models"
)

type client struct {
	id   string
	hub  *Hub
	user *models.User
	conn *websocket.Conn

	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string

	// presence is guarded by the room mutex.
	presence Collaborator
}

func newClient(h *Hub, conn *websocket.Conn, user *models.User) *client {
	return &client{
		id:         uuid.NewString(),
		hub:        h,
		user:       user,
		conn:       conn,
		send:       make(chan []byte, h.clientBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// enqueue queues msg without blocking. It reports false when the buffer is
// full or the client is closing.
func (c *client) enqueue(msg []byte) bool {
	if c.closing() {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// closeWith asks the writer to send a close frame and hang up.
func (c *client) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *client) writeLoop() {
	defer close(c.writerDone)
	defer c.conn.Close()

	ticker := time.NewTicker(c.hub.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeReason),
				time.Now().Add(c.hub.writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.hub.writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *client) readLoop(r *room) {
	c.conn.SetReadLimit(c.hub.maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				c.hub.logger.Warn("sync message too big", "board_id", r.boardID, "socket_id", c.id)
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				c.hub.logger.Debug("sync socket closed", "board_id", r.boardID, "socket_id", c.id, "error", err)
			}
			return
		}
		c.handle(r, data)
	}
}

func (c *client) handle(r *room, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError("invalid message")
		return
	}

	switch env.Type {
	case MsgSceneInit, MsgSceneUpdate:
		var payload ScenePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.sendError("invalid elements: " + err.Error())
			return
		}
		r.applyElements(c, payload.Elements)
	case MsgPointerUpdate:
		var payload PointerPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.sendError("invalid pointer")
			return
		}
		r.updatePointer(c, payload)
	case MsgIdleStatus:
		var payload IdlePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || !models.IsValidIdleState(payload.State) {
			c.sendError("invalid idle status")
			return
		}
		r.updateIdle(c, payload.State)
	default:
		c.sendError("unknown message type: " + env.Type)
	}
}

func (c *client) sendError(message string) {
	msg, err := encodeMessage(MsgError, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	if !c.enqueue(msg) {
		c.closeWith(websocket.CloseTryAgainLater, "client buffer full")
	}
}
