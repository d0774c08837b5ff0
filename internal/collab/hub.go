// Package collab runs live collaboration rooms over WebSocket.
package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"inkboard/internal/models"
)

// Name is the service manager key.
const Name = "excalidrawSync"

const (
	defaultMaxMessageBytes = 4 << 20
	defaultClientBuffer    = 64
	defaultPersistDebounce = 2 * time.Second
	defaultWriteWait       = 10 * time.Second
	defaultPongWait        = 60 * time.Second
	persistTimeout         = 10 * time.Second
)

// ErrHubClosed is returned by Serve after shutdown started.
var ErrHubClosed = errors.New("sync hub is closed")

// Boards is the board storage a room reads from and persists to.
type Boards interface {
	Authorize(ctx context.Context, user *models.User, boardID string) error
	// LoadScene returns the stored scene and its version.
	LoadScene(ctx context.Context, boardID string) (models.Scene, int64, error)
	// PersistScene saves scene when the board is still at expectedVersion and
	// returns the new version. When the board has moved on, saved is false and
	// version is the current one.
	PersistScene(ctx context.Context, boardID string, scene models.Scene, expectedVersion int64) (version int64, saved bool, err error)
}

// Options configures the hub.
type Options struct {
	Boards          Boards
	MaxMessageBytes int64
	ClientBuffer    int
	PersistDebounce time.Duration
	WriteWait       time.Duration
	PongWait        time.Duration
	CheckOrigin     func(r *http.Request) bool
	Logger          *slog.Logger
}

// Hub owns every live room, keyed by board id.
type Hub struct {
	boards          Boards
	maxMessageBytes int64
	clientBuffer    int
	persistDebounce time.Duration
	writeWait       time.Duration
	pongWait        time.Duration
	pingPeriod      time.Duration
	upgrader        websocket.Upgrader
	logger          *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
	wg     sync.WaitGroup
}

// RoomInfo summarizes a live room.
type RoomInfo struct {
	BoardID       string         `json:"boardId"`
	Collaborators []Collaborator `json:"collaborators"`
	ElementCount  int            `json:"elementCount"`
}

// NewHub builds a hub.
func NewHub(opts Options) (*Hub, error) {
	if opts.Boards == nil {
		return nil, fmt.Errorf("board storage is required")
	}
	h := &Hub{
		boards:          opts.Boards,
		maxMessageBytes: opts.MaxMessageBytes,
		clientBuffer:    opts.ClientBuffer,
		persistDebounce: opts.PersistDebounce,
		writeWait:       opts.WriteWait,
		pongWait:        opts.PongWait,
		logger:          opts.Logger,
		rooms:           map[string]*room{},
	}
	if h.maxMessageBytes <= 0 {
		h.maxMessageBytes = defaultMaxMessageBytes
	}
	if h.clientBuffer <= 0 {
		h.clientBuffer = defaultClientBuffer
	}
	if h.persistDebounce <= 0 {
		h.persistDebounce = defaultPersistDebounce
	}
	if h.writeWait <= 0 {
		h.writeWait = defaultWriteWait
	}
	if h.pongWait <= 0 {
		h.pongWait = defaultPongWait
	}
	h.pingPeriod = h.pongWait * 9 / 10
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     opts.CheckOrigin,
	}
	return h, nil
}

// Name returns the service manager key.
func (h *Hub) Name() string { return Name }

// Startup reports the hub limits. Rooms are created on demand.
func (h *Hub) Startup(ctx context.Context) error {
	h.logger.Info("sync hub ready",
		"max_message_bytes", h.maxMessageBytes,
		"client_buffer", h.clientBuffer,
		"persist_debounce", h.persistDebounce.String(),
	)
	return ctx.Err()
}

// Upgrade switches the request to a WebSocket and serves it until the
// socket closes. The caller has already authorized user for boardID.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, boardID string, user *models.User) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote an HTTP error.
		return err
	}
	return h.Serve(r.Context(), conn, boardID, user)
}

// Serve runs one socket in the room of boardID. It blocks until the
// socket closes, ctx ends, or the hub shuts down.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, boardID string, user *models.User) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return ErrHubClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	c := newClient(h, conn, user)
	r, err := h.join(ctx, boardID, c)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "room unavailable"),
			time.Now().Add(h.writeWait))
		_ = conn.Close()
		return err
	}

	stop := context.AfterFunc(ctx, func() { c.closeWith(websocket.CloseGoingAway, "request ended") })
	defer stop()

	go c.writeLoop()
	c.readLoop(r)

	h.leave(r, c)
	c.closeWith(websocket.CloseNormalClosure, "")
	<-c.writerDone
	return nil
}

func (h *Hub) join(ctx context.Context, boardID string, c *client) (*room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[boardID]
	if !ok {
		scene, version, err := h.boards.LoadScene(ctx, boardID)
		if err != nil {
			return nil, fmt.Errorf("load board %s: %w", boardID, err)
		}
		r = newRoom(h, boardID, scene, version)
		h.rooms[boardID] = r
		h.logger.Debug("room opened", "board_id", boardID)
	}
	r.add(c)
	return r, nil
}

func (h *Hub) leave(r *room, c *client) {
	if !r.remove(c) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[r.boardID] != r || !r.closeIfEmpty() {
		return
	}
	delete(h.rooms, r.boardID)
	r.flush()
	h.logger.Debug("room closed", "board_id", r.boardID)
}

// RoomInfo returns presence for a board. Boards without a live room report
// no collaborators.
func (h *Hub) RoomInfo(boardID string) RoomInfo {
	h.mu.Lock()
	r, ok := h.rooms[boardID]
	h.mu.Unlock()
	if !ok {
		return RoomInfo{BoardID: boardID, Collaborators: []Collaborator{}}
	}
	return r.info()
}

// SceneReplaced installs a scene saved outside the room at version and
// re-initializes every socket with it.
func (h *Hub) SceneReplaced(boardID string, scene models.Scene, version int64) {
	h.mu.Lock()
	r, ok := h.rooms[boardID]
	h.mu.Unlock()
	if ok {
		r.replaceScene(scene, version)
	}
}

// BoardDeleted drops the room of a deleted board and disconnects its sockets.
func (h *Hub) BoardDeleted(boardID string) {
	h.mu.Lock()
	r, ok := h.rooms[boardID]
	if ok {
		delete(h.rooms, boardID)
	}
	h.mu.Unlock()
	if ok {
		r.shutdown(websocket.CloseGoingAway, "board deleted", false)
	}
}

// Close disconnects every socket, waits for them, and flushes dirty rooms.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = map[string]*room{}
	h.mu.Unlock()

	for _, r := range rooms {
		r.shutdown(websocket.CloseGoingAway, "server shutting down", true)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
