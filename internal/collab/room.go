package collab

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"inkboard/internal/models"
)

type room struct {
	hub     *Hub
	boardID string

	mu       sync.Mutex
	scene    *sceneState
	appState map[string]any
	version  int64
	clients  map[string]*client
	dirty    bool
	timer    *time.Timer
	closed   bool

	// saveMu orders snapshots with their writes.
	saveMu sync.Mutex
}

func newRoom(h *Hub, boardID string, scene models.Scene, version int64) *room {
	return &room{
		hub:      h,
		boardID:  boardID,
		scene:    newSceneState(scene.Elements),
		appState: scene.AppState,
		version:  version,
		clients:  map[string]*client{},
	}
}

// add registers c, queues its init-room, and tells the others.
func (r *room) add(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c.id] = c
	c.presence = Collaborator{
		SocketID:  c.id,
		UserID:    c.user.ID,
		Username:  c.user.Username,
		IdleState: models.IdleActive,
	}

	collaborators := r.collaboratorsLocked()
	r.sendInitLocked(c, r.scene.snapshot(), collaborators)
	r.broadcastCollaboratorsLocked(c.id, collaborators)
}

func (r *room) sendInitLocked(c *client, elements []models.Element, collaborators map[string]Collaborator) {
	msg, err := encodeMessage(MsgInitRoom, InitRoomPayload{
		SocketID:      c.id,
		Elements:      elements,
		Collaborators: collaborators,
	})
	if err != nil {
		r.hub.logger.Error("encode init room", "board_id", r.boardID, "error", err)
		return
	}
	if !c.enqueue(msg) && !c.closing() {
		c.closeWith(websocket.CloseTryAgainLater, "client buffer full")
	}
}

// remove unregisters c and reports whether it was present.
func (r *room) remove(c *client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.id]; !ok {
		return false
	}
	delete(r.clients, c.id)
	if !r.closed {
		r.broadcastCollaboratorsLocked("", r.collaboratorsLocked())
	}
	return true
}

// closeIfEmpty marks an empty room closed so no timer is rearmed.
func (r *room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) > 0 {
		return false
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	return true
}

// shutdown disconnects every socket. Dirty scenes are flushed when persist is set.
func (r *room) shutdown(code int, reason string, persist bool) {
	r.mu.Lock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	clients := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	if !persist {
		r.dirty = false
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.closeWith(code, reason)
	}
	if persist {
		r.flush()
	}
}

func (r *room) applyElements(from *client, elements []models.Element) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accepted := r.scene.apply(elements)
	if len(accepted) == 0 {
		return
	}
	r.markDirtyLocked()
	msg, err := encodeMessage(MsgSceneUpdate, ScenePayload{Elements: accepted})
	if err != nil {
		r.hub.logger.Error("encode scene update", "board_id", r.boardID, "error", err)
		return
	}
	r.broadcastLocked(from.id, msg)
}

// replaceScene installs a scene saved outside the room at version. Pending
// room edits are discarded and every socket is re-initialized. Versions at
// or below the room's are ignored.
func (r *room) replaceScene(scene models.Scene, version int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceLocked(scene, version)
}

func (r *room) replaceLocked(scene models.Scene, version int64) {
	if r.closed || version <= r.version {
		return
	}
	r.scene = newSceneState(scene.Elements)
	r.appState = scene.AppState
	r.version = version
	r.dirty = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}

	elements := r.scene.snapshot()
	collaborators := r.collaboratorsLocked()
	for _, c := range r.clients {
		r.sendInitLocked(c, elements, collaborators)
	}
}

func (r *room) updatePointer(from *client, payload PointerPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pointer := payload.Pointer
	from.presence.Pointer = &pointer
	from.presence.Button = payload.Button
	from.presence.SelectedElementIDs = payload.SelectedElementIDs

	payload.SocketID = from.id
	payload.Username = from.user.Username
	if msg, err := encodeMessage(MsgPointerUpdate, payload); err == nil {
		r.broadcastLocked(from.id, msg)
	}
}

func (r *room) updateIdle(from *client, state models.IdleState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if from.presence.IdleState == state {
		return
	}
	from.presence.IdleState = state
	r.broadcastCollaboratorsLocked("", r.collaboratorsLocked())
}

func (r *room) info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	collaborators := make([]Collaborator, 0, len(r.clients))
	for _, c := range r.clients {
		collaborators = append(collaborators, c.presence)
	}
	sort.Slice(collaborators, func(i, j int) bool {
		if collaborators[i].Username != collaborators[j].Username {
			return collaborators[i].Username < collaborators[j].Username
		}
		return collaborators[i].SocketID < collaborators[j].SocketID
	})
	return RoomInfo{
		BoardID:       r.boardID,
		Collaborators: collaborators,
		ElementCount:  r.scene.liveCount(),
	}
}

func (r *room) collaboratorsLocked() map[string]Collaborator {
	out := make(map[string]Collaborator, len(r.clients))
	for id, c := range r.clients {
		out[id] = c.presence
	}
	return out
}

func (r *room) broadcastCollaboratorsLocked(except string, collaborators map[string]Collaborator) {
	msg, err := encodeMessage(MsgCollaborators, CollaboratorsPayload{Collaborators: collaborators})
	if err != nil {
		return
	}
	r.broadcastLocked(except, msg)
}

// broadcastLocked queues msg for every socket but except. Sockets with a
// full buffer are dropped.
func (r *room) broadcastLocked(except string, msg []byte) {
	for id, c := range r.clients {
		if id == except {
			continue
		}
		if !c.enqueue(msg) {
			if c.closing() {
				continue
			}
			r.hub.logger.Warn("dropping slow collaborator", "board_id", r.boardID, "socket_id", id)
			c.closeWith(websocket.CloseTryAgainLater, "client buffer full")
		}
	}
}

func (r *room) markDirtyLocked() {
	r.dirty = true
	if r.timer != nil || r.closed {
		return
	}
	r.timer = time.AfterFunc(r.hub.persistDebounce, func() {
		r.mu.Lock()
		r.timer = nil
		r.mu.Unlock()
		r.flush()
	})
}

// flush writes the scene when it changed since the last write. The write
// is conditional on the room's version; when the board moved on outside the
// room, the stored scene replaces the room's.
func (r *room) flush() {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return
	}
	scene := models.Scene{Elements: r.scene.snapshot(), AppState: r.appState}
	expected := r.version
	r.dirty = false
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	version, saved, err := r.hub.boards.PersistScene(ctx, r.boardID, scene, expected)
	if err != nil {
		r.hub.logger.Error("persist room scene", "board_id", r.boardID, "error", err)
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
		return
	}
	if saved {
		r.mu.Lock()
		if version > r.version {
			r.version = version
		}
		r.mu.Unlock()
		r.hub.logger.Debug("room scene persisted", "board_id", r.boardID, "elements", len(scene.Elements), "version", version)
		return
	}

	r.hub.logger.Warn("room scene superseded by an outside save", "board_id", r.boardID, "room_version", expected, "board_version", version)
	stored, storedVersion, err := r.hub.boards.LoadScene(ctx, r.boardID)
	if err != nil {
		r.hub.logger.Error("reload superseded room scene", "board_id", r.boardID, "error", err)
		return
	}
	r.mu.Lock()
	r.replaceLocked(stored, storedVersion)
	r.mu.Unlock()
}
