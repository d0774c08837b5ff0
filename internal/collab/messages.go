package collab

import (
	"encoding/json"

	"inkboard/internal/models"
)

// Message types sent by clients.
const (
	MsgSceneInit     = "scene-init"
	MsgSceneUpdate   = "scene-update"
	MsgPointerUpdate = "pointer-update"
	MsgIdleStatus    = "idle-status"
)

// Message types sent by the server. scene-update and pointer-update are
// shared with the client set.
const (
	MsgInitRoom      = "init-room"
	MsgCollaborators = "collaborators"
	MsgError         = "error"
)

// Envelope is the frame around every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ScenePayload carries elements for scene-init and scene-update.
type ScenePayload struct {
	Elements []models.Element `json:"elements"`
}

// Pointer is a cursor position in scene coordinates.
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointerPayload is a pointer-update. SocketID and Username are filled in
// by the server when relaying.
type PointerPayload struct {
	SocketID           string          `json:"socketId,omitempty"`
	Username           string          `json:"username,omitempty"`
	Pointer            Pointer         `json:"pointer"`
	Button             string          `json:"button,omitempty"`
	SelectedElementIDs map[string]bool `json:"selectedElementIds,omitempty"`
}

// IdlePayload is an idle-status.
type IdlePayload struct {
	State models.IdleState `json:"state"`
}

// Collaborator is the presence of one connected socket.
type Collaborator struct {
	SocketID           string           `json:"socketId"`
	UserID             string           `json:"userId"`
	Username           string           `json:"username"`
	Pointer            *Pointer         `json:"pointer,omitempty"`
	Button             string           `json:"button,omitempty"`
	SelectedElementIDs map[string]bool  `json:"selectedElementIds,omitempty"`
	IdleState          models.IdleState `json:"idleState"`
}

// InitRoomPayload is sent once to a socket after it joins.
type InitRoomPayload struct {
	SocketID      string                  `json:"socketId"`
	Elements      []models.Element        `json:"elements"`
	Collaborators map[string]Collaborator `json:"collaborators"`
}

// CollaboratorsPayload is broadcast when presence changes.
type CollaboratorsPayload struct {
	Collaborators map[string]Collaborator `json:"collaborators"`
}

// ErrorPayload reports a rejected message to its sender.
type ErrorPayload struct {
	Message string `json:"message"`
}

func encodeMessage(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
