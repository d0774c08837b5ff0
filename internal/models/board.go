package models

import (
	"encoding/json"
	"time"
)

// Board is a persisted whiteboard document.
type Board struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Scene     Scene     `json:"scene"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scene is the drawable content of a board. AppState is kept opaque.
type Scene struct {
	Elements []Element      `json:"elements"`
	AppState map[string]any `json:"appState,omitempty"`
}

// EmptyScene returns a scene with no elements.
func EmptyScene() Scene {
	return Scene{Elements: []Element{}}
}

// BoardFile describes one binary file referenced by scene image elements.
type BoardFile struct {
	BoardID   string    `json:"board_id"`
	FileID    string    `json:"file_id"`
	MimeType  string    `json:"mime_type"`
	BlobKey   string    `json:"-"`
	SHA256    string    `json:"sha256"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalScene encodes a scene for storage.
func MarshalScene(scene Scene) (string, error) {
	if scene.Elements == nil {
		scene.Elements = []Element{}
	}
	data, err := json.Marshal(scene)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnmarshalScene decodes a stored scene. Empty input yields an empty scene.
func UnmarshalScene(raw string) (Scene, error) {
	if raw == "" {
		return EmptyScene(), nil
	}
	var scene Scene
	if err := json.Unmarshal([]byte(raw), &scene); err != nil {
		return Scene{}, err
	}
	if scene.Elements == nil {
		scene.Elements = []Element{}
	}
	return scene, nil
}

// BoardSummary is the list view of a board without its scene.
type BoardSummary struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the list view of a board.
func (b *Board) Summary() BoardSummary {
	return BoardSummary{
		ID:        b.ID,
		OwnerID:   b.OwnerID,
		Title:     b.Title,
		Version:   b.Version,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}
