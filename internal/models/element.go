package models

import (
	"encoding/json"
	"fmt"
)

// Element is one scene element. Only the fields needed for reconciliation
// are decoded; the raw object is carried through untouched.
type Element struct {
	ID           string
	Version      int64
	VersionNonce int64
	IsDeleted    bool
	Raw          json.RawMessage
}

type elementHeader struct {
	ID           *string `json:"id"`
	Version      *int64  `json:"version"`
	VersionNonce *int64  `json:"versionNonce"`
	IsDeleted    bool    `json:"isDeleted"`
}

// UnmarshalJSON decodes the reconciliation header and keeps the raw bytes.
func (e *Element) UnmarshalJSON(data []byte) error {
	var header elementHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}
	if header.ID == nil || *header.ID == "" {
		return fmt.Errorf("element id is required")
	}
	if header.Version == nil {
		return fmt.Errorf("element %s: version is required", *header.ID)
	}
	if header.VersionNonce == nil {
		return fmt.Errorf("element %s: versionNonce is required", *header.ID)
	}
	e.ID = *header.ID
	e.Version = *header.Version
	e.VersionNonce = *header.VersionNonce
	e.IsDeleted = header.IsDeleted
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the raw element object.
func (e Element) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(map[string]any{
		"id":           e.ID,
		"version":      e.Version,
		"versionNonce": e.VersionNonce,
		"isDeleted":    e.IsDeleted,
	})
}
