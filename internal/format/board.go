package format

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"inkboard/internal/models"
)

const (
	// DocumentKind tags exported board documents.
	DocumentKind = "inkboard/board"
	// DocumentVersion is the current document layout.
	DocumentVersion = 1
)

// BoardDocument is the portable export of one board.
type BoardDocument struct {
	Kind       string         `json:"kind" yaml:"kind"`
	Version    int            `json:"version" yaml:"version"`
	Title      string         `json:"title" yaml:"title"`
	ExportedAt time.Time      `json:"exported_at" yaml:"exported_at"`
	Elements   []any          `json:"elements" yaml:"elements"`
	AppState   map[string]any `json:"appState,omitempty" yaml:"appState,omitempty"`
	Files      []FileDocument `json:"files,omitempty" yaml:"files,omitempty"`
}

// FileDocument carries one board file inline as base64.
type FileDocument struct {
	ID       string `json:"id" yaml:"id"`
	MimeType string `json:"mime_type" yaml:"mime_type"`
	Data     string `json:"data" yaml:"data"`
}

// NewBoardDocument converts a scene into a portable document.
func NewBoardDocument(title string, scene models.Scene, exportedAt time.Time) (*BoardDocument, error) {
	raw, err := json.Marshal(scene.Elements)
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}
	var elements []any
	if err := decodeNumbers(raw, &elements); err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}
	if elements == nil {
		elements = []any{}
	}
	return &BoardDocument{
		Kind:       DocumentKind,
		Version:    DocumentVersion,
		Title:      title,
		ExportedAt: exportedAt.UTC(),
		Elements:   elements,
		AppState:   scene.AppState,
	}, nil
}

// AddFile appends file bytes to the document.
func (d *BoardDocument) AddFile(id, mimeType string, data []byte) {
	d.Files = append(d.Files, FileDocument{
		ID:       id,
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	})
}

// Scene rebuilds a validated scene from the document.
func (d *BoardDocument) Scene() (models.Scene, error) {
	raw, err := json.Marshal(d.Elements)
	if err != nil {
		return models.Scene{}, fmt.Errorf("encode elements: %w", err)
	}
	var elements []models.Element
	if err := json.Unmarshal(raw, &elements); err != nil {
		return models.Scene{}, fmt.Errorf("invalid elements: %w", err)
	}
	if elements == nil {
		elements = []models.Element{}
	}
	return models.Scene{Elements: elements, AppState: d.AppState}, nil
}

// FileBytes decodes one inline file.
func (f FileDocument) FileBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// Validate checks the document header and element payloads.
func (d *BoardDocument) Validate() error {
	if d.Kind != DocumentKind {
		return fmt.Errorf("unexpected document kind %q", d.Kind)
	}
	if d.Version != DocumentVersion {
		return fmt.Errorf("unsupported document version %d", d.Version)
	}
	if _, err := d.Scene(); err != nil {
		return err
	}
	for i, f := range d.Files {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("files[%d]: id is required", i)
		}
		if _, err := f.FileBytes(); err != nil {
			return fmt.Errorf("files[%d]: invalid data: %w", i, err)
		}
	}
	return nil
}

// EncodeBoard writes doc in the given kind.
func EncodeBoard(w io.Writer, doc *BoardDocument, kind Kind) error {
	return ForKind(kind).Write(w, doc)
}

// DecodeBoard reads and validates a document of the given kind.
func DecodeBoard(r io.Reader, kind Kind) (*BoardDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	var doc BoardDocument
	switch kind {
	case KindYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		doc.Elements = normalizeYAML(doc.Elements).([]any)
		if doc.AppState != nil {
			doc.AppState = normalizeYAML(doc.AppState).(map[string]any)
		}
	default:
		if err := decodeNumbers(data, &doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// decodeNumbers decodes JSON keeping integers as int64 so YAML output does
// not switch to exponent notation.
func decodeNumbers(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	switch v := dst.(type) {
	case *[]any:
		*v = normalizeNumbers(*v).([]any)
	case *BoardDocument:
		v.Elements = normalizeNumbers(v.Elements).([]any)
		if v.AppState != nil {
			v.AppState = normalizeNumbers(v.AppState).(map[string]any)
		}
	}
	return nil
}

func normalizeNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		if v == nil {
			return []any{}
		}
		for i := range v {
			v[i] = normalizeNumbers(v[i])
		}
		return v
	case map[string]any:
		for k := range v {
			v[k] = normalizeNumbers(v[k])
		}
		return v
	default:
		return value
	}
}

// normalizeYAML converts yaml.v3 map keys to strings so values re-encode as JSON.
func normalizeYAML(value any) any {
	switch v := value.(type) {
	case []any:
		if v == nil {
			return []any{}
		}
		for i := range v {
			v[i] = normalizeYAML(v[i])
		}
		return v
	case map[string]any:
		for k := range v {
			v[k] = normalizeYAML(v[k])
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	default:
		return value
	}
}
