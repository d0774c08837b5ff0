package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind names a document encoding.
type Kind string

const (
	KindJSON Kind = "json"
	KindYAML Kind = "yaml"
)

// ParseKind accepts json, yaml, or yml.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return KindJSON, nil
	case "yaml", "yml":
		return KindYAML, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", raw)
	}
}

// KindFromContentType maps an HTTP content type to a document kind.
func KindFromContentType(contentType string) Kind {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "yaml") {
		return KindYAML
	}
	return KindJSON
}

// ContentType returns the HTTP content type for kind.
func (k Kind) ContentType() string {
	if k == KindYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Formatter abstracts output formatting.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes JSON output.
type JSONFormatter struct {
	Indent bool
}

// Write writes JSON payload to a writer.
func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(payload)
}

// YAMLFormatter writes YAML output.
type YAMLFormatter struct{}

// Write writes YAML payload to a writer.
func (f YAMLFormatter) Write(w io.Writer, payload any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(payload); err != nil {
		return err
	}
	return enc.Close()
}

// ForKind returns the formatter for kind.
func ForKind(kind Kind) Formatter {
	if kind == KindYAML {
		return YAMLFormatter{}
	}
	return JSONFormatter{Indent: true}
}
