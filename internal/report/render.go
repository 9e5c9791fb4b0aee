package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Format specifies how a threat model is rendered
type Format string

// Render formats.
const (
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatMermaid  Format = "mermaid"
	FormatDFD      Format = "dfd"
)

// ParseFormat accepts the format names and their common short forms
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "mermaid", "mmd":
		return FormatMermaid, nil
	case "dfd":
		return FormatDFD, nil
	default:
		return "", &threatmodel.InputError{Field: "format", Message: fmt.Sprintf("unknown format %q", s)}
	}
}

// Render formats a threat model for display
func Render(m *threatmodel.ThreatModel, format Format) (string, error) {
	switch format {
	case FormatText:
		return Text(m), nil
	case FormatMarkdown:
		return Markdown(m), nil
	case FormatMermaid:
		return Mermaid(m.AttackTree), nil
	case FormatDFD:
		return DataFlowDiagram(m), nil
	default:
		return JSON(m)
	}
}

// JSON renders the model as indented JSON
func JSON(m *threatmodel.ThreatModel) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// componentNames resolves component ids to display names
func componentNames(m *threatmodel.ThreatModel, ids []string) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.Component(id); ok {
			names = append(names, c.Name)
		} else {
			names = append(names, id)
		}
	}
	return strings.Join(names, ", ")
}

func threatTitle(m *threatmodel.ThreatModel, id string) string {
	if t, ok := m.Threat(id); ok {
		return t.Title
	}
	return id
}
