package report

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Preview renders report markdown for a terminal or a log file. The notty style emits no escape
// sequences.
func Preview(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("notty"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("Preview: create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("Preview: render: %w", err)
	}
	return out, nil
}
