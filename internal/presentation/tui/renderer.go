package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders bot messages as markdown using glamour.
// When no renderer can be built, text passes through unchanged.
func NewRenderer(width int) func(string) (string, error) {
	opts := []glamour.TermRendererOption{
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithPreservedNewLines(),
	}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return PlainRenderer
	}
	return r.Render
}

// PlainRenderer leaves text untouched. Used when stdout is not a terminal.
func PlainRenderer(text string) (string, error) {
	return text, nil
}
