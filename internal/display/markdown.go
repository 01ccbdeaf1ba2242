package display

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// MarkdownRenderer renders markdown for terminals and recreates the renderer when wrap width changes.
type MarkdownRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdownRenderer returns a renderer using a glamour standard style ("dark", "light", "notty").
func NewMarkdownRenderer(style string) *MarkdownRenderer {
	style = strings.TrimSpace(style)
	if style == "" {
		style = "dark"
	}
	return &MarkdownRenderer{style: style}
}

// Render converts markdown into styled terminal text wrapped at width.
// It falls back to the raw markdown when rendering fails.
func (r *MarkdownRenderer) Render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}

	wrapWidth := max(width, 24)
	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}
