package tui

import "github.com/evanschultz/waymark/internal/display"

type Option func(*Model)

// WithFormatter sets the time zone and relative-time preference used by the view.
func WithFormatter(f display.Formatter) Option {
	return func(m *Model) {
		m.formatter = f
	}
}

// WithMarkdownStyle selects the glamour style for the report pane.
func WithMarkdownStyle(style string) Option {
	return func(m *Model) {
		m.renderer = display.NewMarkdownRenderer(style)
	}
}

// WithActivityLimit caps the change events shown in the activity pane.
func WithActivityLimit(limit int) Option {
	return func(m *Model) {
		if limit > 0 {
			m.activityLimit = limit
		}
	}
}
