package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit       key.Binding
	reload     key.Binding
	toggleHelp key.Binding
	prevSeq    key.Binding
	nextSeq    key.Binding
	moveUp     key.Binding
	moveDown   key.Binding
	follow     key.Binding
	report     key.Binding
	copyReport key.Binding
	advance    key.Binding
	submit     key.Binding
	cancel     key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		prevSeq:    key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "older sequence")),
		nextSeq:    key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "newer sequence")),
		moveUp:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "interval up")),
		moveDown:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "interval down")),
		follow:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "follow active")),
		report:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "toggle report")),
		copyReport: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy report")),
		advance:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "advance to node")),
		submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.advance, k.report, k.prevSeq, k.nextSeq, k.follow, k.toggleHelp, k.quit}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.advance, k.report, k.copyReport, k.follow, k.reload, k.toggleHelp, k.quit},
		{k.prevSeq, k.nextSeq, k.moveUp, k.moveDown},
		{k.submit, k.cancel},
	}
}
