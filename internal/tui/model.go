package tui

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"
	"github.com/evanschultz/waymark/internal/app"
	"github.com/evanschultz/waymark/internal/display"
	"github.com/evanschultz/waymark/internal/domain"
)

// Service is the slice of the ledger the watch view reads and drives.
type Service interface {
	Now() int64
	Subscribe(app.QueryShape) *app.Subscription
	ListSequences(context.Context) ([]domain.Sequence, error)
	ActiveSequence(context.Context) (domain.Sequence, bool, error)
	SummarizeSequence(context.Context, int64) (app.SequenceSummary, error)
	ListChangeEvents(context.Context, int) ([]domain.ChangeEvent, error)
	AdvanceByName(context.Context, string, int64) (app.AdvanceResult, error)
}

// inputMode represents a selectable mode.
type inputMode int

// modeNone and related constants define package defaults.
const (
	modeNone inputMode = iota
	modeAdvance
)

// writeClipboard stores a package-level helper value.
var writeClipboard = clipboard.WriteAll

// tickInterval refreshes elapsed times for open intervals.
const tickInterval = time.Second

// Model is the live ledger view.
type Model struct {
	svc Service
	sub *app.Subscription

	ready  bool
	width  int
	height int
	err    error
	status string

	help help.Model
	keys keyMap

	formatter     display.Formatter
	renderer      *display.MarkdownRenderer
	activityLimit int

	sequences        []domain.Sequence
	selectedSeq      int
	followActive     bool
	summary          app.SequenceSummary
	hasSummary       bool
	events           []domain.ChangeEvent
	selectedInterval int
	showReport       bool
	now              int64

	mode      inputMode
	nodeInput textinput.Model
}

// loadedMsg carries message data through update handling.
type loadedMsg struct {
	sequences  []domain.Sequence
	selected   int
	summary    app.SequenceSummary
	hasSummary bool
	events     []domain.ChangeEvent
	err        error
}

// changedMsg reports committed ledger changes.
type changedMsg struct {
	notification app.Notification
}

// tickMsg advances the view clock.
type tickMsg time.Time

// actionMsg carries the outcome of a write started from the view.
type actionMsg struct {
	status string
	err    error
}

// statusMsg replaces the status line without reloading.
type statusMsg string

// NewModel constructs a watch model subscribed to every ledger table.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	nodeInput := textinput.New()
	nodeInput.Prompt = "advance to: "
	nodeInput.Placeholder = "node name"
	nodeInput.CharLimit = 120
	m := Model{
		svc:           svc,
		sub:           svc.Subscribe(app.QueryShape{}),
		status:        "loading...",
		help:          h,
		keys:          newKeyMap(),
		formatter:     display.Formatter{Location: time.Local},
		renderer:      display.NewMarkdownRenderer("dark"),
		activityLimit: 5,
		followActive:  true,
		now:           svc.Now(),
		nodeInput:     nodeInput,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Close releases the change subscription.
func (m Model) Close() {
	m.sub.Close()
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadData, m.waitForChange(), tick())
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.sequences = msg.sequences
		m.selectedSeq = msg.selected
		m.summary = msg.summary
		m.hasSummary = msg.hasSummary
		m.events = msg.events
		m.now = m.svc.Now()
		m.clampSelection()
		if m.status == "" || m.status == "loading..." {
			m.status = "ready"
		}
		return m, nil

	case changedMsg:
		if len(msg.notification.Events) > 0 {
			m.status = fmt.Sprintf("%d change(s)", len(msg.notification.Events))
		}
		return m, tea.Batch(m.loadData, m.waitForChange())

	case tickMsg:
		m.now = m.svc.Now()
		return m, tick()

	case actionMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
			return m, nil
		}
		m.status = msg.status
		m.followActive = true
		return m, m.loadData

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case tea.KeyPressMsg:
		if m.mode == modeAdvance {
			return m.handleAdvanceKey(msg)
		}
		return m.handleNormalKey(msg)
	}
	return m, nil
}

// handleNormalKey handles browsing keys.
func (m Model) handleNormalKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.sub.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadData
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.prevSeq):
		return m.selectSequence(m.selectedSeq - 1)
	case key.Matches(msg, m.keys.nextSeq):
		return m.selectSequence(m.selectedSeq + 1)
	case key.Matches(msg, m.keys.moveUp):
		m.selectedInterval--
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.selectedInterval++
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.follow):
		m.followActive = true
		m.status = "following active sequence"
		return m, m.loadData
	case key.Matches(msg, m.keys.report):
		m.showReport = !m.showReport
		return m, nil
	case key.Matches(msg, m.keys.copyReport):
		if !m.hasSummary {
			m.status = "nothing to copy"
			return m, nil
		}
		return m, m.copyReportCmd()
	case key.Matches(msg, m.keys.advance):
		if !m.hasSummary || !m.summary.Open {
			m.status = "no open interval to advance"
			return m, nil
		}
		m.mode = modeAdvance
		m.nodeInput.SetValue("")
		return m, m.nodeInput.Focus()
	}
	return m, nil
}

// handleAdvanceKey handles the node-name prompt.
func (m Model) handleAdvanceKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.mode = modeNone
		m.nodeInput.Blur()
		m.status = "advance canceled"
		return m, nil
	case key.Matches(msg, m.keys.submit):
		name := strings.TrimSpace(m.nodeInput.Value())
		if name == "" {
			m.status = "node name required"
			return m, nil
		}
		m.mode = modeNone
		m.nodeInput.Blur()
		return m, m.advanceCmd(name)
	}
	var cmd tea.Cmd
	m.nodeInput, cmd = m.nodeInput.Update(msg)
	return m, cmd
}

// selectSequence moves the sequence cursor and stops following the active one
// unless the cursor lands on it.
func (m Model) selectSequence(idx int) (tea.Model, tea.Cmd) {
	if len(m.sequences) == 0 {
		return m, nil
	}
	idx = max(0, min(idx, len(m.sequences)-1))
	if idx == m.selectedSeq {
		return m, nil
	}
	m.selectedSeq = idx
	m.followActive = m.sequences[idx].IsActive()
	m.selectedInterval = 0
	return m, m.loadData
}

// clampSelection keeps the interval cursor in range.
func (m *Model) clampSelection() {
	total := len(m.summary.Intervals)
	if total == 0 {
		m.selectedInterval = 0
		return
	}
	m.selectedInterval = max(0, min(m.selectedInterval, total-1))
}

// selectedSequenceID returns the id under the cursor, or 0.
func (m Model) selectedSequenceID() int64 {
	if m.selectedSeq < 0 || m.selectedSeq >= len(m.sequences) {
		return 0
	}
	return m.sequences[m.selectedSeq].ID
}

// loadData reads sequences, the selected summary, and recent activity.
func (m Model) loadData() tea.Msg {
	ctx := context.Background()
	sequences, err := m.svc.ListSequences(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	out := loadedMsg{sequences: sequences}
	if len(sequences) > 0 {
		target := m.selectedSequenceID()
		if m.followActive || target == 0 {
			if active, ok, err := m.svc.ActiveSequence(ctx); err != nil {
				return loadedMsg{err: err}
			} else if ok {
				target = active.ID
			}
		}
		out.selected = len(sequences) - 1
		for idx, seq := range sequences {
			if seq.ID == target {
				out.selected = idx
				break
			}
		}
		out.summary, err = m.svc.SummarizeSequence(ctx, sequences[out.selected].ID)
		if err != nil {
			return loadedMsg{err: err}
		}
		out.hasSummary = true
	}
	out.events, err = m.svc.ListChangeEvents(ctx, m.activityLimit)
	if err != nil {
		return loadedMsg{err: err}
	}
	return out
}

// waitForChange blocks until the subscription delivers.
func (m Model) waitForChange() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		n, ok := <-sub.C
		if !ok {
			return nil
		}
		return changedMsg{notification: n}
	}
}

// advanceCmd advances the active sequence to the named node at the current time.
func (m Model) advanceCmd(name string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		res, err := svc.AdvanceByName(context.Background(), name, svc.Now())
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("advanced to %s (interval %d)", name, res.Opened.ID)}
	}
}

// copyReportCmd copies the markdown report of the selected sequence.
func (m Model) copyReportCmd() tea.Cmd {
	report := display.SequenceReport(m.summary, m.formatter)
	id := m.summary.Sequence.ID
	return func() tea.Msg {
		if err := writeClipboard(report); err != nil {
			return actionMsg{err: fmt.Errorf("copy report: %w", err)}
		}
		return statusMsg(fmt.Sprintf("copied report for sequence %d", id))
	}
}

// tick schedules the next clock refresh.
func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// View renders the model.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

// render builds the full screen text.
func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready {
		return "loading..."
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	var body string
	switch {
	case !m.hasSummary:
		body = strings.Join([]string{
			"No sequences yet.",
			"Run `waymark seq start` and `waymark open <node>` to begin.",
		}, "\n")
	case m.showReport:
		body = m.renderer.Render(display.SequenceReport(m.summary, m.formatter), max(0, m.width-4))
	default:
		body = m.renderLedger(accent, muted)
	}

	sections := []string{titleStyle.Render("waymark"), m.renderHeader(accent, muted), "", body}
	if m.mode == modeAdvance {
		sections = append(sections, "", m.nodeInput.View())
	}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, "", statusStyle.Render(m.status))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))
	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	return content + "\n" + helpLine
}

// renderHeader describes the selected sequence.
func (m Model) renderHeader(accent, muted color.Color) string {
	if !m.hasSummary {
		return ""
	}
	seq := m.summary.Sequence
	label := lipgloss.NewStyle().Foreground(accent).Bold(true).Render(fmt.Sprintf("Sequence %d", seq.ID))
	parts := []string{label, seq.Status.String()}
	if len(m.summary.Intervals) > 0 {
		parts = append(parts, "started "+m.formatter.Time(m.summary.StartTime))
		parts = append(parts, "total "+display.FormatDuration(m.liveTotal()))
	}
	position := fmt.Sprintf("%d/%d", m.selectedSeq+1, len(m.sequences))
	if m.followActive {
		position += " following"
	}
	parts = append(parts, lipgloss.NewStyle().Foreground(muted).Render(position))
	return strings.Join(parts, " · ")
}

// renderLedger lists intervals and recent activity.
func (m Model) renderLedger(accent, muted color.Color) string {
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	openStyle := lipgloss.NewStyle().Foreground(accent)
	subStyle := lipgloss.NewStyle().Foreground(muted)

	lines := []string{}
	if len(m.summary.Intervals) == 0 {
		lines = append(lines, subStyle.Render("no intervals in this sequence"))
	}
	for idx, interval := range m.summary.Intervals {
		from := m.summary.NodeName(interval.StartNodeID)
		to := "…"
		if endNode, ok := interval.EndNodeID(); ok {
			to = m.summary.NodeName(endNode)
		}
		line := fmt.Sprintf("%s  %s → %s  %s",
			m.formatter.Clock(interval.StartTime),
			from,
			to,
			display.FormatDuration(interval.Duration(m.now)),
		)
		prefix := "  "
		switch {
		case idx == m.selectedInterval:
			prefix = "▸ "
			line = selectedStyle.Render(line)
		case interval.IsOpen():
			line = openStyle.Render(line)
		}
		lines = append(lines, prefix+line)
	}

	if len(m.events) > 0 {
		lines = append(lines, "", lipgloss.NewStyle().Bold(true).Render("Activity"))
		nowTime := time.UnixMilli(m.now)
		for _, event := range m.events {
			lines = append(lines, subStyle.Render(fmt.Sprintf("  %s %s #%d  %s",
				event.Operation, event.Table, event.RowID, display.FormatAgo(event.OccurredAt, nowTime))))
		}
	}
	return strings.Join(lines, "\n")
}

// liveTotal recomputes the sequence span at the view clock.
func (m Model) liveTotal() int64 {
	var total int64
	for _, interval := range m.summary.Intervals {
		total += interval.Duration(m.now)
	}
	return total
}

// fitLines truncates s to at most n lines.
func fitLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n")
}
