package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

const DefaultScrollback = 5000

// Terminal is the scrolling line view. It follows new lines while the view
// is at the bottom and holds position when the operator has scrolled up.
type Terminal struct {
	viewport   viewport.Model
	formatter  *LineFormatter
	lines      []Line
	rendered   []string
	scrollback int
}

func NewTerminal(width, height int) *Terminal {
	return &Terminal{
		viewport:   viewport.New(width, height),
		formatter:  NewLineFormatter(true),
		scrollback: DefaultScrollback,
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
}

func (t *Terminal) SetScrollback(n int) {
	if n > 0 {
		t.scrollback = n
	}
}

func (t *Terminal) Width() int { return t.viewport.Width }

func (t *Terminal) Append(l Line) {
	follow := t.viewport.AtBottom()

	t.lines = append(t.lines, l)
	t.rendered = append(t.rendered, t.formatter.Format(l))
	if over := len(t.lines) - t.scrollback; over > 0 {
		t.lines = append(t.lines[:0], t.lines[over:]...)
		t.rendered = append(t.rendered[:0], t.rendered[over:]...)
	}

	t.viewport.SetContent(strings.Join(t.rendered, "\n"))
	if follow {
		t.viewport.GotoBottom()
	}
}

func (t *Terminal) Lines() []Line { return t.lines }

func (t *Terminal) Clear() {
	t.lines = nil
	t.rendered = nil
	t.viewport.SetContent("")
}

func (t *Terminal) ToggleTimestamps() {
	t.formatter.ToggleTimestamps()
	t.refresh()
}

func (t *Terminal) ShowTimestamps() bool { return t.formatter.ShowTimestamps() }

func (t *Terminal) refresh() {
	t.rendered = t.formatter.FormatAll(t.lines)
	t.viewport.SetContent(strings.Join(t.rendered, "\n"))
	t.viewport.GotoBottom()
}

func (t *Terminal) GotoBottom() { t.viewport.GotoBottom() }

// Update forwards resize and scroll messages to the viewport. Other keys are
// console commands and are not passed through.
func (t *Terminal) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch msg.(type) {
	case tea.WindowSizeMsg, tea.MouseMsg, tea.KeyMsg:
		t.viewport, cmd = t.viewport.Update(msg)
	}
	return cmd
}

func (t *Terminal) View() string {
	return t.viewport.View()
}
