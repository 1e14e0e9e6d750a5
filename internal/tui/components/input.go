package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serial-station/internal/tui/colors"
	"github.com/allbin/serial-station/internal/tui/styles"
)

const maxHistory = 100

// Prompt is a one-line dialog asking the operator for a value, such as a
// port or a recording path. Each prompt keeps its own history of submitted
// values.
type Prompt struct {
	title        string
	textInput    textinput.Model
	active       bool
	history      []string
	historyIndex int
	currentInput string
	width        int
}

func NewPrompt(title, placeholder string) *Prompt {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 4096
	ti.Prompt = ""
	ti.ShowSuggestions = true

	return &Prompt{
		title:        title,
		textInput:    ti,
		historyIndex: -1,
	}
}

// Open shows the prompt pre-filled with value. Suggestions are offered for
// completion with tab.
func (p *Prompt) Open(value string, suggestions ...string) {
	p.active = true
	p.historyIndex = -1
	p.currentInput = ""
	p.textInput.SetValue(value)
	p.textInput.SetSuggestions(suggestions)
	p.textInput.CursorEnd()
	p.textInput.Focus()
}

func (p *Prompt) Close() {
	p.active = false
	p.textInput.Blur()
}

func (p *Prompt) Active() bool { return p.active }

func (p *Prompt) Value() string {
	return strings.TrimSpace(p.textInput.Value())
}

// Submit closes the prompt and returns its value, recording it in history.
func (p *Prompt) Submit() string {
	v := p.Value()
	p.addToHistory(v)
	p.Close()
	return v
}

func (p *Prompt) SetWidth(width int) {
	p.width = width
	usable := width - 6 - lipgloss.Width(p.title)
	if usable < 20 {
		usable = 20
	}
	p.textInput.Width = usable
}

func (p *Prompt) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.textInput, cmd = p.textInput.Update(msg)
	return cmd
}

func (p *Prompt) View() string {
	if !p.active {
		return ""
	}
	title := lipgloss.NewStyle().Foreground(colors.Blue).Bold(true).Render(p.title)
	content := lipgloss.JoinHorizontal(lipgloss.Left, title, " ", p.textInput.View())

	w := p.width - 4
	if w < 10 {
		w = 10
	}
	return styles.PromptStyle.Width(w).Render(content)
}

func (p *Prompt) addToHistory(v string) {
	if v == "" {
		return
	}
	if len(p.history) > 0 && p.history[len(p.history)-1] == v {
		return
	}
	p.history = append(p.history, v)
	if len(p.history) > maxHistory {
		p.history = p.history[1:]
	}
	p.historyIndex = -1
}

func (p *Prompt) HistoryUp() {
	if len(p.history) == 0 {
		return
	}
	if p.historyIndex == -1 {
		p.currentInput = p.textInput.Value()
		p.historyIndex = len(p.history) - 1
	} else if p.historyIndex > 0 {
		p.historyIndex--
	}
	p.textInput.SetValue(p.history[p.historyIndex])
	p.textInput.CursorEnd()
}

func (p *Prompt) HistoryDown() {
	if len(p.history) == 0 || p.historyIndex == -1 {
		return
	}
	if p.historyIndex < len(p.history)-1 {
		p.historyIndex++
		p.textInput.SetValue(p.history[p.historyIndex])
	} else {
		p.historyIndex = -1
		p.textInput.SetValue(p.currentInput)
		p.currentInput = ""
	}
	p.textInput.CursorEnd()
}
