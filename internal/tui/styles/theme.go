package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serial-station/internal/station"
	"github.com/allbin/serial-station/internal/tui/colors"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusOpenStyle = lipgloss.NewStyle().
			Foreground(colors.Green).
			Bold(true)

	StatusClosedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StatusBusyStyle = lipgloss.NewStyle().
			Foreground(colors.Yellow).
			Bold(true)

	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	PromptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Blue).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(1, 2).
			Margin(1, 0)

	MarkerStyle = lipgloss.NewStyle().
			Foreground(colors.Marker).
			Italic(true)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(colors.Notice).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colors.Failure).
			Bold(true)

	RecordingStyle = lipgloss.NewStyle().
			Foreground(colors.Base).
			Background(colors.Recording).
			Bold(true).
			Padding(0, 1)

	PausedStyle = lipgloss.NewStyle().
			Foreground(colors.Base).
			Background(colors.Paused).
			Bold(true).
			Padding(0, 1)
)

// StateStyle returns the indicator style for a connection state.
func StateStyle(s station.State) lipgloss.Style {
	switch s {
	case station.StateOpen:
		return StatusOpenStyle
	case station.StateOpening, station.StateClosing:
		return StatusBusyStyle
	default:
		return StatusClosedStyle
	}
}

// StateIndicator is the single-glyph form of a connection state.
func StateIndicator(s station.State) string {
	switch s {
	case station.StateOpen:
		return "●"
	case station.StateOpening, station.StateClosing:
		return "◐"
	default:
		return "○"
	}
}
