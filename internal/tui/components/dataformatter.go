package components

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serial-station/internal/tui/colors"
	"github.com/allbin/serial-station/internal/tui/styles"
)

type LineKind int

const (
	LineReceived LineKind = iota
	LineMarker
	LineNotice
	LineError
)

// Line is one entry in the console scrollback.
type Line struct {
	Time time.Time
	Text string
	Kind LineKind
}

type LineFormatter struct {
	showTimestamps bool
}

func NewLineFormatter(showTimestamps bool) *LineFormatter {
	return &LineFormatter{showTimestamps: showTimestamps}
}

func (f *LineFormatter) ShowTimestamps() bool {
	return f.showTimestamps
}

func (f *LineFormatter) ToggleTimestamps() {
	f.showTimestamps = !f.showTimestamps
}

func (f *LineFormatter) Format(l Line) string {
	var text string
	switch l.Kind {
	case LineMarker:
		text = styles.MarkerStyle.Render(l.Text)
	case LineNotice:
		text = styles.NoticeStyle.Render(l.Text)
	case LineError:
		text = styles.ErrorStyle.Render(l.Text)
	default:
		text = lipgloss.NewStyle().Foreground(colors.Received).Render(Printable(l.Text))
	}

	if !f.showTimestamps {
		return text
	}
	ts := lipgloss.NewStyle().
		Foreground(colors.Timestamp).
		Render(fmt.Sprintf("[%s]", l.Time.Format("15:04:05.000")))
	return ts + " " + text
}

func (f *LineFormatter) FormatAll(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = f.Format(l)
	}
	return out
}

// Printable replaces control characters so device output cannot drive the
// terminal.
func Printable(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return r
		case r == unicode.ReplacementChar, unicode.IsControl(r):
			return '.'
		default:
			return r
		}
	}, s)
}
