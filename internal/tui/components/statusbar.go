package components

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serial-station/internal/recorder"
	"github.com/allbin/serial-station/internal/station"
	"github.com/allbin/serial-station/internal/tui/colors"
	"github.com/allbin/serial-station/internal/tui/styles"
)

// StatusBar is the single-line footer: connection on the left, recording
// and clock on the right, and the latest notice in between.
type StatusBar struct {
	title     string
	width     int
	conn      station.ConnectionStatus
	rec       recorder.Status
	notice    string
	noticeErr bool
}

func NewStatusBar(title string) *StatusBar {
	return &StatusBar{title: title}
}

func (sb *StatusBar) SetWidth(width int) { sb.width = width }

func (sb *StatusBar) SetConnection(st station.ConnectionStatus) { sb.conn = st }

func (sb *StatusBar) Connection() station.ConnectionStatus { return sb.conn }

func (sb *StatusBar) SetRecording(st recorder.Status) { sb.rec = st }

func (sb *StatusBar) Recording() recorder.Status { return sb.rec }

func (sb *StatusBar) SetNotice(msg string, isErr bool) {
	sb.notice = msg
	sb.noticeErr = isErr
}

func (sb *StatusBar) Notice() string { return sb.notice }

func (sb *StatusBar) ClearNotice() { sb.notice = "" }

func (sb *StatusBar) View(timestamp string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	title := styles.TitleStyle.Render(sb.title)

	portText := "no port"
	if sb.conn.Port != "" {
		portText = sb.conn.Port
	}
	port := lipgloss.NewStyle().Foreground(colors.Mauve).Bold(true).Padding(0, 1).Render(portText)
	indicator := styles.StateStyle(sb.conn.State).Render(styles.StateIndicator(sb.conn.State) + " " + sb.conn.State.String())

	divider := lipgloss.NewStyle().Foreground(colors.Surface2).Padding(0, 1).Render("│")
	left := lipgloss.JoinHorizontal(lipgloss.Left, title, port, indicator, divider)

	var right []string
	if sb.conn.State == station.StateOpen && sb.conn.BaudRate > 0 {
		right = append(right, lipgloss.NewStyle().Foreground(colors.Subtext0).Padding(0, 1).
			Render(fmt.Sprintf("⚡ %d 8N1", sb.conn.BaudRate)))
	}
	if badge := sb.recordingBadge(); badge != "" {
		right = append(right, badge)
	}
	right = append(right, lipgloss.NewStyle().Foreground(colors.Subtext1).Padding(0, 1).Render(timestamp))
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, right...)

	var notice string
	if sb.notice != "" {
		style := styles.NoticeStyle
		if sb.noticeErr {
			style = styles.ErrorStyle
		}
		room := width - lipgloss.Width(left) - lipgloss.Width(rightSide) - 1
		if room > 3 {
			notice = style.MaxWidth(room).Render(sb.notice)
		}
	}

	spacerWidth := width - lipgloss.Width(left) - lipgloss.Width(notice) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	bar := lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width)
	return bar.Render(lipgloss.JoinHorizontal(lipgloss.Left, left, notice, spacer, rightSide))
}

func (sb *StatusBar) recordingBadge() string {
	if !sb.rec.Active {
		return ""
	}
	label := fmt.Sprintf("REC %s %d", filepath.Base(sb.rec.Filepath), sb.rec.Written)
	if sb.rec.Paused {
		return styles.PausedStyle.Render("PAUSED " + filepath.Base(sb.rec.Filepath))
	}
	return styles.RecordingStyle.Render(label)
}
