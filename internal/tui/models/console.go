// Package models holds the operator console program. The console is an
// in-process client of the station: it issues commands directly and renders
// the events the station publishes on the control hub.
package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	serial "github.com/allbin/serial-station"
	"github.com/allbin/serial-station/internal/control"
	"github.com/allbin/serial-station/internal/recorder"
	"github.com/allbin/serial-station/internal/station"
	"github.com/allbin/serial-station/internal/tui/components"
	"github.com/allbin/serial-station/internal/tui/keys"
	"github.com/allbin/serial-station/internal/tui/styles"
)

const commandTimeout = 10 * time.Second

// Station is the command surface the console drives.
type Station interface {
	Connect(ctx context.Context, port string, baud int) error
	Disconnect(ctx context.Context) error
	ListPorts(ctx context.Context) ([]serial.PortInfo, error)
	StartRecording(ctx context.Context, path string) (recorder.Status, error)
	PauseRecording(ctx context.Context) (recorder.Status, error)
	ResumeRecording(ctx context.Context) (recorder.Status, error)
	StopRecording(ctx context.Context) (recorder.Status, error)
	Snapshot(ctx context.Context) (station.Snapshot, error)
	Shutdown(ctx context.Context, force bool) error
}

type Options struct {
	// Port pre-fills the connect prompt.
	Port string
	Baud int
	// SuggestPath pre-fills the recording prompt.
	SuggestPath func() string
	Scrollback  int
	Now         func() time.Time
}

// EventMsg carries one hub event into the program.
type EventMsg control.Event

// EventsClosedMsg reports that the hub closed, which happens once the
// station has shut down.
type EventsClosedMsg struct{}

// ResultMsg reports the outcome of a station command.
type ResultMsg struct {
	Op  string
	Err error
}

type PortsMsg struct {
	Ports []serial.PortInfo
	Err   error
}

type SnapshotMsg struct {
	Snapshot station.Snapshot
	Err      error
}

type tickMsg time.Time

type Console struct {
	station Station
	events  <-chan control.Event
	opts    Options

	terminal   *components.Terminal
	status     *components.StatusBar
	portPrompt *components.Prompt
	pathPrompt *components.Prompt
	help       help.Model
	keys       keys.ConsoleKeys
	promptKeys keys.PromptKeys

	ports     []string
	width     int
	height    int
	ready     bool
	quitArmed bool
	quitting  bool
}

func NewConsole(st Station, events <-chan control.Event, opts Options) *Console {
	if opts.Baud <= 0 {
		opts.Baud = station.DefaultBaudRate
	}
	if opts.SuggestPath == nil {
		opts.SuggestPath = recorder.TimestampPicker{}.Suggest
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	terminal := components.NewTerminal(80, 20)
	terminal.SetScrollback(opts.Scrollback)

	return &Console{
		station:    st,
		events:     events,
		opts:       opts,
		terminal:   terminal,
		status:     components.NewStatusBar("Serial Station"),
		portPrompt: components.NewPrompt("Port:", "/dev/ttyUSB0 [baud]"),
		pathPrompt: components.NewPrompt("Record to:", "path/to/recording.log"),
		help:       help.New(),
		keys:       keys.NewConsoleKeys(),
		promptKeys: keys.NewPromptKeys(),
	}
}

func (m *Console) Init() tea.Cmd {
	return tea.Batch(
		m.waitForEvent(),
		m.snapshot(),
		m.listPorts(),
		tick(),
	)
}

func (m *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case EventMsg:
		m.handleEvent(control.Event(msg))
		return m, m.waitForEvent()

	case EventsClosedMsg:
		return m, tea.Quit

	case ResultMsg:
		return m, m.handleResult(msg)

	case PortsMsg:
		if msg.Err != nil {
			m.status.SetNotice(msg.Err.Error(), true)
			return m, nil
		}
		m.ports = m.ports[:0]
		for _, p := range msg.Ports {
			m.ports = append(m.ports, p.Path)
		}
		return m, nil

	case SnapshotMsg:
		if msg.Err == nil {
			m.status.SetConnection(msg.Snapshot.Connection)
			m.status.SetRecording(msg.Snapshot.Recording)
		}
		return m, nil

	case tickMsg:
		return m, tick()

	case tea.MouseMsg:
		return m, m.terminal.Update(msg)

	case tea.KeyMsg:
		if m.portPrompt.Active() || m.pathPrompt.Active() {
			return m, m.handlePromptKey(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Console) handleEvent(e control.Event) {
	switch e.Type {
	case control.TypeData:
		p, _ := e.Data.(control.DataPayload)
		kind := components.LineReceived
		if p.Line == station.ClosedMarker {
			kind = components.LineMarker
		}
		m.terminal.Append(components.Line{Time: e.Time, Text: p.Line, Kind: kind})

	case control.TypePortStatus:
		st, _ := e.Data.(station.ConnectionStatus)
		m.status.SetConnection(st)
		if st.State == station.StateClosed {
			m.quitArmed = false
		}

	case control.TypeRecordingStatus:
		st, _ := e.Data.(recorder.Status)
		m.status.SetRecording(st)

	case control.TypePortError, control.TypeRecordingError:
		p, _ := e.Data.(control.ErrorPayload)
		text := p.Message
		if e.Type == control.TypeRecordingError {
			text = "recording: " + text
		}
		m.terminal.Append(components.Line{Time: e.Time, Text: text, Kind: components.LineError})
		m.status.SetNotice(text, true)

	case control.TypeShutdownBlocked:
		p, _ := e.Data.(control.ShutdownBlockedPayload)
		m.quitArmed = true
		m.status.SetNotice(p.Reason+"; press q again to close it and quit", false)
	}
}

func (m *Console) handleResult(msg ResultMsg) tea.Cmd {
	switch {
	case msg.Err == nil:
		if msg.Op != "shutdown" {
			m.status.ClearNotice()
		}
		return nil
	case errors.Is(msg.Err, station.ErrShutdownConflict):
		// The station publishes shutdown.blocked with the reason.
		return nil
	case errors.Is(msg.Err, station.ErrStopped):
		return tea.Quit
	}
	m.status.SetNotice(fmt.Sprintf("%s: %v", msg.Op, msg.Err), true)
	return nil
}

func (m *Console) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		return m.shutdown(true)

	case key.Matches(msg, m.keys.Quit):
		return m.shutdown(m.quitArmed)

	case key.Matches(msg, m.keys.Connect):
		value := m.opts.Port
		if value == "" && len(m.ports) > 0 {
			value = m.ports[0]
		}
		m.portPrompt.Open(value, m.ports...)
		m.layout()
		return m.listPorts()

	case key.Matches(msg, m.keys.Disconnect):
		return m.run("disconnect", m.station.Disconnect)

	case key.Matches(msg, m.keys.Record):
		m.pathPrompt.Open(m.opts.SuggestPath())
		m.layout()

	case key.Matches(msg, m.keys.Pause):
		if m.status.Recording().Paused {
			return m.runStatus("resume", m.station.ResumeRecording)
		}
		return m.runStatus("pause", m.station.PauseRecording)

	case key.Matches(msg, m.keys.Stop):
		return m.runStatus("stop recording", m.station.StopRecording)

	case key.Matches(msg, m.keys.Clear):
		m.terminal.Clear()

	case key.Matches(msg, m.keys.Timestamps):
		m.terminal.ToggleTimestamps()

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		return m.terminal.Update(msg)

	case key.Matches(msg, m.keys.Bottom):
		m.terminal.GotoBottom()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
	}
	return nil
}

func (m *Console) handlePromptKey(msg tea.KeyMsg) tea.Cmd {
	prompt := m.portPrompt
	if m.pathPrompt.Active() {
		prompt = m.pathPrompt
	}

	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		prompt.Close()
		return m.shutdown(true)

	case key.Matches(msg, m.promptKeys.Cancel):
		prompt.Close()
		m.layout()
		if prompt == m.pathPrompt {
			m.status.SetNotice("recording cancelled", false)
		}
		return nil

	case key.Matches(msg, m.promptKeys.Submit):
		value := prompt.Submit()
		m.layout()
		if prompt == m.portPrompt {
			port, baud := ParsePortSpec(value, m.opts.Baud)
			return m.run("connect", func(ctx context.Context) error {
				return m.station.Connect(ctx, port, baud)
			})
		}
		if value == "" {
			m.status.SetNotice("recording cancelled", false)
			return nil
		}
		return m.runStatus("start recording", func(ctx context.Context) (recorder.Status, error) {
			return m.station.StartRecording(ctx, value)
		})

	case key.Matches(msg, m.promptKeys.Previous):
		prompt.HistoryUp()
		return nil

	case key.Matches(msg, m.promptKeys.Next):
		prompt.HistoryDown()
		return nil
	}
	return prompt.Update(msg)
}

// ParsePortSpec splits "port [baud]". A missing or malformed baud falls back
// to def.
func ParsePortSpec(value string, def int) (string, int) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return "", def
	}
	baud := def
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
			baud = n
		}
	}
	return fields[0], baud
}

func (m *Console) shutdown(force bool) tea.Cmd {
	m.quitting = true
	return m.run("shutdown", func(ctx context.Context) error {
		return m.station.Shutdown(ctx, force)
	})
}

func (m *Console) run(op string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return ResultMsg{Op: op, Err: fn(ctx)}
	}
}

func (m *Console) runStatus(op string, fn func(context.Context) (recorder.Status, error)) tea.Cmd {
	return m.run(op, func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	})
}

func (m *Console) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return EventsClosedMsg{}
		}
		return EventMsg(e)
	}
}

func (m *Console) listPorts() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		ports, err := m.station.ListPorts(ctx)
		return PortsMsg{Ports: ports, Err: err}
	}
}

func (m *Console) snapshot() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		snap, err := m.station.Snapshot(ctx)
		return SnapshotMsg{Snapshot: snap, Err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Console) layout() {
	if !m.ready {
		return
	}
	// Status bar and content border take one line each.
	height := m.height - 2
	if m.portPrompt.Active() || m.pathPrompt.Active() {
		height -= 3
	}
	if m.help.ShowAll {
		height -= lipgloss.Height(m.helpView())
	}
	if height < 1 {
		height = 1
	}
	m.terminal.SetSize(m.width, height)
	m.portPrompt.SetWidth(m.width)
	m.pathPrompt.SetWidth(m.width)
	m.status.SetWidth(m.width)
	m.help.Width = m.width
}

func (m *Console) helpView() string {
	if m.portPrompt.Active() || m.pathPrompt.Active() {
		return styles.HelpStyle.Render(m.help.View(m.promptKeys))
	}
	return styles.HelpStyle.Render(m.help.View(m.keys))
}

func (m *Console) View() string {
	content := "Initializing..."
	if m.ready {
		content = m.terminal.View()
	}

	parts := []string{styles.ContentBorderStyle.Render(content)}
	if m.portPrompt.Active() {
		parts = append(parts, m.portPrompt.View())
	}
	if m.pathPrompt.Active() {
		parts = append(parts, m.pathPrompt.View())
	}
	if m.help.ShowAll {
		parts = append(parts, m.helpView())
	}
	parts = append(parts, m.status.View(m.opts.Now().Format("15:04:05")))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Quitting reports whether a shutdown has been requested.
func (m *Console) Quitting() bool { return m.quitting }

func (m *Console) Terminal() *components.Terminal { return m.terminal }

func (m *Console) StatusBar() *components.StatusBar { return m.status }
