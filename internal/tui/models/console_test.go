package models

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serial "github.com/allbin/serial-station"
	"github.com/allbin/serial-station/internal/control"
	"github.com/allbin/serial-station/internal/recorder"
	"github.com/allbin/serial-station/internal/station"
	"github.com/allbin/serial-station/internal/tui/components"
)

type call struct {
	op    string
	port  string
	baud  int
	path  string
	force bool
}

type fakeStation struct {
	mu          sync.Mutex
	calls       []call
	shutdownErr error
	connectErr  error
}

func (f *fakeStation) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeStation) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeStation) Connect(_ context.Context, port string, baud int) error {
	f.record(call{op: "connect", port: port, baud: baud})
	if port == "" {
		return station.ErrNoPort
	}
	return f.connectErr
}

func (f *fakeStation) Disconnect(context.Context) error {
	f.record(call{op: "disconnect"})
	return nil
}

func (f *fakeStation) ListPorts(context.Context) ([]serial.PortInfo, error) {
	return []serial.PortInfo{{Path: "/dev/ttyUSB0"}, {Path: "/dev/ttyACM0"}}, nil
}

func (f *fakeStation) StartRecording(_ context.Context, path string) (recorder.Status, error) {
	f.record(call{op: "start", path: path})
	return recorder.Status{Active: true, Filepath: path}, nil
}

func (f *fakeStation) PauseRecording(context.Context) (recorder.Status, error) {
	f.record(call{op: "pause"})
	return recorder.Status{}, nil
}

func (f *fakeStation) ResumeRecording(context.Context) (recorder.Status, error) {
	f.record(call{op: "resume"})
	return recorder.Status{}, nil
}

func (f *fakeStation) StopRecording(context.Context) (recorder.Status, error) {
	f.record(call{op: "stop"})
	return recorder.Status{}, nil
}

func (f *fakeStation) Snapshot(context.Context) (station.Snapshot, error) {
	return station.Snapshot{}, nil
}

func (f *fakeStation) Shutdown(_ context.Context, force bool) error {
	f.record(call{op: "shutdown", force: force})
	if !force {
		return f.shutdownErr
	}
	return nil
}

func newConsole(t *testing.T, st *fakeStation, opts Options) *Console {
	t.Helper()
	if opts.SuggestPath == nil {
		opts.SuggestPath = func() string { return "/data/serial-20260118-140502.log" }
	}
	m := NewConsole(st, make(chan control.Event), opts)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func press(m *Console, k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

// finish runs cmd and feeds its result back into the model.
func finish(t *testing.T, m *Console, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	m.Update(cmd())
}

func event(typ string, data any) EventMsg {
	return EventMsg{Type: typ, Data: data, Time: time.Date(2026, 1, 18, 14, 5, 2, 0, time.UTC)}
}

func TestConsoleRendersLines(t *testing.T) {
	m := newConsole(t, &fakeStation{}, Options{})

	m.Update(event(control.TypeData, control.DataPayload{Line: "$GPGGA,123519"}))
	m.Update(event(control.TypeData, control.DataPayload{Line: station.ClosedMarker}))

	lines := m.Terminal().Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "$GPGGA,123519", lines[0].Text)
	assert.Equal(t, components.LineReceived, lines[0].Kind)
	assert.Equal(t, components.LineMarker, lines[1].Kind)
	assert.Contains(t, m.View(), "$GPGGA,123519")
}

func TestConsoleTracksStatus(t *testing.T) {
	m := newConsole(t, &fakeStation{}, Options{})

	m.Update(event(control.TypePortStatus, station.ConnectionStatus{State: station.StateOpen, Port: "/dev/ttyUSB0", BaudRate: 9600}))
	m.Update(event(control.TypeRecordingStatus, recorder.Status{Active: true, Filepath: "/tmp/a.log", Written: 4}))

	assert.Equal(t, station.StateOpen, m.StatusBar().Connection().State)
	assert.Equal(t, uint64(4), m.StatusBar().Recording().Written)
	view := m.View()
	assert.Contains(t, view, "/dev/ttyUSB0")
	assert.Contains(t, view, "REC a.log 4")
}

func TestConsolePortError(t *testing.T) {
	m := newConsole(t, &fakeStation{}, Options{})

	m.Update(event(control.TypePortError, control.ErrorPayload{Message: "input/output error"}))

	lines := m.Terminal().Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, components.LineError, lines[0].Kind)
	assert.Equal(t, "input/output error", m.StatusBar().Notice())
}

func TestConsoleConnectPrompt(t *testing.T) {
	st := &fakeStation{}
	m := newConsole(t, st, Options{Port: "/dev/ttyACM0", Baud: 115200})

	press(m, "c")
	assert.Contains(t, m.View(), "Port:")

	finish(t, m, press(m, "enter"))
	assert.Equal(t, call{op: "connect", port: "/dev/ttyACM0", baud: 115200}, st.last())
	assert.NotContains(t, m.View(), "Port:")
}

func TestConsoleConnectNoPort(t *testing.T) {
	st := &fakeStation{}
	m := newConsole(t, st, Options{})

	press(m, "c")
	finish(t, m, press(m, "enter"))
	assert.Equal(t, "connect: no port selected", m.StatusBar().Notice())
}

func TestConsoleConnectFailure(t *testing.T) {
	st := &fakeStation{connectErr: station.ErrOpenFailed}
	m := newConsole(t, st, Options{Port: "/dev/ttyUSB9"})

	press(m, "c")
	finish(t, m, press(m, "enter"))
	assert.Contains(t, m.StatusBar().Notice(), "open failed")
}

func TestConsoleRecordPrompt(t *testing.T) {
	st := &fakeStation{}
	m := newConsole(t, st, Options{})

	press(m, "r")
	finish(t, m, press(m, "enter"))
	assert.Equal(t, call{op: "start", path: "/data/serial-20260118-140502.log"}, st.last())
}

func TestConsoleRecordPromptCancel(t *testing.T) {
	st := &fakeStation{}
	m := newConsole(t, st, Options{})

	press(m, "r")
	assert.Nil(t, press(m, "esc"))
	assert.Empty(t, st.calls)
	assert.Equal(t, "recording cancelled", m.StatusBar().Notice())
}

func TestConsolePauseToggles(t *testing.T) {
	st := &fakeStation{}
	m := newConsole(t, st, Options{})

	finish(t, m, press(m, "p"))
	assert.Equal(t, "pause", st.last().op)

	m.Update(event(control.TypeRecordingStatus, recorder.Status{Active: true, Paused: true}))
	finish(t, m, press(m, "p"))
	assert.Equal(t, "resume", st.last().op)

	finish(t, m, press(m, "s"))
	assert.Equal(t, "stop", st.last().op)
}

func TestConsoleQuitBlockedThenForced(t *testing.T) {
	st := &fakeStation{shutdownErr: station.ErrShutdownConflict}
	m := newConsole(t, st, Options{})

	finish(t, m, press(m, "q"))
	assert.Equal(t, call{op: "shutdown"}, st.last())
	assert.True(t, m.Quitting())

	m.Update(event(control.TypeShutdownBlocked, control.ShutdownBlockedPayload{Reason: "port /dev/ttyUSB0 is still open"}))
	assert.Contains(t, m.StatusBar().Notice(), "press q again")

	finish(t, m, press(m, "q"))
	assert.Equal(t, call{op: "shutdown", force: true}, st.last())
}

func TestConsoleForceQuit(t *testing.T) {
	st := &fakeStation{}
	m := newConsole(t, st, Options{})

	finish(t, m, press(m, "ctrl+c"))
	assert.Equal(t, call{op: "shutdown", force: true}, st.last())
}

func TestConsoleQuitsWhenEventsClose(t *testing.T) {
	events := make(chan control.Event)
	m := NewConsole(&fakeStation{}, events, Options{})

	close(events)
	msg := m.waitForEvent()()
	assert.Equal(t, EventsClosedMsg{}, msg)

	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestConsoleStoppedStationQuits(t *testing.T) {
	m := newConsole(t, &fakeStation{}, Options{})

	_, cmd := m.Update(ResultMsg{Op: "disconnect", Err: fmt.Errorf("disconnect: %w", station.ErrStopped)})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestConsoleClearAndTimestamps(t *testing.T) {
	m := newConsole(t, &fakeStation{}, Options{})
	m.Update(event(control.TypeData, control.DataPayload{Line: "hello"}))

	press(m, "t")
	assert.False(t, m.Terminal().ShowTimestamps())

	press(m, "x")
	assert.Empty(t, m.Terminal().Lines())
}

func TestParsePortSpec(t *testing.T) {
	tests := []struct {
		in   string
		port string
		baud int
	}{
		{"", "", 9600},
		{"/dev/ttyUSB0", "/dev/ttyUSB0", 9600},
		{"/dev/ttyUSB0 115200", "/dev/ttyUSB0", 115200},
		{"  /dev/ttyS0   4800 ", "/dev/ttyS0", 4800},
		{"/dev/ttyS0 fast", "/dev/ttyS0", 9600},
	}
	for _, tt := range tests {
		port, baud := ParsePortSpec(tt.in, 9600)
		assert.Equal(t, tt.port, port, tt.in)
		assert.Equal(t, tt.baud, baud, tt.in)
	}
}
