package station

import (
	"github.com/allbin/serial-station/internal/recorder"
)

// ClosedMarker is published as a data line whenever an open port closes.
const ClosedMarker = "[port closed]"

// Notifier receives everything the station reports to the outside world.
// Calls are made from the station loop and must not block.
type Notifier interface {
	Line(line string)
	PortError(err error)
	PortStatus(st ConnectionStatus)
	RecordingStatus(st recorder.Status)
	RecordingError(err error)
	ShutdownBlocked(reason string)
	Close() error
}

type ConnectionStatus struct {
	State    State  `json:"state"`
	Port     string `json:"port,omitempty"`
	BaudRate int    `json:"baudRate,omitempty"`
}

// Snapshot is the combined connection and recording state.
type Snapshot struct {
	Connection ConnectionStatus `json:"connection"`
	Recording  recorder.Status  `json:"recording"`
}

type nopNotifier struct{}

func (nopNotifier) Line(string)                     {}
func (nopNotifier) PortError(error)                 {}
func (nopNotifier) PortStatus(ConnectionStatus)     {}
func (nopNotifier) RecordingStatus(recorder.Status) {}
func (nopNotifier) RecordingError(error)            {}
func (nopNotifier) ShutdownBlocked(string)          {}
func (nopNotifier) Close() error                    { return nil }
