// Package control is the command and event surface of the station: a JSON
// message protocol, a broadcast hub for events, and a websocket/HTTP
// transport that carries both.
package control

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all websocket messages.
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Client → server command types.
const (
	TypeConnect         = "connect"
	TypeDisconnect      = "disconnect"
	TypeListPorts       = "listPorts"
	TypeRecordingStart  = "recording.start"
	TypeRecordingPause  = "recording.pause"
	TypeRecordingResume = "recording.resume"
	TypeRecordingStop   = "recording.stop"
	TypeRecordingStatus = "recording.status"
	TypeRecordingAppend = "recording.append"
	TypeStatus          = "status"
	TypeAppInfo         = "app.info"
)

// Server → client event types. recording.status and app.info double as a
// command and its reply.
const (
	TypeData            = "data"
	TypePortError       = "portError"
	TypeError           = "error"
	TypeRecordingError  = "recording.error"
	TypePortStatus      = "port.status"
	TypePorts           = "ports"
	TypeShutdownBlocked = "shutdown.blocked"
	TypeAck             = "ack"
)

// Error codes.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeNoPort         = "NO_PORT"
	ErrCodeNotConnected   = "NOT_CONNECTED"
	ErrCodeNotRecording   = "NOT_RECORDING"
	ErrCodeOpenFailed     = "OPEN_FAILED"
	ErrCodeCancelled      = "CANCELLED"
	ErrCodeInternal       = "INTERNAL"
)

// Client → server payloads.

// ConnectPayload requests a connection. Framing other than 8-N-1 is not
// supported; the optional fields are accepted and ignored.
type ConnectPayload struct {
	Port     string  `json:"port"`
	BaudRate int     `json:"baudRate"`
	DataBits *int    `json:"dataBits,omitempty"`
	StopBits *int    `json:"stopBits,omitempty"`
	Parity   *string `json:"parity,omitempty"`
}

type RecordingStartPayload struct {
	Filepath string `json:"filepath,omitempty"`
}

type RecordingAppendPayload struct {
	Line string `json:"line"`
}

// Server → client payloads.

type DataPayload struct {
	Line string `json:"line"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ShutdownBlockedPayload struct {
	Reason string `json:"reason"`
}

type AckPayload struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}
