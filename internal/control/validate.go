package control

import (
	"encoding/json"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// validCommandTypes is the set of allowed client→server message types.
var validCommandTypes = map[string]bool{
	TypeConnect:         true,
	TypeDisconnect:      true,
	TypeListPorts:       true,
	TypeRecordingStart:  true,
	TypeRecordingPause:  true,
	TypeRecordingResume: true,
	TypeRecordingStop:   true,
	TypeRecordingStatus: true,
	TypeRecordingAppend: true,
	TypeStatus:          true,
	TypeAppInfo:         true,
}

// Validate checks payload fields. A missing port is not a validation error;
// it is reported as "no port selected" by the station.
func (p ConnectPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.BaudRate, validation.Min(0)),
	)
}

func (p RecordingAppendPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Line, validation.Required),
	)
}

// ParseCommand decodes and validates a raw message from a client.
func ParseCommand(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, errors.New("missing 'type' field")
	}
	if !validCommandTypes[msg.Type] {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	switch msg.Type {
	case TypeConnect:
		var p ConnectPayload
		if err := decodePayload(&msg, &p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
	case TypeRecordingStart:
		var p RecordingStartPayload
		if err := decodePayload(&msg, &p); err != nil {
			return nil, err
		}
	case TypeRecordingAppend:
		var p RecordingAppendPayload
		if err := decodePayload(&msg, &p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
	}

	return &msg, nil
}

// decodePayload unmarshals msg.Payload into v; an absent payload leaves v
// at its zero value.
func decodePayload(msg *Message, v any) error {
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
	}
	return nil
}
