package station

import "fmt"

// State is the lifecycle of the serial connection.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "opening":
		*s = StateOpening
	case "open":
		*s = StateOpen
	case "closing":
		*s = StateClosing
	default:
		return fmt.Errorf("unknown connection state %q", text)
	}
	return nil
}
