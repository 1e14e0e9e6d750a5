package control

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/serial-station/internal/station"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "subscriber channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub(zerolog.Nop(), 8)
	defer h.Close()

	a := h.Subscribe()
	b := h.Subscribe()
	assert.Equal(t, 2, h.ClientCount())

	h.Line("first")
	h.Line("second")

	for _, ch := range []chan Event{a, b} {
		e := receive(t, ch)
		assert.Equal(t, TypeData, e.Type)
		assert.Equal(t, DataPayload{Line: "first"}, e.Data)
		assert.Equal(t, DataPayload{Line: "second"}, receive(t, ch).Data)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(zerolog.Nop(), 8)
	defer h.Close()

	ch := h.Subscribe()
	h.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount())

	// Unknown channels are ignored.
	h.Unsubscribe(make(chan Event))
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(zerolog.Nop(), 2)
	defer h.Close()

	slow := h.Subscribe()
	for i := range 5 {
		h.Line(fmt.Sprintf("line %d", i))
	}

	require.Eventually(t, func() bool { return h.Dropped() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, DataPayload{Line: "line 0"}, receive(t, slow).Data)
	assert.Equal(t, DataPayload{Line: "line 1"}, receive(t, slow).Data)
}

func TestHubCloseDeliversQueuedAndClosesSubscribers(t *testing.T) {
	h := NewHub(zerolog.Nop(), 8)
	ch := h.Subscribe()

	h.Line("last words")
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	e, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, DataPayload{Line: "last words"}, e.Data)
	_, ok = <-ch
	assert.False(t, ok)

	// Publishing and subscribing after close are harmless.
	h.Line("ignored")
	_, ok = <-h.Subscribe()
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHubNotifierEvents(t *testing.T) {
	h := NewHub(zerolog.Nop(), 8)
	defer h.Close()
	ch := h.Subscribe()

	h.PortError(fmt.Errorf("%w: %w", station.ErrOpenFailed, errors.New("busy")))
	e := receive(t, ch)
	assert.Equal(t, TypePortError, e.Type)
	assert.Equal(t, ErrCodeOpenFailed, e.Data.(ErrorPayload).Code)

	h.PortStatus(station.ConnectionStatus{State: station.StateOpen, Port: "/dev/ttyUSB0", BaudRate: 9600})
	e = receive(t, ch)
	assert.Equal(t, TypePortStatus, e.Type)

	msg, err := e.Message()
	require.NoError(t, err)
	assert.Equal(t, e.Time, msg.Timestamp)
	assert.JSONEq(t, `{"state":"open","port":"/dev/ttyUSB0","baudRate":9600}`, string(msg.Payload))

	h.ShutdownBlocked("port /dev/ttyUSB0 is still open")
	e = receive(t, ch)
	assert.Equal(t, TypeShutdownBlocked, e.Type)
	assert.Equal(t, ShutdownBlockedPayload{Reason: "port /dev/ttyUSB0 is still open"}, e.Data)
}
