package control

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/allbin/serial-station/internal/recorder"
	"github.com/allbin/serial-station/internal/station"
)

// Event is a notification broadcast to every subscriber.
type Event struct {
	Type string
	Data any
	Time time.Time
}

// Message converts the event to its wire envelope.
func (e Event) Message() (*Message, error) {
	msg, err := NewMessage(e.Type, e.Data)
	if err != nil {
		return nil, err
	}
	msg.Timestamp = e.Time
	return msg, nil
}

const DefaultClientBuffer = 256

// Hub fans events out to subscribers.
//
// A single internal goroutine owns the subscriber set. Publish never blocks:
// when the hub's queue or a subscriber's buffer is full the event is dropped
// for that subscriber and counted.
type Hub struct {
	log    zerolog.Logger
	buffer int

	subscribeCh   chan chan Event
	unsubscribeCh chan chan Event
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	dropped atomic.Uint64
}

// Ensure Hub can be handed to the station as its notifier
var _ station.Notifier = (*Hub)(nil)

// NewHub starts a hub whose subscribers each buffer up to buffer events.
func NewHub(log zerolog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	h := &Hub{
		log:           log.With().Str("component", "hub").Logger(),
		buffer:        buffer,
		subscribeCh:   make(chan chan Event),
		unsubscribeCh: make(chan chan Event),
		publishCh:     make(chan Event, 1024),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)

	clients := make(map[chan Event]struct{})
	for {
		select {
		case <-h.stopCh:
			// Deliver what was published before Close.
			for drained := false; !drained; {
				select {
				case e := <-h.publishCh:
					h.broadcast(clients, e)
				default:
					drained = true
				}
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-h.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-h.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-h.publishCh:
			h.broadcast(clients, e)

		case resp := <-h.countReqCh:
			resp <- len(clients)
		}
	}
}

func (h *Hub) broadcast(clients map[chan Event]struct{}, e Event) {
	for ch := range clients {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe adds a subscriber. The channel is closed by Unsubscribe or when
// the hub closes.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, h.buffer)
	if h.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case h.subscribeCh <- ch:
	case <-h.stopped:
		close(ch)
	}
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	if h.closed.Load() {
		return
	}
	select {
	case h.unsubscribeCh <- ch:
	case <-h.stopped:
	}
}

func (h *Hub) ClientCount() int {
	if h.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case h.countReqCh <- resp:
	case <-h.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-h.stopped:
		return 0
	}
}

// Dropped reports how many deliveries were skipped because a buffer was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Publish queues an event for broadcast without blocking.
func (h *Hub) Publish(eventType string, data any) {
	if h.closed.Load() {
		return
	}
	e := Event{Type: eventType, Data: data, Time: time.Now().UTC()}
	select {
	case h.publishCh <- e:
	default:
		h.dropped.Add(1)
		h.log.Warn().Str("type", eventType).Msg("hub queue full, event dropped")
	}
}

// Close stops the hub and closes every subscriber channel. It is safe to
// call more than once.
func (h *Hub) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped
	return nil
}

func (h *Hub) Line(line string) {
	h.Publish(TypeData, DataPayload{Line: line})
}

func (h *Hub) PortError(err error) {
	h.Publish(TypePortError, ErrorPayload{Message: err.Error(), Code: errorCode(err)})
}

func (h *Hub) PortStatus(st station.ConnectionStatus) {
	h.Publish(TypePortStatus, st)
}

func (h *Hub) RecordingStatus(st recorder.Status) {
	h.Publish(TypeRecordingStatus, st)
}

func (h *Hub) RecordingError(err error) {
	h.Publish(TypeRecordingError, ErrorPayload{Message: err.Error()})
}

func (h *Hub) ShutdownBlocked(reason string) {
	h.Publish(TypeShutdownBlocked, ShutdownBlockedPayload{Reason: reason})
}
