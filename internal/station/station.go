// Package station coordinates one serial connection, the line framer fed by
// it and the recording of framed lines.
//
// All state lives on a single goroutine started by Run. Public methods post
// commands to it and wait for the reply; I/O completions (open results, read
// chunks, idle flushes, recorder writes) arrive as events on the same loop.
// While a port is opening the loop stops taking commands, so nothing can
// interleave with an open in flight.
package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	serial "github.com/allbin/serial-station"
	"github.com/allbin/serial-station/internal/framer"
	"github.com/allbin/serial-station/internal/recorder"
)

const (
	DefaultBaudRate = 9600

	readBufferSize    = 4096
	readerExitTimeout = 2 * time.Second

	// Retry delay after a read error that did not end the link. It doubles
	// per consecutive error and resets on the next successful read.
	readRetryMin = 10 * time.Millisecond
	readRetryMax = time.Second
)

// Opener opens the physical link for a port.
type Opener func(port string, baud int) (io.ReadCloser, error)

// PortLister enumerates candidate ports.
type PortLister func() ([]serial.PortInfo, error)

// SerialOpener opens port as a raw 8-N-1 serial line. Input the kernel
// buffered before the open is discarded.
func SerialOpener(port string, baud int) (io.ReadCloser, error) {
	p, err := serial.Open(port, serial.WithBaudRate(baud))
	if err != nil {
		return nil, err
	}
	if err := p.FlushInput(); err != nil {
		p.Close()
		return nil, fmt.Errorf("flush %s: %w", port, err)
	}
	return p, nil
}

type Coordinator struct {
	log       zerolog.Logger
	open      Opener
	list      PortLister
	picker    recorder.TargetPicker
	notify    Notifier
	clock     clockwork.Clock
	idle      time.Duration
	keepEmpty bool
	sinks     recorder.Opener

	cmds    chan func()
	events  chan func()
	stopped chan struct{}
	running atomic.Bool

	// Owned by the loop goroutine.
	conn    *connection
	framer  *framer.Framer
	rec     *recorder.Recorder
	exiting bool
}

type Option func(*Coordinator)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

func WithOpener(open Opener) Option {
	return func(c *Coordinator) { c.open = open }
}

func WithPortLister(list PortLister) Option {
	return func(c *Coordinator) { c.list = list }
}

// WithTargetPicker sets who chooses the recording path when a start request
// carries none.
func WithTargetPicker(p recorder.TargetPicker) Option {
	return func(c *Coordinator) { c.picker = p }
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notify = n }
}

func WithClock(clk clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.idle = d }
}

func WithKeepEmptyLines(keep bool) Option {
	return func(c *Coordinator) { c.keepEmpty = keep }
}

func WithSinkOpener(open recorder.Opener) Option {
	return func(c *Coordinator) { c.sinks = open }
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		log:     zerolog.Nop(),
		open:    SerialOpener,
		list:    serial.ListPortInfo,
		picker:  recorder.TimestampPicker{},
		notify:  nopNotifier{},
		clock:   clockwork.NewRealClock(),
		idle:    framer.DefaultIdleTimeout,
		sinks:   recorder.FileOpener(recorder.DefaultHighWater),
		cmds:    make(chan func()),
		events:  make(chan func(), 64),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "station").Logger()

	c.framer = framer.New(c.onLine,
		framer.WithClock(c.clock),
		framer.WithIdleTimeout(c.idle),
		framer.WithKeepEmpty(c.keepEmpty),
		framer.WithDispatcher(func(fn func()) { c.post(fn, nil) }),
	)
	c.rec = recorder.New(
		recorder.WithLogger(c.log),
		recorder.WithOpener(c.sinks),
		recorder.WithDispatcher(c.post),
		recorder.WithStatusFunc(func(st recorder.Status) { c.notify.RecordingStatus(st) }),
		recorder.WithErrorFunc(func(err error) { c.notify.RecordingError(err) }),
	)
	return c
}

// Run drives the loop until Shutdown succeeds or ctx is cancelled. A
// cancelled context forces the same teardown as a forced Shutdown.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("station: already running")
	}
	defer close(c.stopped)

	c.log.Debug().Msg("loop started")
	for !c.exiting {
		cmds := c.cmds
		if c.conn != nil && c.conn.state == StateOpening {
			cmds = nil
		}

		select {
		case fn := <-c.events:
			fn()
		case fn := <-cmds:
			fn()
		case <-ctx.Done():
			c.log.Info().Msg("context cancelled, forcing shutdown")
			c.shutdown()
			return ctx.Err()
		}
	}
	c.log.Debug().Msg("loop stopped")
	return nil
}

// Done is closed once the loop has exited.
func (c *Coordinator) Done() <-chan struct{} { return c.stopped }

// post queues fn for the loop. It gives up when abort is closed or the loop
// has exited.
func (c *Coordinator) post(fn func(), abort <-chan struct{}) bool {
	select {
	case c.events <- fn:
		return true
	case <-abort:
		return false
	case <-c.stopped:
		return false
	}
}

// exec runs fn on the loop; fn must send exactly one value on reply, now or
// later.
func (c *Coordinator) exec(ctx context.Context, fn func(reply chan<- error)) error {
	reply := make(chan error, 1)
	select {
	case c.cmds <- func() { fn(reply) }:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-c.stopped:
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) call(ctx context.Context, fn func() error) error {
	return c.exec(ctx, func(reply chan<- error) { reply <- fn() })
}

// Snapshot returns the current connection and recording state.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.call(ctx, func() error {
		snap = Snapshot{Connection: c.connectionStatus(), Recording: c.rec.Status()}
		return nil
	})
	return snap, err
}

// ListPorts enumerates ports. It does not touch loop state.
func (c *Coordinator) ListPorts(ctx context.Context) ([]serial.PortInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ports, err := c.list()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return ports, nil
}

// Shutdown stops the station. Unless force is set it refuses while a port is
// open, publishing a shutdown.blocked notice. Otherwise it closes the port,
// which ends any recording, closes the notifier and stops the loop. Cleanup
// failures are logged, not returned.
func (c *Coordinator) Shutdown(ctx context.Context, force bool) error {
	return c.call(ctx, func() error {
		if !force && c.conn != nil && c.conn.state == StateOpen {
			reason := fmt.Sprintf("port %s is still open", c.conn.port)
			c.log.Warn().Str("port", c.conn.port).Msg("shutdown blocked")
			c.notify.ShutdownBlocked(reason)
			return ErrShutdownConflict
		}
		c.shutdown()
		return nil
	})
}

func (c *Coordinator) shutdown() {
	c.teardown()
	if c.rec.Active() {
		c.rec.Stop()
	}
	if err := c.notify.Close(); err != nil {
		c.log.Warn().Err(err).Msg("closing notifier")
	}
	c.exiting = true
	c.log.Info().Msg("station shut down")
}
