package station

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	serial "github.com/allbin/serial-station"
)

type connection struct {
	port  string
	baud  int
	state State
	link  io.ReadCloser

	// done is closed when teardown starts; goroutines serving this
	// connection stop posting to the loop.
	done       chan struct{}
	readerDone chan struct{}
	reply      chan<- error
}

func (conn *connection) resolve(err error) {
	if conn.reply != nil {
		conn.reply <- err
		conn.reply = nil
	}
}

// Connect opens port at baud, closing any current connection first. It
// returns once the open has succeeded or failed.
func (c *Coordinator) Connect(ctx context.Context, port string, baud int) error {
	if port == "" {
		return ErrNoPort
	}
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return c.exec(ctx, func(reply chan<- error) {
		if c.conn != nil {
			c.teardown()
		}

		conn := &connection{
			port:  port,
			baud:  baud,
			state: StateOpening,
			done:  make(chan struct{}),
			reply: reply,
		}
		c.conn = conn
		c.log.Info().Str("port", port).Int("baud", baud).Msg("opening port")
		c.publishStatus()
		go c.openLink(conn)
	})
}

// Disconnect closes the current connection, if any, and returns after
// teardown has finished.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.teardown()
		return nil
	})
}

func (c *Coordinator) openLink(conn *connection) {
	link, err := c.open(conn.port, conn.baud)
	if !c.post(func() { c.opened(conn, link, err) }, conn.done) && link != nil {
		link.Close()
	}
}

func (c *Coordinator) opened(conn *connection, link io.ReadCloser, err error) {
	if c.conn != conn || conn.state != StateOpening {
		if link != nil {
			link.Close()
		}
		return
	}

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrOpenFailed, err)
		c.log.Warn().Err(err).Str("port", conn.port).Msg("open failed")
		close(conn.done)
		c.conn = nil
		c.notify.PortError(err)
		c.publishStatus()
		conn.resolve(err)
		return
	}

	conn.link = link
	conn.state = StateOpen
	conn.readerDone = make(chan struct{})
	c.framer.Reset()
	go c.readLoop(conn)

	c.log.Info().Str("port", conn.port).Msg("port open")
	c.publishStatus()
	conn.resolve(nil)
}

func (c *Coordinator) readLoop(conn *connection) {
	defer close(conn.readerDone)

	buf := make([]byte, readBufferSize)
	var delay time.Duration
	for {
		n, err := conn.link.Read(buf)
		if n > 0 {
			delay = 0
			chunk := bytes.Clone(buf[:n])
			if !c.post(func() { c.received(conn, chunk) }, conn.done) {
				return
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) || serial.IsDisconnect(err) {
			c.post(func() { c.linkClosed(conn, err) }, conn.done)
			return
		}

		// Any other error is reported and the link stays open.
		if !c.post(func() { c.readFailed(conn, err) }, conn.done) {
			return
		}
		delay = nextRetry(delay)
		select {
		case <-c.clock.After(delay):
		case <-conn.done:
			return
		}
	}
}

func nextRetry(prev time.Duration) time.Duration {
	if prev <= 0 {
		return readRetryMin
	}
	return min(prev*2, readRetryMax)
}

func (c *Coordinator) current(conn *connection) bool {
	return c.conn == conn && conn.state == StateOpen
}

func (c *Coordinator) received(conn *connection, chunk []byte) {
	if !c.current(conn) {
		return
	}
	c.framer.Write(chunk)
}

// linkClosed handles the device going away underneath an open connection.
func (c *Coordinator) linkClosed(conn *connection, err error) {
	if !c.current(conn) {
		return
	}
	c.log.Warn().Err(err).Str("port", conn.port).Msg("link closed")
	if !errors.Is(err, io.EOF) {
		c.notify.PortError(err)
	}
	c.teardown()
}

func (c *Coordinator) readFailed(conn *connection, err error) {
	if !c.current(conn) {
		return
	}
	c.log.Warn().Err(err).Str("port", conn.port).Msg("read error")
	c.notify.PortError(err)
}

// teardown closes the current connection. The framer is flushed and the
// recording stopped before the connection is reported closed.
func (c *Coordinator) teardown() {
	conn := c.conn
	if conn == nil {
		return
	}

	prev := conn.state
	conn.state = StateClosing
	close(conn.done)

	if prev == StateOpening {
		// The open goroutine closes the link once its result is refused.
		c.conn = nil
		conn.resolve(ErrStopped)
		c.publishStatus()
		return
	}

	c.log.Info().Str("port", conn.port).Msg("closing port")
	c.publishStatus()

	if err := conn.link.Close(); err != nil && !errors.Is(err, serial.ErrPortClosed) {
		c.log.Warn().Err(err).Str("port", conn.port).Msg("closing link")
	}
	c.awaitReader(conn)

	c.framer.Close()
	if c.rec.Active() {
		if _, dropped, err := c.rec.Stop(); err == nil && dropped > 0 {
			c.log.Warn().Int("dropped", dropped).Msg("recording stopped with unwritten lines")
		}
	}

	c.conn = nil
	c.notify.Line(ClosedMarker)
	c.publishStatus()
	c.log.Info().Str("port", conn.port).Msg("port closed")
}

func (c *Coordinator) awaitReader(conn *connection) {
	if conn.readerDone == nil {
		return
	}
	select {
	case <-conn.readerDone:
	case <-c.clock.After(readerExitTimeout):
		c.log.Warn().Str("port", conn.port).Msg("reader did not exit after close")
	}
}

func (c *Coordinator) onLine(line string) {
	c.notify.Line(line)
	if c.rec.Active() {
		if err := c.rec.Append(line); err != nil {
			c.log.Debug().Err(err).Msg("append to recording")
		}
	}
}

func (c *Coordinator) connectionStatus() ConnectionStatus {
	if c.conn == nil {
		return ConnectionStatus{State: StateClosed}
	}
	return ConnectionStatus{
		State:    c.conn.state,
		Port:     c.conn.port,
		BaudRate: c.conn.baud,
	}
}

func (c *Coordinator) publishStatus() {
	c.notify.PortStatus(c.connectionStatus())
}
