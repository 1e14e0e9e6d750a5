// Package framer turns a raw byte stream from a serial line into text lines.
//
// Line terminators are \n, \r\n and a lone \r. Every complete line is
// right-trimmed and emitted synchronously from Write. Bytes after the last
// terminator wait in a pending buffer; if the line then stays quiet for the
// idle timeout the pending text is emitted as a line of its own, so devices
// that print prompts or partial status without a newline still show up.
package framer

import (
	"bytes"
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"
)

// DefaultIdleTimeout is how long unterminated bytes wait before being
// flushed as a line.
const DefaultIdleTimeout = 150 * time.Millisecond

// Framer is not safe for concurrent use. The idle flush is delivered through
// the dispatcher, which must serialize it with calls to Write and Close.
type Framer struct {
	emit      func(string)
	idle      time.Duration
	keepEmpty bool
	clock     clockwork.Clock
	dispatch  func(func())

	pending     []byte
	lastCR      bool // previous chunk ended in \r; a leading \n completes that terminator
	idleFlushed bool // pending was emitted by the alarm; its terminator must not emit again
	alarm       *Alarm
}

type Option func(*Framer)

func WithIdleTimeout(d time.Duration) Option {
	return func(f *Framer) {
		if d > 0 {
			f.idle = d
		}
	}
}

// WithKeepEmpty makes terminated blank lines emit "" instead of being
// dropped.
func WithKeepEmpty(keep bool) Option {
	return func(f *Framer) { f.keepEmpty = keep }
}

func WithClock(c clockwork.Clock) Option {
	return func(f *Framer) { f.clock = c }
}

// WithDispatcher sets how idle flushes reach the owner's goroutine. Without
// one the flush runs directly on the timer goroutine.
func WithDispatcher(dispatch func(func())) Option {
	return func(f *Framer) { f.dispatch = dispatch }
}

// New returns a Framer that calls emit once per line.
func New(emit func(string), opts ...Option) *Framer {
	f := &Framer{
		emit:     emit,
		idle:     DefaultIdleTimeout,
		clock:    clockwork.NewRealClock(),
		dispatch: func(fn func()) { fn() },
	}
	for _, opt := range opts {
		opt(f)
	}
	f.alarm = NewAlarm(f.clock, f.dispatch, f.flushIdle)
	return f
}

// Write consumes a chunk of bytes from the line. It never fails; the
// signature lets the Framer sit behind io.Copy.
func (f *Framer) Write(chunk []byte) (int, error) {
	n := len(chunk)
	if n == 0 {
		return 0, nil
	}

	p := chunk
	if f.lastCR && p[0] == '\n' {
		p = p[1:]
	}
	f.lastCR = chunk[n-1] == '\r'

	for len(p) > 0 {
		i := bytes.IndexAny(p, "\r\n")
		if i < 0 {
			f.appendPending(p)
			break
		}
		f.appendPending(p[:i])
		if p[i] == '\r' && i+1 < len(p) && p[i+1] == '\n' {
			i++
		}
		p = p[i+1:]
		f.terminate()
	}

	if len(f.pending) > 0 {
		f.alarm.Arm(f.idle)
	} else {
		f.alarm.Cancel()
	}
	return n, nil
}

// Close flushes any pending text as a final line and stops the idle alarm.
func (f *Framer) Close() error {
	f.alarm.Cancel()
	if line := trim(f.pending); line != "" {
		f.emit(line)
	}
	f.clear()
	return nil
}

// Reset drops pending state without emitting it.
func (f *Framer) Reset() {
	f.alarm.Cancel()
	f.clear()
}

// Pending returns the unterminated text buffered so far.
func (f *Framer) Pending() string { return string(f.pending) }

func (f *Framer) appendPending(b []byte) {
	if len(b) == 0 {
		return
	}
	f.pending = append(f.pending, b...)
	f.idleFlushed = false
}

func (f *Framer) terminate() {
	line := trim(f.pending)
	skip := len(f.pending) == 0 && f.idleFlushed
	f.pending = f.pending[:0]
	f.idleFlushed = false

	if skip {
		return
	}
	if line != "" || f.keepEmpty {
		f.emit(line)
	}
}

func (f *Framer) flushIdle() {
	if len(f.pending) == 0 {
		return
	}
	line := trim(f.pending)
	f.pending = f.pending[:0]
	f.idleFlushed = true
	if line != "" {
		f.emit(line)
	}
}

func (f *Framer) clear() {
	f.pending = f.pending[:0]
	f.lastCR = false
	f.idleFlushed = false
}

func trim(b []byte) string {
	return strings.TrimRightFunc(string(b), unicode.IsSpace)
}
