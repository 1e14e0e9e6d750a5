// Package recorder appends received lines to a log file without ever holding
// up the event loop that produces them.
//
// A Recorder is owned by one goroutine (the station loop). Each recording
// session has its own writer goroutine that performs the blocking sink I/O,
// one record at a time, and posts completions back to the owner through the
// dispatcher. At most one record is in flight per session; the rest wait in
// an in-memory FIFO.
package recorder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrNotRecording = errors.New("recording is not active")

// Status is the externally visible state of the recording.
type Status struct {
	ID       string `json:"id,omitempty"`
	Active   bool   `json:"active"`
	Paused   bool   `json:"paused"`
	Filepath string `json:"filepath"`
	Queued   int    `json:"queued"`
	Written  uint64 `json:"written"`
}

// Dispatcher runs fn on the owner's goroutine. It returns false without
// running fn if abort is closed first or the owner has stopped.
type Dispatcher func(fn func(), abort <-chan struct{}) bool

type Recorder struct {
	log      zerolog.Logger
	open     Opener
	dispatch Dispatcher
	onStatus func(Status)
	onError  func(error)

	session *session
}

type session struct {
	id     string
	path   string
	sink   Sink
	queue  []string
	paused bool
	// writing is true from the moment a record is handed to the writer until
	// its completion has been processed, including any backpressure stall.
	writing bool
	ended   bool
	written uint64

	records  chan record
	done     chan struct{}
	finished chan error
}

type record struct {
	data  []byte
	flush bool
}

type Option func(*Recorder)

func WithLogger(log zerolog.Logger) Option {
	return func(r *Recorder) { r.log = log.With().Str("component", "recorder").Logger() }
}

func WithOpener(open Opener) Option {
	return func(r *Recorder) { r.open = open }
}

func WithDispatcher(d Dispatcher) Option {
	return func(r *Recorder) { r.dispatch = d }
}

// WithStatusFunc registers the callback that receives every status change.
func WithStatusFunc(fn func(Status)) Option {
	return func(r *Recorder) { r.onStatus = fn }
}

// WithErrorFunc registers the callback for sink failures that end a session.
func WithErrorFunc(fn func(error)) Option {
	return func(r *Recorder) { r.onError = fn }
}

func New(opts ...Option) *Recorder {
	r := &Recorder{
		log:      zerolog.Nop(),
		open:     FileOpener(DefaultHighWater),
		onStatus: func(Status) {},
		onError:  func(error) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dispatch == nil {
		panic("recorder: dispatcher is required")
	}
	return r
}

// Start begins a new session appending to path. A session already running
// is stopped first and its queued records are discarded.
func (r *Recorder) Start(path string) (Status, error) {
	if s := r.current(); s != nil {
		dropped := r.finish(s)
		r.log.Info().Str("path", s.path).Int("dropped", dropped).Msg("recording replaced")
	}

	sink, err := r.open(path)
	if err != nil {
		r.session = nil
		r.emitStatus()
		return r.Status(), fmt.Errorf("open recording %s: %w", path, err)
	}

	s := &session{
		id:       uuid.NewString(),
		path:     path,
		sink:     sink,
		records:  make(chan record, 1),
		done:     make(chan struct{}),
		finished: make(chan error, 1),
	}
	r.session = s
	go r.writeLoop(s)

	r.log.Info().Str("session", s.id).Str("path", path).Msg("recording started")
	r.emitStatus()
	return r.Status(), nil
}

// Append enqueues line, normalized to end with exactly one newline.
func (r *Recorder) Append(line string) error {
	s := r.current()
	if s == nil {
		return ErrNotRecording
	}
	s.queue = append(s.queue, strings.TrimRight(line, "\r\n")+"\n")
	r.drain()
	return nil
}

func (r *Recorder) Pause() (Status, error) {
	s := r.current()
	if s == nil {
		return r.Status(), ErrNotRecording
	}
	if !s.paused {
		s.paused = true
		r.emitStatus()
	}
	return r.Status(), nil
}

func (r *Recorder) Resume() (Status, error) {
	s := r.current()
	if s == nil {
		return r.Status(), ErrNotRecording
	}
	if s.paused {
		s.paused = false
		r.drain()
		r.emitStatus()
	}
	return r.Status(), nil
}

// Stop ends the session, flushing and closing the sink. Records still queued
// are discarded and counted in dropped.
func (r *Recorder) Stop() (st Status, dropped int, err error) {
	s := r.current()
	if s == nil {
		return r.Status(), 0, ErrNotRecording
	}
	dropped = r.finish(s)
	r.log.Info().Str("session", s.id).Uint64("written", s.written).Int("dropped", dropped).Msg("recording stopped")
	r.emitStatus()
	return r.Status(), dropped, nil
}

func (r *Recorder) Active() bool { return r.current() != nil }

// Status describes the current session. Once a session has ended it still
// reports that session's id, path and written count, with Active unset.
func (r *Recorder) Status() Status {
	s := r.session
	if s == nil {
		return Status{}
	}
	if s.ended {
		return Status{ID: s.id, Filepath: s.path, Written: s.written}
	}
	return Status{
		ID:       s.id,
		Active:   true,
		Paused:   s.paused,
		Filepath: s.path,
		Queued:   len(s.queue),
		Written:  s.written,
	}
}

func (r *Recorder) current() *session {
	if r.session == nil || r.session.ended {
		return nil
	}
	return r.session
}

// drain hands the oldest queued record to the writer. It does nothing while
// a record is in flight, so it is safe to call after every state change.
func (r *Recorder) drain() {
	s := r.current()
	if s == nil || s.paused || s.writing || len(s.queue) == 0 {
		return
	}

	line := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	s.writing = true
	// records has room: the writer has consumed the previous record before
	// its completion cleared writing.
	s.records <- record{data: []byte(line), flush: len(s.queue) == 0}
}

func (r *Recorder) completed(s *session, err error) {
	if s.ended {
		return
	}
	s.writing = false
	if err != nil {
		r.fail(s, err)
		return
	}
	s.written++

	if !s.paused && len(s.queue) > 0 {
		r.drain()
		return
	}
	r.emitStatus()
}

func (r *Recorder) fail(s *session, err error) {
	dropped := r.finish(s)
	r.log.Error().Err(err).Str("session", s.id).Int("dropped", dropped).Msg("recording failed")
	r.onError(fmt.Errorf("write recording %s: %w", s.path, err))
	r.emitStatus()
}

// finish ends s and waits for its writer to close the sink.
func (r *Recorder) finish(s *session) int {
	dropped := len(s.queue)
	s.ended = true
	s.queue = nil
	close(s.done)
	close(s.records)

	if err := <-s.finished; err != nil {
		r.log.Warn().Err(err).Str("path", s.path).Msg("closing recording")
	}
	return dropped
}

func (r *Recorder) emitStatus() { r.onStatus(r.Status()) }

func (r *Recorder) writeLoop(s *session) {
	var failed bool
	for rec := range s.records {
		err := r.write(s, rec)
		if !r.dispatch(func() { r.completed(s, err) }, s.done) {
			break
		}
		if err != nil {
			failed = true
			break
		}
	}
	if failed {
		// Wait for the owner to end the session so the close happens once.
		<-s.done
	}
	s.finished <- s.sink.Close()
}

func (r *Recorder) write(s *session, rec record) error {
	more, err := s.sink.Write(rec.data)
	if err != nil {
		return err
	}
	if !more {
		select {
		case <-s.sink.Ready():
		case <-s.done:
			return nil
		}
	}
	if rec.flush {
		return s.sink.Flush()
	}
	return nil
}
