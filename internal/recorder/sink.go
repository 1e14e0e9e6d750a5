package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink is the append-only destination of a recording.
//
// Write returns more == false when the sink wants the caller to hold off;
// the record was still accepted. Ready is closed once the sink can take more.
type Sink interface {
	Write(record []byte) (more bool, err error)
	Ready() <-chan struct{}
	Flush() error
	Close() error
}

// Opener creates the sink for a recording target path.
type Opener func(path string) (Sink, error)

const (
	DefaultHighWater = 16 * 1024
	fileBufferSize   = 64 * 1024
)

// FileSink appends records to a file through a buffer. Once the buffered
// bytes cross the high-water mark it reports backpressure and flushes to
// disk in the background; Ready is closed when that flush finishes.
type FileSink struct {
	mu        sync.Mutex
	file      *os.File
	buf       *bufio.Writer
	highWater int
	ready     chan struct{}
	flushErr  error
	closed    bool
}

var closedReady = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// OpenFile opens path for appending, creating it and its directory if needed.
func OpenFile(path string, highWater int) (*FileSink, error) {
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{
		file:      f,
		buf:       bufio.NewWriterSize(f, fileBufferSize),
		highWater: highWater,
		ready:     closedReady,
	}, nil
}

// FileOpener returns an Opener producing FileSinks with the given high-water
// mark.
func FileOpener(highWater int) Opener {
	return func(path string) (Sink, error) {
		return OpenFile(path, highWater)
	}
}

func (s *FileSink) Write(record []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, os.ErrClosed
	}
	if err := s.flushErr; err != nil {
		return false, err
	}
	if _, err := s.buf.Write(record); err != nil {
		return false, err
	}
	if s.buf.Buffered() < s.highWater {
		return true, nil
	}

	ready := make(chan struct{})
	s.ready = ready
	go s.flushAsync(ready)
	return false, nil
}

func (s *FileSink) flushAsync(ready chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(ready)

	if s.closed {
		return
	}
	if err := s.buf.Flush(); err != nil && s.flushErr == nil {
		s.flushErr = err
	}
}

func (s *FileSink) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return os.ErrClosed
	}
	if s.flushErr != nil {
		return s.flushErr
	}
	return s.buf.Flush()
}

// Close flushes buffered records and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	err := s.buf.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
