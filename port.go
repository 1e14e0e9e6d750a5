package serial

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Port represents an open serial line in raw 8-N-1 mode.
//
// Read blocks until data arrives, the device goes away, or Close is called
// from another goroutine. A Read interrupted by Close returns ErrPortClosed.
type Port interface {
	io.ReadCloser
	Path() string
	BaudRate() int
	// FlushInput discards bytes the kernel received but nobody has read.
	FlushInput() error
}

// port is the concrete implementation of the Port interface
type port struct {
	mu      sync.RWMutex
	path    string
	fd      int
	pipeR   int // self-pipe read end, wakes blocked polls on Close
	pipeW   int
	config  Config
	closing atomic.Bool
	closed  bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

// IsValidBaudRate reports whether rate maps to a standard termios speed.
func IsValidBaudRate(rate int) bool {
	_, err := getBaudRate(rate)
	return err == nil
}

// Open opens a serial port with the given device path and options
func Open(device string, opts ...Option) (Port, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	// Non-blocking so Read can multiplex the device with the self-pipe
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, classifyOpenError(err))
	}

	if config.Exclusive {
		if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("lock %s: %w", device, classifyOpenError(err))
		}
	}

	if err := configurePort(fd, config); err != nil {
		unix.Close(fd)
		return nil, err
	}

	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &port{
		path:   device,
		fd:     fd,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
		config: config,
	}, nil
}

// configurePort puts the line into raw 8-N-1 mode without flow control
func configurePort(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	termios.Cflag = unix.CS8 | unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0

	// Reads are driven by poll, so return whatever is available
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	baudRate, err := getBaudRate(config.BaudRate)
	if err != nil {
		return err
	}

	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baudRate
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}

	return nil
}

func (p *port) Path() string  { return p.path }
func (p *port) BaudRate() int { return p.config.BaudRate }

// Close closes the serial port and wakes any blocked Read
func (p *port) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return ErrPortClosed
	}

	unix.Write(p.pipeW, []byte{1})

	// Readers hold the read lock while polling, so this waits for them to leave
	p.mu.Lock()
	defer p.mu.Unlock()

	err := unix.Close(p.fd)
	unix.Close(p.pipeR)
	unix.Close(p.pipeW)
	p.closed = true
	return err
}

// Read reads data from the serial port
func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.closing.Load() {
		return 0, ErrPortClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	for {
		pfd := []unix.PollFd{
			{Fd: int32(p.fd), Events: unix.POLLIN},
			{Fd: int32(p.pipeR), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(pfd, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, fmt.Errorf("poll %s: %w", p.path, err)
		}

		if pfd[1].Revents&unix.POLLIN != 0 || p.closing.Load() {
			return 0, ErrPortClosed
		}

		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			if pfd[0].Revents&unix.POLLNVAL != 0 {
				return 0, ErrPortClosed
			}
			continue
		}

		n, err := unix.Read(p.fd, buf)
		switch {
		case err == unix.EAGAIN || err == unix.EINTR:
			continue
		case err != nil:
			return 0, fmt.Errorf("read %s: %w", p.path, err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// FlushInput discards data received but not yet read
func (p *port) FlushInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}
