package serial

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.BaudRate != 9600 {
		t.Errorf("Expected BaudRate 9600, got %d", config.BaudRate)
	}

	if !config.Exclusive {
		t.Error("Expected Exclusive to default to true")
	}
}

func TestFunctionalOptions(t *testing.T) {
	config := DefaultConfig()

	err := WithBaudRate(115200)(&config)
	if err != nil {
		t.Errorf("WithBaudRate failed: %v", err)
	}
	if config.BaudRate != 115200 {
		t.Errorf("Expected BaudRate 115200, got %d", config.BaudRate)
	}

	err = WithExclusive(false)(&config)
	if err != nil {
		t.Errorf("WithExclusive failed: %v", err)
	}
	if config.Exclusive {
		t.Error("Expected Exclusive false")
	}
}

func TestInvalidBaudRate(t *testing.T) {
	config := DefaultConfig()
	err := WithBaudRate(12345)(&config)
	if !errors.Is(err, ErrInvalidBaudRate) {
		t.Errorf("Expected ErrInvalidBaudRate, got %v", err)
	}
	if config.BaudRate != 9600 {
		t.Errorf("Config should be unchanged after invalid option, got %d", config.BaudRate)
	}
}

func TestGetBaudRate(t *testing.T) {
	tests := []struct {
		input    int
		hasError bool
	}{
		{115200, false},
		{9600, false},
		{57600, false},
		{123456, true},
	}

	for _, test := range tests {
		result, err := getBaudRate(test.input)
		if test.hasError {
			if err != ErrInvalidBaudRate {
				t.Errorf("Expected ErrInvalidBaudRate for %d, got %v", test.input, err)
			}
		} else {
			if err != nil {
				t.Errorf("Unexpected error for baud rate %d: %v", test.input, err)
			}
			if result == 0 {
				t.Errorf("Got zero result for valid baud rate %d", test.input)
			}
		}
		if IsValidBaudRate(test.input) == test.hasError {
			t.Errorf("IsValidBaudRate(%d) = %v", test.input, !test.hasError)
		}
	}
}

func TestOpenNonExistentDevice(t *testing.T) {
	_, err := Open("/dev/nonexistent")
	if err == nil {
		t.Fatal("Expected error when opening non-existent device")
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

// openPty returns a Port on the slave side of a fresh pty and the master
func openPty(t *testing.T) (Port, io.ReadWriteCloser) {
	t.Helper()
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty not available: %v", err)
	}
	t.Cleanup(func() { slave.Close() })

	p, err := Open(slave.Name(), WithBaudRate(115200), WithExclusive(false))
	if err != nil {
		master.Close()
		t.Fatalf("Open(%s) failed: %v", slave.Name(), err)
	}
	return p, master
}

func TestPortReadsFromPty(t *testing.T) {
	p, master := openPty(t)
	defer master.Close()
	defer p.Close()

	if p.BaudRate() != 115200 {
		t.Errorf("Expected BaudRate 115200, got %d", p.BaudRate())
	}

	if _, err := master.Write([]byte("T=21.5\n")); err != nil {
		t.Fatalf("master write: %v", err)
	}

	buf := make([]byte, 64)
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := string(buf[:n]); got != "T=21.5\n" {
		t.Errorf("Expected %q, got %q", "T=21.5\n", got)
	}
}

// waitInput waits until the kernel holds at least n unread bytes on fd.
func waitInput(t *testing.T, fd int, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if queued, err := unix.IoctlGetInt(fd, unix.TIOCINQ); err == nil && queued >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("input queue never reached %d bytes", n)
}

func TestFlushInputDiscardsPending(t *testing.T) {
	p, master := openPty(t)
	defer master.Close()
	defer p.Close()

	if _, err := master.Write([]byte("stale\n")); err != nil {
		t.Fatalf("master write: %v", err)
	}
	waitInput(t, p.(*port).fd, 6)

	if err := p.FlushInput(); err != nil {
		t.Fatalf("FlushInput failed: %v", err)
	}
	if _, err := master.Write([]byte("fresh\n")); err != nil {
		t.Fatalf("master write: %v", err)
	}

	buf := make([]byte, 64)
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := string(buf[:n]); got != "fresh\n" {
		t.Errorf("Expected %q, got %q", "fresh\n", got)
	}

	p.Close()
	if err := p.FlushInput(); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Expected ErrPortClosed after Close, got %v", err)
	}
}

func TestCloseUnblocksRead(t *testing.T) {
	p, master := openPty(t)
	defer master.Close()

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		_, err := p.Read(buf)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPortClosed) {
			t.Errorf("Expected ErrPortClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Close")
	}

	if err := p.Close(); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Expected ErrPortClosed on second Close, got %v", err)
	}
	if _, err := p.Read(make([]byte, 1)); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Expected ErrPortClosed reading closed port, got %v", err)
	}
}

func TestReadReportsHangup(t *testing.T) {
	p, master := openPty(t)
	defer p.Close()

	master.Close()

	buf := make([]byte, 64)
	_, err := p.Read(buf)
	if err == nil {
		t.Fatal("Expected error after master hangup")
	}
	if !errors.Is(err, io.EOF) && !IsDisconnect(err) {
		t.Errorf("Expected EOF or disconnect error, got %v", err)
	}
}
