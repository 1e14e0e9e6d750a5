package station

import (
	"context"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSerialPortOverPty(t *testing.T) {
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty not available: %v", err)
	}
	defer master.Close()
	defer slave.Close()

	c, n, _ := startStation(t)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, slave.Name(), 115200))

	_, err = master.Write([]byte("$GPGGA,123519,4807.038,N\r\nBATT=12.4"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(n.lines()) == 1 }, waitFor, tick)
	require.Equal(t, "$GPGGA,123519,4807.038,N", n.lines()[0])

	// Let the unterminated tail reach the framer before closing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Disconnect(ctx))
	require.Equal(t, []string{"$GPGGA,123519,4807.038,N", "BATT=12.4", ClosedMarker}, n.lines())
}

func TestConnectDiscardsStaleInput(t *testing.T) {
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty not available: %v", err)
	}
	defer master.Close()
	defer slave.Close()

	_, err = master.Write([]byte("before open\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		queued, err := unix.IoctlGetInt(int(slave.Fd()), unix.TIOCINQ)
		return err == nil && queued > 0
	}, waitFor, tick)

	c, n, _ := startStation(t)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, slave.Name(), 115200))

	_, err = master.Write([]byte("after open\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(n.lines()) == 1 }, waitFor, tick)
	require.Equal(t, []string{"after open"}, n.lines())
}
