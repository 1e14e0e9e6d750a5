// Package serial is the physical side of serial-station: it opens a Linux
// serial device in raw 8-N-1 mode and discovers the ports attached to the
// host.
//
// # Basic Usage
//
// Open a serial port at a given speed (default 9600 8N1, no flow control):
//
//	port, err := serial.Open("/dev/ttyUSB0", serial.WithBaudRate(115200))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	buffer := make([]byte, 4096)
//	n, err := port.Read(buffer)
//
// Read blocks until bytes arrive. Calling Close from another goroutine wakes
// a blocked Read, which then returns ErrPortClosed. This lets a reader
// goroutine be torn down without waiting for the device to speak.
//
// # Port Discovery
//
// List available serial ports together with USB device metadata:
//
//	infos, err := serial.ListPortInfo()
//	for _, info := range infos {
//	    fmt.Printf("%s: %s (VID=%s PID=%s Serial=%s)\n",
//	        info.Path, info.Description, info.VendorID, info.ProductID, info.SerialNumber)
//	}
//
// # Error Handling
//
// Open classifies failures into sentinel errors while keeping the underlying
// errno in the chain:
//
//	var (
//	    ErrDeviceNotFound   // ENOENT, ENODEV, ENXIO
//	    ErrPermissionDenied // EACCES, EPERM
//	    ErrDeviceInUse      // EBUSY, another process holds TIOCEXCL
//	    ErrPortClosed       // port closed, or Read interrupted by Close
//	)
//
// IsDisconnect reports whether a Read error means the device is gone.
//
// # Default Configuration
//
//   - BaudRate: 9600
//   - Framing: 8 data bits, no parity, 1 stop bit (fixed)
//   - FlowControl: none (fixed)
//   - Exclusive: true
package serial
