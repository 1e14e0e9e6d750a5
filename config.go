package serial

// Config holds the configuration for a serial port.
//
// Framing is fixed at 8 data bits, no parity, 1 stop bit and no flow control;
// only the speed and the exclusivity of the open are tunable.
type Config struct {
	BaudRate  int
	Exclusive bool // TIOCEXCL: refuse further opens while held
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:  9600,
		Exclusive: true,
	}
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if _, err := getBaudRate(rate); err != nil {
			return err
		}
		c.BaudRate = rate
		return nil
	}
}

// WithExclusive controls whether the port is locked against other openers
func WithExclusive(exclusive bool) Option {
	return func(c *Config) error {
		c.Exclusive = exclusive
		return nil
	}
}
