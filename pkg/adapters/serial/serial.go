// Package serial opens RS-232 devices for instrument workers. The table
// controller speaks a line protocol over a plain serial link; this package
// provides the raw transport, protocol framing lives in the drivers.
package serial

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrClosed is returned on use of a closed port.
	ErrClosed = errors.New("serial: port closed")
	// ErrTimeout is returned when a read sees no data within the
	// configured timeout.
	ErrTimeout = errors.New("serial: read timed out")
)

// Config holds the port parameters. The framing is fixed to raw 8N1.
type Config struct {
	// Device is the device path, e.g. /dev/ttyUSB0.
	Device string
	// BaudRate defaults to 57600.
	BaudRate int
	// ReadTimeout bounds a single Read call (default 5s).
	ReadTimeout time.Duration
}

func (c *Config) fill() {
	if c.BaudRate == 0 {
		c.BaudRate = 57600
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
}

// Option configures an Opener.
type Option func(*Config)

// WithBaudRate overrides the default baud rate.
func WithBaudRate(baud int) Option {
	return func(c *Config) { c.BaudRate = baud }
}

// WithReadTimeout overrides the default read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// Opener opens the configured device on demand. It satisfies the resource
// opener contract of the worker package, so a worker can reopen the port
// after transport failures.
type Opener struct {
	cfg Config
}

// NewOpener returns an opener for the device at path.
func NewOpener(device string, opts ...Option) *Opener {
	cfg := Config{Device: device}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.fill()
	return &Opener{cfg: cfg}
}

// Open opens and configures the port.
func (o *Opener) Open(_ context.Context) (io.ReadWriteCloser, error) {
	if o.cfg.Device == "" {
		return nil, errors.New("serial: device path required")
	}
	return open(o.cfg)
}
