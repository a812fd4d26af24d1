// Package device is the terminal's view of the connected device: a byte
// channel that can be polled without blocking, written to, and closed.
//
// Two implementations exist. The serial channel drives a real port through
// the serial package; the simulated channel never has data and discards
// writes, so a session can run without hardware attached.
package device

import (
	"errors"
	"fmt"

	serial "github.com/luhtfiimanal/serialterm"
	"github.com/luhtfiimanal/serialterm/internal/config"
)

// Errors returned by a Channel. Check with errors.Is.
var (
	// ErrConnection is returned when the device cannot be opened.
	ErrConnection = errors.New("device: connection failed")

	// ErrWrite is returned when a write to an open device fails.
	ErrWrite = errors.New("device: write failed")

	// ErrRead is returned when polling or reading an open device fails.
	ErrRead = errors.New("device: read failed")
)

// Channel is a byte-oriented device connection owned by a single goroutine.
type Channel interface {
	// Buffered reports how many received bytes can be read without waiting.
	Buffered() (int, error)

	// ReadAvailable returns the currently buffered bytes, possibly none.
	// It never waits for more data.
	ReadAvailable() ([]byte, error)

	// Write sends all of p to the device.
	Write(p []byte) error

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Open connects to the device described by cfg, or returns a simulated
// channel when cfg.Simulate is set. Failures wrap ErrConnection.
func Open(cfg config.Config) (Channel, error) {
	if cfg.Simulate {
		return NewSimulated(nil), nil
	}
	port, err := serial.Open(cfg.Serial())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return &serialChannel{port: port}, nil
}

type serialChannel struct {
	port *serial.Port
}

func (c *serialChannel) Buffered() (int, error) {
	n, err := c.port.Buffered()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return n, nil
}

func (c *serialChannel) ReadAvailable() ([]byte, error) {
	data, err := c.port.ReadAvailable()
	if err != nil {
		return data, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return data, nil
}

func (c *serialChannel) Write(p []byte) error {
	if _, err := c.port.Write(p); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func (c *serialChannel) Close() error {
	if c == nil || c.port == nil {
		return nil
	}
	return c.port.Close()
}
