package device

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Simulated is a Channel with no device behind it. It never has bytes
// available and discards writes, optionally copying them to a tap.
type Simulated struct {
	tap    io.Writer
	closed atomic.Bool
}

// NewSimulated returns a simulated channel. If tap is non-nil every write is
// copied to it.
func NewSimulated(tap io.Writer) *Simulated {
	return &Simulated{tap: tap}
}

func (s *Simulated) Buffered() (int, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("%w: channel closed", ErrRead)
	}
	return 0, nil
}

func (s *Simulated) ReadAvailable() ([]byte, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: channel closed", ErrRead)
	}
	return nil, nil
}

func (s *Simulated) Write(p []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("%w: channel closed", ErrWrite)
	}
	if s.tap != nil {
		if _, err := s.tap.Write(p); err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
	}
	return nil
}

func (s *Simulated) Close() error {
	s.closed.Store(true)
	return nil
}
