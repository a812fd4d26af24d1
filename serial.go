package serial

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrClosed is returned by any operation on a port after Close.
	ErrClosed = errors.New("serial: port closed")

	// ErrTimeout is returned when a read or write does not complete within
	// the configured timeout.
	ErrTimeout = errors.New("serial: timeout")
)

// Parity selects the parity bit mode.
type Parity byte

const (
	ParityNone Parity = 'N'
	ParityOdd  Parity = 'O'
	ParityEven Parity = 'E'
)

func (p Parity) String() string {
	switch p {
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return "none"
	}
}

// ParseParity accepts "N", "E", "O" or their long forms, case-insensitive.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n", "none":
		return ParityNone, nil
	case "o", "odd":
		return ParityOdd, nil
	case "e", "even":
		return ParityEven, nil
	}
	return ParityNone, fmt.Errorf("unknown parity %q", s)
}

// Config holds configuration parameters for opening a serial port.
// Zero values for DataBits, Parity and StopBits mean 8N1.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits int

	// ReadTimeout bounds Read when no byte is buffered. Zero means Read
	// returns immediately.
	ReadTimeout time.Duration

	// WriteTimeout bounds Write while the driver's output queue is full.
	// Zero means Write waits as long as it takes.
	WriteTimeout time.Duration
}

// Port is an open serial device. The descriptor stays in non-blocking mode,
// so Buffered and ReadAvailable never wait on the device.
type Port struct {
	fd        int
	closed    atomic.Bool
	closeOnce sync.Once
	config    Config
}

// Open opens a serial port using the provided Config.
// The port is configured for raw, low-latency, non-buffered operation.
func Open(cfg Config) (*Port, error) {
	baud, ok := baudRates[cfg.BaudRate]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", cfg.BaudRate)
	}
	size, err := charSize(cfg.DataBits)
	if err != nil {
		return nil, err
	}
	if cfg.StopBits != 0 && cfg.StopBits != 1 && cfg.StopBits != 2 {
		return nil, fmt.Errorf("unsupported stop bits %d", cfg.StopBits)
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	// Framing
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	termios.Cflag |= size | unix.CREAD | unix.CLOCAL
	switch cfg.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	}
	if cfg.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	// Baud rate
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud

	// Reads never wait in the kernel; waiting is done with poll.
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	return &Port{fd: fd, config: cfg}, nil
}

// Config returns the configuration the port was opened with.
func (s *Port) Config() Config {
	return s.config
}

// Buffered reports how many received bytes are waiting in the driver.
func (s *Port) Buffered() (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n, err := unix.IoctlGetInt(s.fd, unix.TIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("query input queue: %w", err)
	}
	return n, nil
}

// ReadAvailable returns the bytes currently buffered by the driver without
// waiting. It returns an empty slice when nothing is buffered.
func (s *Port) ReadAvailable() ([]byte, error) {
	n, err := s.Buffered()
	if err != nil || n == 0 {
		return nil, err
	}
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := unix.Read(s.fd, buf[got:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return buf[:got], nil
		case err != nil:
			return buf[:got], fmt.Errorf("read: %w", err)
		case m == 0:
			return buf[:got], io.EOF
		}
		got += m
	}
	return buf, nil
}

// Read implements io.Reader. If nothing is buffered it waits up to
// ReadTimeout and returns ErrTimeout when no data arrived.
func (s *Port) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if s.closed.Load() {
			return 0, ErrClosed
		}
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if s.config.ReadTimeout <= 0 {
				return 0, ErrTimeout
			}
			if err := s.wait(unix.POLLIN, s.config.ReadTimeout); err != nil {
				return 0, err
			}
			continue
		case err != nil:
			return 0, fmt.Errorf("read: %w", err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes all of p, waiting for room in the output queue as needed.
func (s *Port) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if s.closed.Load() {
			return written, ErrClosed
		}
		n, err := unix.Write(s.fd, p[written:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if err := s.wait(unix.POLLOUT, s.config.WriteTimeout); err != nil {
				return written, err
			}
			continue
		case err != nil:
			return written, fmt.Errorf("write: %w", err)
		}
		written += n
	}
	return written, nil
}

// wait blocks until the descriptor is ready for events or timeout elapses.
// A non-positive timeout waits indefinitely.
func (s *Port) wait(events int16, timeout time.Duration) error {
	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
	}
	pfd := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
	for {
		n, err := unix.Poll(pfd, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return ErrTimeout
		}
		return nil
	}
}

// Close closes the serial port.
// Safe to call multiple times; subsequent calls are no-ops.
func (s *Port) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = unix.Close(s.fd)
	})
	return err
}

var baudRates = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
	4000000: unix.B4000000,
}

func charSize(bits int) (uint32, error) {
	switch bits {
	case 0, 8:
		return unix.CS8, nil
	case 7:
		return unix.CS7, nil
	case 6:
		return unix.CS6, nil
	case 5:
		return unix.CS5, nil
	}
	return 0, fmt.Errorf("unsupported data bits %d", bits)
}

// SupportedBaudRate reports whether Open accepts rate.
func SupportedBaudRate(rate int) bool {
	_, ok := baudRates[rate]
	return ok
}
