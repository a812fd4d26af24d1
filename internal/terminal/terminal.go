// Package terminal runs an interactive session against a device.
//
// A Terminal owns the main loop. On every tick it polls the device and
// shows (and optionally logs) whatever bytes arrived, takes at most one
// operator line from the relay queue and either ends the session (exit
// command) or sends it to the device with the line ending appended, then
// sleeps for the poll interval.
//
// Only the main loop touches the device and the session log. The relay
// goroutine touches nothing but its input and the queue; it is released by
// a one-shot gate once the device and log are ready and is never joined.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/luhtfiimanal/serialterm/internal/config"
	"github.com/luhtfiimanal/serialterm/internal/console"
	"github.com/luhtfiimanal/serialterm/internal/device"
	"github.com/luhtfiimanal/serialterm/internal/relay"
	"github.com/luhtfiimanal/serialterm/internal/sessionlog"
)

// State is the lifecycle state of a Terminal.
type State int32

const (
	StateInit State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Opener connects to the device for a session.
type Opener func(cfg config.Config) (device.Channel, error)

// Terminal is one interactive session. Run may be called once.
type Terminal struct {
	cfg     config.Config
	console *console.Console
	log     zerolog.Logger
	input   io.Reader
	open    Opener
	now     func() time.Time

	state atomic.Int32
	ran   atomic.Bool

	dev     device.Channel
	slog    *sessionlog.Log
	queue   *relay.Queue
	gate    *relay.Gate
	relay   *relay.Relay
	decoder *decoder

	inputClosed bool
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithConsole sets where device data and notices are shown. Defaults to stdout.
func WithConsole(c *console.Console) Option {
	return func(t *Terminal) { t.console = c }
}

// WithLogger sets the diagnostic logger. Defaults to a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Terminal) { t.log = l }
}

// WithInput sets the operator input stream. Defaults to stdin.
func WithInput(r io.Reader) Option {
	return func(t *Terminal) { t.input = r }
}

// WithOpener replaces device.Open.
func WithOpener(open Opener) Option {
	return func(t *Terminal) { t.open = open }
}

// WithClock sets the time source used to name the session log.
func WithClock(now func() time.Time) Option {
	return func(t *Terminal) { t.now = now }
}

// New returns a Terminal for cfg. Nothing is opened until Run.
func New(cfg config.Config, opts ...Option) *Terminal {
	t := &Terminal{
		cfg:   cfg,
		log:   zerolog.Nop(),
		input: os.Stdin,
		open:  device.Open,
		now:   time.Now,
		queue: relay.NewQueue(),
		gate:  relay.NewGate(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.console == nil {
		t.console = console.New(os.Stdout)
	}
	t.decoder = newDecoder(cfg)
	return t
}

// State returns the current lifecycle state.
func (t *Terminal) State() State {
	return State(t.state.Load())
}

// LogPath returns the session log path, or "" when nothing is being logged.
func (t *Terminal) LogPath() string {
	if t.slog == nil {
		return ""
	}
	return t.slog.Path()
}

// Run opens the device and log, runs the main loop until the exit command
// is entered or ctx is cancelled, and closes everything it opened. It
// returns nil after a normal exit, an error wrapping device.ErrConnection
// if the device could not be opened, device.ErrRead/ErrWrite for I/O
// failures during the session, and sessionlog.ErrIO for log failures when
// the log is required.
func (t *Terminal) Run(ctx context.Context) error {
	if !t.ran.CompareAndSwap(false, true) {
		return errors.New("terminal: already run")
	}
	if err := t.start(); err != nil {
		t.shutdown()
		return err
	}
	err := t.loop(ctx)
	t.shutdown()
	return err
}

func (t *Terminal) start() error {
	cfg := t.cfg
	if cfg.Simulate {
		t.console.Noticef("Simulated device: nothing will be received and sent lines are discarded.")
	} else {
		t.console.Noticef("Opening serial port:\ndevice = %q\nbaudrate = %d\nframing = %d%c%d\nread timeout = %v\nwrite timeout = %v",
			cfg.Device, cfg.BaudRate, cfg.DataBits, cfg.Parity, cfg.StopBits, cfg.ReadTimeout, cfg.WriteTimeout)
	}

	dev, err := t.open(cfg)
	if err != nil {
		t.console.Noticef("Failed to open the device. Plug it in and make sure it is not busy.\n%v", err)
		t.log.Error().Err(err).Str("device", cfg.Device).Msg("open device")
		return err
	}
	t.dev = dev

	if cfg.Logging {
		l, err := sessionlog.Open(cfg.LogDir, t.now())
		switch {
		case err == nil:
			t.slog = l
			t.console.Noticef("Logging all incoming data to\n%q.", l.Path())
		case cfg.LogRequired:
			t.console.Noticef("Failed to open log file; logging is required, aborting.\n%v", err)
			t.log.Error().Err(err).Str("dir", cfg.LogDir).Msg("open session log")
			return err
		default:
			t.console.Noticef("Failed to open log file; continuing WITHOUT logging.\n%v", err)
			t.log.Warn().Err(err).Str("dir", cfg.LogDir).Msg("open session log")
		}
	}

	t.relay = relay.New(t.input, t.queue, t.gate, relay.WithOnReady(func() {
		t.console.Noticef("Ready for keyboard input. To exit, type %q.", cfg.ExitCommand)
	}))
	t.relay.Start()

	t.state.Store(int32(StateRunning))
	t.gate.Open()
	return nil
}

func (t *Terminal) loop(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := t.pollDevice(); err != nil {
			t.console.Noticef("Session aborted: %v", err)
			return err
		}

		exit, err := t.handleLine()
		if err != nil {
			t.console.Noticef("Device write failed: %v", err)
			return err
		}
		if exit {
			t.console.Noticef("Exiting serial terminal.")
			return nil
		}

		t.watchInput()

		select {
		case <-ctx.Done():
			t.console.Noticef("Interrupted.")
			return nil
		case <-ticker.C:
		}
	}
}

// pollDevice moves whatever the device has buffered to the screen and log.
func (t *Terminal) pollDevice() error {
	n, err := t.dev.Buffered()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	chunk, err := t.dev.ReadAvailable()
	if len(chunk) > 0 {
		if werr := t.emit(t.decoder.decode(chunk)); werr != nil {
			return werr
		}
	}
	return err
}

func (t *Terminal) emit(text string) error {
	if text == "" {
		return nil
	}
	if err := t.console.Data(text); err != nil {
		t.log.Warn().Err(err).Msg("write to console")
	}
	if t.slog == nil {
		return nil
	}
	if err := t.slog.Append(text); err != nil {
		if t.cfg.LogRequired {
			t.console.Noticef("Writing the log file failed; logging is required, aborting.\n%v", err)
			return err
		}
		t.console.Noticef("Writing the log file failed; logging stopped.\n%v", err)
		t.log.Warn().Err(err).Str("path", t.slog.Path()).Msg("append session log")
		t.slog.Close()
		t.slog = nil
	}
	return nil
}

// handleLine takes at most one queued operator line. It reports true when
// the line was the exit command.
func (t *Terminal) handleLine() (bool, error) {
	line, ok := t.queue.TryPop()
	if !ok {
		return false, nil
	}
	if line == t.cfg.ExitCommand {
		return true, nil
	}
	out := line + t.cfg.LineEnding
	t.log.Debug().Str("data", out).Msg("send")
	return false, t.dev.Write([]byte(out))
}

// watchInput reports once that operator input has ended. The session keeps
// running so device output is still shown; it ends on a signal.
func (t *Terminal) watchInput() {
	if t.inputClosed {
		return
	}
	select {
	case <-t.relay.Done():
		t.inputClosed = true
		t.console.Noticef("Keyboard input closed (%v). Device output is still shown; press Ctrl-C to quit.", t.relay.Err())
		t.log.Warn().Err(t.relay.Err()).Msg("operator input closed")
	default:
	}
}

// shutdown closes the device, then the log. The relay goroutine is left
// blocked on its read.
func (t *Terminal) shutdown() {
	t.state.Store(int32(StateClosing))
	t.console.Noticef("Closing terminal.")

	if t.dev != nil {
		if err := t.dev.Close(); err != nil {
			t.log.Warn().Err(err).Msg("close device")
		}
	}

	if rest := t.decoder.flush(); rest != "" {
		t.emit(rest)
	}

	if t.slog != nil {
		path := t.slog.Path()
		if err := t.slog.Close(); err != nil {
			t.log.Warn().Err(err).Str("path", path).Msg("close session log")
		}
		t.console.Noticef("Closed log file\n%q.", path)
	}

	t.state.Store(int32(StateClosed))
}
