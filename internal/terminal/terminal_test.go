package terminal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/luhtfiimanal/serialterm/internal/config"
	"github.com/luhtfiimanal/serialterm/internal/console"
	"github.com/luhtfiimanal/serialterm/internal/device"
	"github.com/luhtfiimanal/serialterm/internal/sessionlog"
)

// syncBuffer lets the test read console output while the relay may write.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// scriptedChannel replays one scripted chunk per poll, then reports nothing.
type scriptedChannel struct {
	mu       sync.Mutex
	script   [][]byte
	endless  []byte
	pending  []byte
	writes   []string
	closes   int
	writeErr error
	readErr  error

	drained     chan struct{}
	drainedOnce sync.Once
}

func newScripted(chunks ...string) *scriptedChannel {
	c := &scriptedChannel{drained: make(chan struct{})}
	for _, s := range chunks {
		c.script = append(c.script, []byte(s))
	}
	return c
}

func (c *scriptedChannel) Buffered() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return 0, c.readErr
	}
	if c.endless != nil {
		c.pending = c.endless
		return len(c.pending), nil
	}
	if len(c.script) == 0 {
		c.drainedOnce.Do(func() { close(c.drained) })
		return 0, nil
	}
	c.pending = c.script[0]
	c.script = c.script[1:]
	return len(c.pending), nil
}

func (c *scriptedChannel) ReadAvailable() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = nil
	return p, nil
}

func (c *scriptedChannel) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return fmt.Errorf("%w: closed", device.ErrWrite)
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, string(p))
	return nil
}

func (c *scriptedChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *scriptedChannel) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func (c *scriptedChannel) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type countingReader struct {
	reads atomic.Int32
}

func (r *countingReader) Read(p []byte) (int, error) {
	r.reads.Add(1)
	return 0, io.EOF
}

func testConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.LogDir = t.TempDir()
	return cfg
}

func newTestTerminal(cfg config.Config, out io.Writer, in io.Reader, ch device.Channel) *Terminal {
	return New(cfg,
		WithConsole(console.New(out, console.WithProfile(termenv.Ascii))),
		WithInput(in),
		WithOpener(func(config.Config) (device.Channel, error) { return ch, nil }),
	)
}

func runWithTimeout(t *testing.T, term *Terminal) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := term.Run(ctx)
	require.NoError(t, ctx.Err(), "session did not end on its own")
	return err
}

func TestRun_SimulatedSessionWithLog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulate = true
	cfg.Logging = true
	cfg.ExitCommand = "exit"
	cfg.LineEnding = "\r"

	var tap bytes.Buffer
	sim := device.NewSimulated(&tap)
	out := &syncBuffer{}
	term := newTestTerminal(cfg, out, strings.NewReader("hello\nexit\n"), sim)

	require.Equal(t, StateInit, term.State())
	require.NoError(t, runWithTimeout(t, term))
	require.Equal(t, StateClosed, term.State())

	require.Equal(t, "hello\r", tap.String())
	require.ErrorIs(t, sim.Write([]byte("x")), device.ErrWrite, "device must be closed")

	path := term.LogPath()
	require.NotEmpty(t, path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, b)

	got := out.String()
	require.Contains(t, got, console.DefaultMarker+"Ready for keyboard input")
	require.Contains(t, got, console.DefaultMarker+"Exiting serial terminal.")
	require.Contains(t, got, console.DefaultMarker+"Closed log file")
}

func TestRun_DefaultOpenerSimulates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulate = true
	cfg.Logging = false
	cfg.Device = "/dev/does-not-exist-serialterm"

	term := New(cfg,
		WithConsole(console.New(io.Discard)),
		WithInput(strings.NewReader("anything\nexit\n")),
	)
	require.NoError(t, runWithTimeout(t, term))
	require.Equal(t, StateClosed, term.State())
}

func TestRun_ChunksDisplayedAndLoggedInOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = true

	ch := newScripted("", "hello world!", "ab", "", "cd\r\n")
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	go func() {
		<-ch.drained
		pw.Write([]byte("exit\n"))
	}()

	out := &syncBuffer{}
	term := newTestTerminal(cfg, out, pr, ch)
	require.NoError(t, runWithTimeout(t, term))

	want := "hello world!abcd\r\n"
	b, err := os.ReadFile(term.LogPath())
	require.NoError(t, err)
	require.Equal(t, want, string(b))
	require.Contains(t, out.String(), want)
	require.Empty(t, ch.Writes())
	require.Equal(t, 1, ch.Closes())
}

func TestRun_LoggingDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = false

	ch := newScripted("device says hi")
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	go func() {
		<-ch.drained
		pw.Write([]byte("exit\n"))
	}()

	out := &syncBuffer{}
	term := newTestTerminal(cfg, out, pr, ch)
	require.NoError(t, runWithTimeout(t, term))

	require.Contains(t, out.String(), "device says hi")
	require.Empty(t, term.LogPath())
	entries, err := os.ReadDir(cfg.LogDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRun_LinesForwardedInOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = false
	cfg.LineEnding = "\r\n"

	ch := newScripted()
	input := "a\nb\n\nEXIT\nc\nexit\nafter\n"
	term := newTestTerminal(cfg, io.Discard, strings.NewReader(input), ch)
	require.NoError(t, runWithTimeout(t, term))

	require.Equal(t, []string{"a\r\n", "b\r\n", "\r\n", "EXIT\r\n", "c\r\n"}, ch.Writes())
	require.Equal(t, 1, ch.Closes())
}

func TestRun_ExitWithPendingDeviceData(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = false

	ch := newScripted()
	ch.endless = []byte("noise")
	term := newTestTerminal(cfg, io.Discard, strings.NewReader("exit\nlate\n"), ch)
	require.NoError(t, runWithTimeout(t, term))

	require.Empty(t, ch.Writes())
	require.Equal(t, StateClosed, term.State())
}

func TestRun_OpenFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = true

	in := &countingReader{}
	out := &syncBuffer{}
	term := New(cfg,
		WithConsole(console.New(out, console.WithProfile(termenv.Ascii))),
		WithInput(in),
		WithOpener(func(config.Config) (device.Channel, error) {
			return nil, fmt.Errorf("%w: no such device", device.ErrConnection)
		}),
	)

	err := runWithTimeout(t, term)
	require.ErrorIs(t, err, device.ErrConnection)
	require.Equal(t, StateClosed, term.State())
	require.Contains(t, out.String(), "Failed to open the device")
	require.NotContains(t, out.String(), "Ready for keyboard input")

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, in.reads.Load())

	entries, err := os.ReadDir(cfg.LogDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRun_RealOpenerConnectionError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device = "/dev/does-not-exist-serialterm"

	term := New(cfg, WithConsole(console.New(io.Discard)), WithInput(&countingReader{}))
	require.ErrorIs(t, runWithTimeout(t, term), device.ErrConnection)
	require.Equal(t, StateClosed, term.State())
}

func TestRun_WriteErrorPropagates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = false

	ch := newScripted()
	ch.writeErr = fmt.Errorf("%w: broken pipe", device.ErrWrite)
	term := newTestTerminal(cfg, io.Discard, strings.NewReader("hello\nexit\n"), ch)

	require.ErrorIs(t, runWithTimeout(t, term), device.ErrWrite)
	require.Equal(t, 1, ch.Closes())
	require.Equal(t, StateClosed, term.State())
}

func TestRun_ReadErrorPropagates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = false

	ch := newScripted()
	ch.readErr = fmt.Errorf("%w: input/output error", device.ErrRead)
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	term := newTestTerminal(cfg, io.Discard, pr, ch)

	require.ErrorIs(t, runWithTimeout(t, term), device.ErrRead)
	require.Equal(t, 1, ch.Closes())
}

func TestRun_LogOpenFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	t.Run("required aborts", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LogDir = blocker
		cfg.LogRequired = true

		ch := newScripted()
		in := &countingReader{}
		term := New(cfg,
			WithConsole(console.New(io.Discard)),
			WithInput(in),
			WithOpener(func(config.Config) (device.Channel, error) { return ch, nil }),
		)
		require.ErrorIs(t, runWithTimeout(t, term), sessionlog.ErrIO)
		require.Equal(t, 1, ch.Closes())
		require.Equal(t, StateClosed, term.State())
		require.Zero(t, in.reads.Load())
	})

	t.Run("optional continues", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LogDir = blocker

		ch := newScripted()
		out := &syncBuffer{}
		term := newTestTerminal(cfg, out, strings.NewReader("hi\nexit\n"), ch)
		require.NoError(t, runWithTimeout(t, term))
		require.Contains(t, out.String(), "continuing WITHOUT logging")
		require.Equal(t, []string{"hi\r"}, ch.Writes())
	})
}

func TestRun_ContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = false

	ch := newScripted()
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	term := newTestTerminal(cfg, io.Discard, pr, ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- term.Run(ctx) }()

	require.Eventually(t, func() bool { return term.State() == StateRunning }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.Equal(t, StateClosed, term.State())
	require.Equal(t, 1, ch.Closes())
}

func TestRun_InputEOFReported(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = false

	out := &syncBuffer{}
	term := newTestTerminal(cfg, out, strings.NewReader(""), newScripted())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- term.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Keyboard input closed")
	}, time.Second, time.Millisecond)
	require.Equal(t, StateRunning, term.State())

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, 1, strings.Count(out.String(), "Keyboard input closed"))
}

func TestRun_OnlyOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging = false

	term := newTestTerminal(cfg, io.Discard, strings.NewReader("exit\n"), newScripted())
	require.NoError(t, runWithTimeout(t, term))
	require.Error(t, term.Run(context.Background()))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "init", StateInit.String())
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "closing", StateClosing.String())
	require.Equal(t, "closed", StateClosed.String())
	require.Equal(t, "State(9)", State(9).String())
}

func TestDecoder(t *testing.T) {
	ascii := newDecoder(config.Config{PrintFormat: config.FormatASCII})
	require.Equal(t, "a\r\nb", ascii.decode([]byte("a\r\nb")))
	require.Equal(t, "", ascii.decode(nil))

	crlf := newDecoder(config.Config{PrintFormat: config.FormatASCII, ReplaceCRLF: true})
	var got strings.Builder
	for _, chunk := range []string{"one\r", "\ntwo\r", "x\r\n", "\r"} {
		got.WriteString(crlf.decode([]byte(chunk)))
	}
	got.WriteString(crlf.flush())
	require.Equal(t, "one\ntwo\rx\n\r", got.String())
	require.Equal(t, "", crlf.flush())

	repr := newDecoder(config.Config{PrintFormat: config.FormatRepr})
	require.Equal(t, `ok\r\n\x00`, repr.decode([]byte("ok\r\n\x00")))
}

func TestRun_ReplaceCRLFFlushedToLogAtClose(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReplaceCRLF = true

	ch := newScripted("line\r\n", "tail\r")
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	go func() {
		<-ch.drained
		pw.Write([]byte("exit\n"))
	}()

	term := newTestTerminal(cfg, io.Discard, pr, ch)
	require.NoError(t, runWithTimeout(t, term))

	b, err := os.ReadFile(term.LogPath())
	require.NoError(t, err)
	require.Equal(t, "line\ntail\r", string(b))
}
