// Package console is the operator's screen. Device data is written as is;
// messages from the terminal itself carry a marker so the two can be told
// apart.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/muesli/termenv"
)

// DefaultMarker prefixes every system message.
const DefaultMarker = "serialterm> "

// Console writes device data and system notices to one stream. It is safe
// for concurrent use.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	prefix string
	indent string
}

// Option configures a Console.
type Option func(*options)

type options struct {
	marker  string
	outOpts []termenv.OutputOption
}

// WithMarker replaces DefaultMarker.
func WithMarker(marker string) Option {
	return func(o *options) { o.marker = marker }
}

// WithProfile forces a color profile instead of detecting one from w.
func WithProfile(p termenv.Profile) Option {
	return func(o *options) { o.outOpts = append(o.outOpts, termenv.WithProfile(p)) }
}

// New returns a console writing to w. The marker is colored when w is a
// terminal that supports it.
func New(w io.Writer, opts ...Option) *Console {
	o := options{marker: DefaultMarker}
	for _, opt := range opts {
		opt(&o)
	}
	out := termenv.NewOutput(w, o.outOpts...)
	styled := out.String(o.marker).Foreground(out.Color("6")).Bold().String()
	return &Console{
		out:    w,
		prefix: styled,
		indent: strings.Repeat(" ", len(o.marker)),
	}
}

// Noticef writes a system message. The first line carries the marker;
// continuation lines are indented to line up under it.
func (c *Console) Noticef(format string, args ...any) {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	lines := strings.Split(msg, "\n")

	var b strings.Builder
	for i, line := range lines {
		if i == 0 {
			b.WriteString(c.prefix)
		} else {
			b.WriteString(c.indent)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, b.String())
}

// Data writes device text exactly as given.
func (c *Console) Data(text string) error {
	if text == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, text)
	return err
}
