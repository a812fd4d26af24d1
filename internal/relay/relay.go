// Package relay moves operator keystrokes into the terminal.
//
// A Relay owns one goroutine that waits on a start Gate, then performs
// blocking line reads on the operator input and pushes each line onto a
// Queue. It never looks at line contents and never touches the device or
// the session log. There is no way to stop it: a read on a terminal cannot
// be interrupted, so the goroutine is left running when the session ends and
// is reclaimed when the process exits.
package relay

import (
	"bufio"
	"io"
	"strings"
)

// Relay forwards operator lines from an input stream to a Queue.
type Relay struct {
	in      *bufio.Reader
	queue   *Queue
	gate    *Gate
	onReady func()

	done chan struct{}
	err  error
}

// Option configures a Relay.
type Option func(*Relay)

// WithOnReady sets a callback run once after the gate opens and before the
// first read, e.g. to prompt the operator.
func WithOnReady(fn func()) Option {
	return func(r *Relay) { r.onReady = fn }
}

// New returns a relay reading lines from in. It does nothing until Start.
func New(in io.Reader, queue *Queue, gate *Gate, opts ...Option) *Relay {
	r := &Relay{
		in:    bufio.NewReader(in),
		queue: queue,
		gate:  gate,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the relay goroutine. It is detached: nothing joins it.
func (r *Relay) Start() {
	go r.run()
}

// Done is closed when the relay stops reading, which only happens when the
// input stream ends or fails.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that stopped the relay (io.EOF when input closed).
// It is only meaningful after Done is closed.
func (r *Relay) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

func (r *Relay) run() {
	defer close(r.done)

	<-r.gate.Wait()
	if r.onReady != nil {
		r.onReady()
	}

	for {
		line, err := r.in.ReadString('\n')
		if err != nil {
			// A partial line at EOF was never confirmed with enter.
			r.err = err
			return
		}
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		r.queue.Push(line)
	}
}
