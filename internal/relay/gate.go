package relay

import "sync"

// Gate is a one-shot start signal. It begins closed and can be opened once.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases everything waiting on the gate. Only the first call has an
// effect; it reports whether this call opened the gate.
func (g *Gate) Open() bool {
	opened := false
	g.once.Do(func() {
		close(g.ch)
		opened = true
	})
	return opened
}

// Wait returns a channel that is closed once the gate opens.
func (g *Gate) Wait() <-chan struct{} {
	return g.ch
}
