package recorder

import "sync"

// Gate is a level-triggered open/closed flag with a blocking wait. It
// starts closed. Wake and Sleep may be called any number of times from any
// goroutine; Wait only ever observes the current level, so no wakeup is
// lost between cycles.
type Gate struct {
	mu         sync.Mutex
	cond       *sync.Cond
	open       bool
	terminated bool
}

// NewGate returns a closed gate.
func NewGate() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Wake opens the gate. Opening an open gate does nothing.
func (g *Gate) Wake() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open || g.terminated {
		return
	}
	g.open = true
	g.cond.Signal()
}

// Sleep closes the gate. The waiter notices on its next call to Wait.
func (g *Gate) Sleep() {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
}

// Terminate releases any waiter for good. Wait returns false from then on.
func (g *Gate) Terminate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminated {
		return
	}
	g.terminated = true
	g.cond.Broadcast()
}

// Wait blocks until the gate is open or terminated. It returns true when
// the caller may produce a frame and false when it should exit.
func (g *Gate) Wait() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for !g.open && !g.terminated {
		g.cond.Wait()
	}
	return !g.terminated
}

// IsOpen reports the current level.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open && !g.terminated
}
