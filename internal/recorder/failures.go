package recorder

import "sync/atomic"

// failurePolicy decides when steady-state errors end a producer. Errors
// marked Fatal end it at once; other errors are retried until max of them
// occur back to back. A delivered frame resets the run.
type failurePolicy struct {
	max         int64
	consecutive atomic.Int64
}

func newFailurePolicy(max int) *failurePolicy {
	return &failurePolicy{max: int64(max)}
}

// fail records err and reports whether the producer must stop.
func (p *failurePolicy) fail(err error) bool {
	if IsFatal(err) {
		return true
	}
	n := p.consecutive.Add(1)
	return p.max > 0 && n >= p.max
}

func (p *failurePolicy) reset() {
	p.consecutive.Store(0)
}

func (p *failurePolicy) count() int64 {
	return p.consecutive.Load()
}
