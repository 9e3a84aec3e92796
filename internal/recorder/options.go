package recorder

import "time"

// Options tunes producer behavior. Zero values are replaced with the
// defaults from DefaultOptions, except Buffer and MaxConsecutiveFailures
// where zero is meaningful.
type Options struct {
	// Buffer is the frame channel capacity.
	Buffer int
	// AcquireTimeout bounds each duplication acquire.
	AcquireTimeout time.Duration
	// RetryDelay is the pause after a failed poll.
	RetryDelay time.Duration
	// PollInterval is the pause between raw poller iterations.
	PollInterval time.Duration
	// MaxConsecutiveFailures promotes a run of retryable errors to fatal.
	// Zero retries forever.
	MaxConsecutiveFailures int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Buffer:                 2,
		AcquireTimeout:         200 * time.Millisecond,
		RetryDelay:             10 * time.Millisecond,
		PollInterval:           time.Millisecond,
		MaxConsecutiveFailures: 100,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = d.AcquireTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.Buffer < 0 {
		o.Buffer = 0
	}
	if o.MaxConsecutiveFailures < 0 {
		o.MaxConsecutiveFailures = 0
	}
	return o
}
