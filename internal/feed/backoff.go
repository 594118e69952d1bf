package feed

import "time"

// Backoff computes reconnect delays: Base * 2^attempts, capped at Max, with
// attempts capped at MaxAttempts.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff returns 1s base, 15s cap, 6 attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Max:         15 * time.Second,
		MaxAttempts: 6,
	}
}

// Next bumps attempts (capped) and returns it with the delay to wait.
func (b Backoff) Next(attempts int) (int, time.Duration) {
	n := attempts + 1
	if b.MaxAttempts > 0 && n > b.MaxAttempts {
		n = b.MaxAttempts
	}
	return n, b.Delay(n)
}

// Delay returns the wait for a given attempt count.
func (b Backoff) Delay(attempts int) time.Duration {
	d := b.Base
	for i := 0; i < attempts && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}
