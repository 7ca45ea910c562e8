package assistant

import "time"

// Backoff produces capped exponential reconnect delays. It is not safe for
// concurrent use; the client guards it with its own mutex.
type Backoff struct {
	initial     time.Duration
	max         time.Duration
	maxAttempts int

	delay    time.Duration
	attempts int
}

// NewBackoff returns a backoff starting at initial and doubling up to max.
// maxAttempts <= 0 never gives up.
func NewBackoff(initial, max time.Duration, maxAttempts int) *Backoff {
	if max < initial {
		max = initial
	}
	return &Backoff{
		initial:     initial,
		max:         max,
		maxAttempts: maxAttempts,
		delay:       initial,
	}
}

// Next returns the delay for the next attempt and advances the sequence. It
// reports false once the attempt limit is reached.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.maxAttempts > 0 && b.attempts >= b.maxAttempts {
		return 0, false
	}
	delay := b.delay
	b.delay = nextBackoff(b.delay, b.max)
	b.attempts++
	return delay, true
}

// Reset returns the sequence to the initial delay.
func (b *Backoff) Reset() {
	b.delay = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

func nextBackoff(delay, max time.Duration) time.Duration {
	if delay >= max/2 {
		return max
	}
	return delay * 2
}
