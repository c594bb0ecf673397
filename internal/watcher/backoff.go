package watcher

import (
	"math"
	"time"
)

// Backoff is the reconnect delay of one account. The zero value is not
// usable; create it with NewBackoff.
type Backoff struct {
	initial time.Duration
	current time.Duration
}

func NewBackoff(initial time.Duration) Backoff {
	return Backoff{initial: initial, current: initial}
}

func (b *Backoff) Current() time.Duration {
	return b.current
}

// Advance doubles the delay, saturating at the largest Duration.
func (b *Backoff) Advance() {
	if b.current > math.MaxInt64/2 {
		b.current = math.MaxInt64
		return
	}
	b.current *= 2
}

func (b *Backoff) Reset() {
	b.current = b.initial
}
