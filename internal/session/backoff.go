// ABOUTME: Exponential reconnect backoff with jitter
// ABOUTME: Delay doubles per consecutive failure, capped, plus up to 25% jitter

package session

import (
	"math/rand"
	"time"
)

type backoff struct {
	base    time.Duration
	cap     time.Duration
	rng     *rand.Rand
	attempt int
}

func newBackoff(base, cap time.Duration, rng *rand.Rand) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if cap < base {
		cap = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &backoff{base: base, cap: cap, rng: rng}
}

// next returns the delay before the following connection attempt. Jitter
// spreads simultaneous reconnecting clients so they do not stampede the
// backend in lockstep.
func (b *backoff) next() time.Duration {
	d := b.base
	for i := 0; i < b.attempt && d < b.cap; i++ {
		d *= 2
	}
	if d > b.cap {
		d = b.cap
	}
	b.attempt++

	jitter := time.Duration(b.rng.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// reset is called after a connection reaches the open state so the next
// failure starts the schedule over at the base delay.
func (b *backoff) reset() {
	b.attempt = 0
}
