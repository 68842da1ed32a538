// ABOUTME: Minimal clock abstraction so reconnect timing is testable
// ABOUTME: Production code uses the system clock; tests substitute a fake

package session

import "time"

// Clock provides the two time operations the channel needs.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
