// Package clock abstracts wall-clock time and delayed callbacks so that
// throttle windows, retries and escalations can be tested deterministically.
package clock

import "time"

// Timer is a scheduled callback that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Clock provides the current time and one-shot delayed callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the system clock.
type Real struct{}

// Now returns current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// AfterFunc runs f in its own goroutine after d.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
