// Package clock abstracts the current instant so time-relative logic can be
// exercised against fixed dates.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

// New returns the wall clock.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
