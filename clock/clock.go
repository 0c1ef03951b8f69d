// Package clock provides an injectable time source.
//
// Code that arms timers or reads the wall clock takes a Clock instead of calling the
// time package directly. Production code passes Real(); tests pass Fake() and move time
// forward with Advance, so deadline behaviour is tested without sleeping.
package clock

import "time"

// Clock abstracts the time operations used by the gateway client and the dashboard.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer cancels the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a scheduled callback created by AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. It returns true if the call stopped the timer and
// false if the timer had already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
