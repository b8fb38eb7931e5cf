// Package clock abstracts time so that timer-driven code (the layout
// scheduler's debounce and throttle, locator polling, grace periods) can be
// driven deterministically in tests.
//
// Production code holds a Clock field set to Real(). Tests use NewFake and
// call Advance to fire timers without sleeping.
package clock

import "time"

// Clock is the subset of the time package used by the engine.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	AfterFunc(d time.Duration, f func()) *Timer
	NewTicker(d time.Duration) *Ticker
	Sleep(d time.Duration)
}

// Timer is a cancellable pending call created by AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the timer from firing. It reports whether the call stopped
// the timer; false means it already fired or was already stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Ticker delivers ticks on C until stopped.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off. It does not close C.
func (t *Ticker) Stop() {
	if t != nil && t.stopFunc != nil {
		t.stopFunc()
	}
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) Sleep(d time.Duration)                  { time.Sleep(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stopFunc: t.Stop}
}
