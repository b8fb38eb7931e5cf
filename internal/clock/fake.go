package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a virtual clock. Time stands still until Advance is called.
//
// Advance walks forward one deadline at a time: when a waiter fires, Now
// reports that waiter's deadline, so timers scheduled from inside an
// AfterFunc callback are measured from the moment the callback ran and fire
// within the same Advance if their deadline is still covered.
//
// AfterFunc callbacks run synchronously on the goroutine calling Advance.
// They must not call Advance themselves.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*fakeWaiter
	changed *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	seq      uint64
	ch       chan time.Time
	fn       func()
	interval time.Duration
	stopped  bool
	fired    bool
}

// NewFake returns a fake clock reading initial.
func NewFake(initial time.Time) *Fake {
	f := &Fake{now: initial}
	f.changed = sync.NewCond(&f.mu)
	return f
}

// Now returns the current virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives once the clock passes now+d.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.addLocked(&fakeWaiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

// AfterFunc schedules fn to run during the Advance that covers now+d.
// A non-positive d runs fn synchronously.
func (f *Fake) AfterFunc(d time.Duration, fn func()) *Timer {
	if d <= 0 {
		fn()
		return &Timer{stopFunc: func() bool { return false }}
	}

	f.mu.Lock()
	w := &fakeWaiter{deadline: f.now.Add(d), fn: fn}
	f.addLocked(w)
	f.mu.Unlock()

	return &Timer{stopFunc: func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if w.stopped || w.fired {
			return false
		}
		w.stopped = true
		return true
	}}
}

// NewTicker returns a ticker firing every d of virtual time.
func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &fakeWaiter{deadline: f.now.Add(d), ch: ch, interval: d}
	f.addLocked(w)
	return &Ticker{C: ch, stopFunc: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.stopped = true
	}}
}

// Sleep blocks until another goroutine advances the clock past now+d.
func (f *Fake) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-f.After(d)
}

// Pending reports the number of armed timers, tickers and sleeps.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLocked()
}

// WaitForPending blocks until at least n waiters are armed. Tests use it to
// make sure a goroutine has registered its timer before calling Advance.
func (f *Fake) WaitForPending(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pendingLocked() < n {
		f.changed.Wait()
	}
}

// Advance moves virtual time forward by d, firing every waiter whose
// deadline is covered, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		w := f.nextDueLocked(target)
		if w == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		if w.deadline.After(f.now) {
			f.now = w.deadline
		}
		at := f.now
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
		} else {
			w.fired = true
		}
		f.mu.Unlock()

		if w.fn != nil {
			w.fn()
			continue
		}
		select {
		case w.ch <- at:
		default:
		}
	}
}

func (f *Fake) addLocked(w *fakeWaiter) {
	f.seq++
	w.seq = f.seq
	f.waiters = append(f.waiters, w)
	f.changed.Broadcast()
}

func (f *Fake) nextDueLocked(target time.Time) *fakeWaiter {
	live := f.waiters[:0]
	for _, w := range f.waiters {
		if w.stopped || w.fired {
			continue
		}
		live = append(live, w)
	}
	f.waiters = live

	sort.SliceStable(f.waiters, func(i, j int) bool {
		if f.waiters[i].deadline.Equal(f.waiters[j].deadline) {
			return f.waiters[i].seq < f.waiters[j].seq
		}
		return f.waiters[i].deadline.Before(f.waiters[j].deadline)
	})
	if len(f.waiters) == 0 || f.waiters[0].deadline.After(target) {
		return nil
	}
	return f.waiters[0]
}

func (f *Fake) pendingLocked() int {
	n := 0
	for _, w := range f.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}
