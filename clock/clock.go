package clock

import (
	"sync"
	"time"

	benclock "github.com/benbjohnson/clock"
)

type (
	// Clock is a source of time, and of timers that fire relative to it.
	Clock interface {
		// Now returns the current time, per this clock.
		Now() time.Time

		// NewTimer returns a timer that fires once Now reaches deadline. A
		// deadline at or before Now fires immediately.
		NewTimer(deadline time.Time) Timer

		// Frozen indicates the clock only advances when driven explicitly,
		// meaning a wait on one of its timers may never end by itself.
		Frozen() bool
	}

	// Timer is a single-shot timer, see Clock.NewTimer.
	Timer interface {
		// C receives (at most) one value, when the timer fires.
		C() <-chan time.Time

		// Stop prevents the timer from firing, returning false if it had
		// already fired or been stopped.
		Stop() bool
	}

	// Resetter is implemented by clocks that may be restored to their
	// initial state.
	Resetter interface {
		Reset()
	}

	// Real is the wall clock. The zero value is ready to use.
	Real struct{}

	// Frozen is a manually driven clock, see NewFrozen.
	Frozen struct {
		mock    *benclock.Mock
		initial time.Time
		timers  map[*frozenTimer]struct{}
		// mu serialises driving the mock, and guards timers
		mu sync.Mutex
	}

	realTimer struct {
		timer *benclock.Timer
	}

	// frozenTimer relays its mock timer, and may also be released by Reset
	frozenTimer struct {
		clock *Frozen
		timer *benclock.Timer
		ch    chan time.Time
	}
)

var (
	// compile time assertions
	_ Clock    = Real{}
	_ Clock    = (*Frozen)(nil)
	_ Resetter = (*Frozen)(nil)
)

var wall = benclock.New()

func (Real) Now() time.Time { return wall.Now() }

func (Real) NewTimer(deadline time.Time) Timer {
	return realTimer{wall.Timer(time.Until(deadline))}
}

func (Real) Frozen() bool { return false }

func (x realTimer) C() <-chan time.Time { return x.timer.C }

func (x realTimer) Stop() bool { return x.timer.Stop() }

// NewFrozen initialises a Frozen clock, which will report start until it is
// advanced. Reset restores start.
func NewFrozen(start time.Time) *Frozen {
	mock := benclock.NewMock()
	mock.Set(start)
	return &Frozen{
		mock:    mock,
		initial: start,
		timers:  make(map[*frozenTimer]struct{}),
	}
}

func (x *Frozen) Now() time.Time { return x.mock.Now() }

func (x *Frozen) Frozen() bool { return true }

func (x *Frozen) NewTimer(deadline time.Time) Timer {
	t := &frozenTimer{
		clock: x,
		ch:    make(chan time.Time, 1),
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	now := x.mock.Now()
	if !deadline.After(now) {
		t.ch <- now
		return t
	}
	t.timer = x.mock.Timer(deadline.Sub(now))
	x.timers[t] = struct{}{}
	return t
}

// Advance moves the clock forward by d, firing any timers that have become
// due, and returning the new time. A negative d will cause a panic.
func (x *Frozen) Advance(d time.Duration) time.Time {
	if d < 0 {
		panic(`clock: negative advance`)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.mock.Add(d)
	x.relayLocked(false)
	return x.mock.Now()
}

// Set moves the clock to t, which must not be before the current time.
func (x *Frozen) Set(t time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if t.Before(x.mock.Now()) {
		panic(`clock: cannot move frozen clock backwards`)
	}
	x.mock.Set(t)
	x.relayLocked(false)
}

// Reset restores the initial time. Outstanding timers are released (fired)
// rather than dropped, so anything blocked on one re-evaluates against the
// restored time.
func (x *Frozen) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.mock.Set(x.initial)
	x.relayLocked(true)
}

// Timers returns the number of timers that have not fired or been stopped.
func (x *Frozen) Timers() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.timers)
}

// relayLocked forwards the values of mock timers that fired, or if all is
// set, releases every outstanding timer
func (x *Frozen) relayLocked(all bool) {
	for t := range x.timers {
		select {
		case v := <-t.timer.C:
			delete(x.timers, t)
			t.ch <- v
		default:
			if all {
				t.timer.Stop()
				delete(x.timers, t)
				t.ch <- x.mock.Now()
			}
		}
	}
}

func (x *frozenTimer) C() <-chan time.Time { return x.ch }

func (x *frozenTimer) Stop() bool {
	x.clock.mu.Lock()
	defer x.clock.mu.Unlock()
	if _, ok := x.clock.timers[x]; !ok {
		return false
	}
	delete(x.clock.timers, x)
	x.timer.Stop()
	return true
}
