package harness

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-synclane/channels"
	"github.com/joeycumines/go-synclane/clock"
	"github.com/joeycumines/go-synclane/drain"
	"github.com/joeycumines/go-synclane/workqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	clock *clock.Frozen
	reg   *channels.Registry
	push  *workqueue.Worker
	email *workqueue.Worker
	focus *workqueue.Worker
	h     *Harness
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: clock.NewFrozen(epoch)}
	f.reg = channels.New(&channels.Config{Clock: f.clock, Mode: channels.ModeDeterministic}, `push`, `email`)
	var err error
	f.push, err = f.reg.Worker(`push`)
	require.NoError(t, err)
	f.email, err = f.reg.Worker(`email`)
	require.NoError(t, err)
	f.focus = workqueue.New(workqueue.WithClock(f.clock), workqueue.WithName(`focus`))
	f.h = New(f.reg, &Config{Focus: f.focus})
	return f
}

func TestHarness_RunAllNetworkTasks(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.h.RunAllNetworkTasks())

	var ran atomic.Int32
	f.push.Schedule(f.clock.Now(), func() { ran.Add(1) })
	f.email.Schedule(f.clock.Now().Add(time.Second), func() { ran.Add(10) })

	require.True(t, f.h.RunAllNetworkTasks())
	require.False(t, f.h.RunAllNetworkTasks())
	require.Equal(t, int32(1), ran.Load())
	require.False(t, f.h.Idle())

	f.clock.Advance(time.Second)
	require.True(t, f.h.RunAllNetworkTasks())
	require.Equal(t, int32(11), ran.Load())
	require.True(t, f.h.Idle())
}

func TestHarness_RunAllDue_IsIdle(t *testing.T) {
	f := newFixture(t)
	f.push.Schedule(f.clock.Now(), func() {})

	idle, err := f.h.IsIdle(`email`)
	require.NoError(t, err)
	require.True(t, idle)
	idle, err = f.h.IsIdle(`push`)
	require.NoError(t, err)
	require.False(t, idle)

	ran, err := f.h.RunAllDue(`push`)
	require.NoError(t, err)
	require.True(t, ran)
	idle, _ = f.h.IsIdle(`push`)
	require.True(t, idle)

	_, err = f.h.RunAllDue(`sms`)
	require.ErrorIs(t, err, channels.ErrUnknownChannel)
	_, err = f.h.IsIdle(`sms`)
	require.ErrorIs(t, err, channels.ErrUnknownChannel)
}

func TestHarness_RunFocusTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.h.RunFocusTasks(ctx)
	require.NoError(t, err)
	require.False(t, ok, `nothing pending`)

	var ran atomic.Bool
	f.focus.ScheduleSlot(`focus`, f.clock.Now(), func() { ran.Store(true) })
	ok, err = f.h.RunFocusTasks(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ran.Load())
	require.True(t, drain.IsIdle(f.focus))

	// pending but not due: drained, nothing runs, and the wait still ends
	f.focus.ScheduleSlot(`focus`, f.clock.Now().Add(time.Minute), func() {})
	ok, err = f.h.RunFocusTasks(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, f.focus.PendingCount())
}

func TestHarness_RunFocusTasks_executing(t *testing.T) {
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	f.focus.Schedule(f.clock.Now(), func() {
		close(started)
		<-release
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.focus.RunOneDue()
	}()
	<-started

	f.focus.Schedule(f.clock.Now(), func() {})
	ok, err := f.h.RunFocusTasks(context.Background())
	require.NoError(t, err)
	require.False(t, ok, `focus worker is busy`)

	close(release)
	<-done
}

func TestHarness_RunFocusTasks_ctxEndsWait(t *testing.T) {
	f := newFixture(t)

	release := make(chan struct{})
	f.focus.Schedule(f.clock.Now(), func() { <-release })
	defer close(release)

	var phases []drain.Phase
	f.h.poller.Observe = func(p drain.Phase) { phases = append(phases, p) }

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
	defer cancel()
	ok, err := f.h.RunFocusTasks(ctx)
	require.True(t, ok)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	// the clock is frozen, so the poller never blocked
	assert.Equal(t, []drain.Phase{drain.PhaseFrozenPoll}, phases)
}

func TestHarness_ResetAll(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(time.Hour)

	f.push.Schedule(f.clock.Now(), func() { t.Error(`should not run`) })
	f.email.Debounce(`sync`, time.Second, func() { t.Error(`should not run`) })
	f.focus.Debounce(`focus`, time.Second, func() { t.Error(`should not run`) })

	f.h.ResetAll()

	require.True(t, f.h.Idle())
	require.Equal(t, epoch, f.clock.Now())
	require.False(t, f.h.RunAllNetworkTasks())
	ok, err := f.h.RunFocusTasks(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHarness_ResetAll_inFlight(t *testing.T) {
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var completed atomic.Bool
	f.push.Schedule(f.clock.Now(), func() {
		close(started)
		<-release
		completed.Store(true)
	})
	f.push.Schedule(f.clock.Now(), func() { t.Error(`should not run`) })

	done := make(chan bool)
	go func() { done <- f.h.RunAllNetworkTasks() }()
	<-started

	f.h.ResetAll()
	require.False(t, f.h.Idle(), `in-flight task is still executing`)
	require.Equal(t, 0, f.push.PendingCount())

	close(release)
	require.True(t, <-done)
	require.True(t, completed.Load())
	require.True(t, f.h.Idle())
}

func TestNew_nilRegistryPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != `harness: nil registry` {
			t.Error(r)
		}
	}()
	New(nil, nil)
}
