package drain

import (
	"context"
	"runtime"
	"time"

	"github.com/joeycumines/go-synclane/workqueue"
	"github.com/joeycumines/logiface"
)

// DefaultQuantum is the maximum time a Poller blocks per iteration, if
// Poller.Quantum is unset.
const DefaultQuantum = time.Millisecond

type (
	// Observable is a background execution context, which the Poller may
	// wait on. It is implemented by workqueue.Worker and Execution.
	Observable interface {
		State() workqueue.State
		Done() <-chan struct{}
	}

	// Phase is the state of a Poller's wait loop.
	Phase int

	// Poller waits for an Observable to block (StateWaiting) or exit
	// (StateTerminated). The zero value is ready to use.
	Poller struct {
		// Frozen reports whether the time source driving the observed
		// context is frozen. While it is, the Poller never blocks, it only
		// yields and re-samples. May be nil.
		Frozen func() bool

		// Observe is called with each new phase, including the final one.
		// May be nil.
		Observe func(Phase)

		// Logger is optional.
		Logger *logiface.Logger[logiface.Event]

		// Quantum bounds each blocking wait, and defaults to DefaultQuantum.
		// It is measured in real time, regardless of Frozen.
		Quantum time.Duration
	}
)

const (
	// PhaseRunning indicates the context is active, and not yet confirmed
	// idle.
	PhaseRunning Phase = iota
	// PhaseWaiting indicates the context is blocked with nothing due.
	PhaseWaiting
	// PhaseTerminated indicates the context has exited.
	PhaseTerminated
	// PhaseFrozenPoll indicates the context is not yet idle, and the time
	// source is frozen, so the Poller is re-sampling without blocking.
	PhaseFrozenPoll
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return `Running`
	case PhaseWaiting:
		return `Waiting`
	case PhaseTerminated:
		return `Terminated`
	case PhaseFrozenPoll:
		return `FrozenPoll`
	default:
		return `Unknown`
	}
}

// Terminal reports whether the phase ends a wait.
func (p Phase) Terminal() bool {
	return p == PhaseWaiting || p == PhaseTerminated
}

// Wait polls o until it reaches PhaseWaiting or PhaseTerminated, which is
// returned with a nil error. If ctx is done first, the last phase observed
// is returned with ctx.Err().
func (x *Poller) Wait(ctx context.Context, o Observable) (Phase, error) {
	quantum := x.Quantum
	if quantum <= 0 {
		quantum = DefaultQuantum
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	last := Phase(-1)
	for {
		phase := phaseOf(o.State())
		frozen := !phase.Terminal() && x.Frozen != nil && x.Frozen()
		if frozen {
			phase = PhaseFrozenPoll
		}

		if phase != last {
			last = phase
			x.Logger.Trace().
				Stringer(`phase`, phase).
				Log(`poller phase`)
			if x.Observe != nil {
				x.Observe(phase)
			}
		}

		if phase.Terminal() {
			return phase, nil
		}

		if err := ctx.Err(); err != nil {
			return phase, err
		}

		if frozen {
			runtime.Gosched()
			continue
		}

		if timer == nil {
			timer = time.NewTimer(quantum)
		} else {
			timer.Reset(quantum)
		}

		select {
		case <-ctx.Done():
		case <-o.Done():
		case <-timer.C:
		}
	}
}

func phaseOf(state workqueue.State) Phase {
	switch state {
	case workqueue.StateWaiting:
		return PhaseWaiting
	case workqueue.StateTerminated:
		return PhaseTerminated
	default:
		return PhaseRunning
	}
}
