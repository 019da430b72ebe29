package drain

import (
	"sync/atomic"

	"github.com/joeycumines/go-synclane/workqueue"
)

// Execution is a one-shot background drain: a dedicated goroutine that runs
// RunAllDue once, then exits. It is Observable, progressing from
// StateRunning to StateTerminated.
type Execution struct {
	done  chan struct{}
	state atomic.Uint32
	ran   atomic.Bool
}

var _ Observable = (*Execution)(nil)

// Start begins an Execution draining c.
func Start(c Consumer) *Execution {
	if c == nil {
		panic(`drain: nil consumer`)
	}
	x := &Execution{done: make(chan struct{})}
	x.state.Store(uint32(workqueue.StateRunning))
	go x.run(c)
	return x
}

func (x *Execution) run(c Consumer) {
	defer close(x.done)
	defer x.state.Store(uint32(workqueue.StateTerminated))
	x.ran.Store(RunAllDue(c))
}

func (x *Execution) State() workqueue.State { return workqueue.State(x.state.Load()) }

func (x *Execution) Done() <-chan struct{} { return x.done }

// Ran reports whether any task ran. It is only meaningful once Done is
// closed.
func (x *Execution) Ran() bool { return x.ran.Load() }
