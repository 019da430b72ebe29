package workqueue

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-synclane/clock"
	"github.com/joeycumines/logiface"
)

type (
	// Worker is a serialized work queue, see the package documentation.
	// Instances must be constructed using New.
	Worker struct {
		clock     clock.Clock
		logger    *logiface.Logger[logiface.Event]
		wake      chan struct{}
		done      chan struct{}
		slots     map[string]*entry
		name      string
		queue     taskHeap
		seq       uint64
		executed  atomic.Uint64
		cancelled atomic.Uint64
		replaced  atomic.Uint64
		panicked  atomic.Uint64
		// mu guards queue, slots, and seq
		mu sync.Mutex
		// consumeMu is held by whichever context is consuming due tasks
		consumeMu sync.Mutex
		state     stateMachine
		executing atomic.Bool
	}

	// Stats is a point-in-time snapshot of a worker's counters.
	Stats struct {
		// Executed is the number of tasks that have run, including those
		// that panicked.
		Executed uint64
		// Cancelled is the number of pending tasks discarded by Stop.
		Cancelled uint64
		// Replaced is the number of pending tasks replaced via their slot.
		Replaced uint64
		// Panicked is the number of tasks that panicked.
		Panicked uint64
		// Pending is the number of tasks in the queue.
		Pending int
	}
)

// New initialises a new Worker. Due tasks will not be run until either Run
// is called, or they are consumed via RunOneDue.
func New(opts ...Option) *Worker {
	cfg := resolveOptions(opts)
	w := &Worker{
		clock: cfg.clock,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		slots: make(map[string]*entry),
		name:  cfg.name,
	}
	if cfg.name != `` {
		w.logger = cfg.logger.Clone().Str(`worker`, cfg.name).Logger()
	} else {
		w.logger = cfg.logger
	}
	return w
}

// Name returns the name the worker was configured with, see WithName.
func (w *Worker) Name() string { return w.name }

// Clock returns the time source the worker uses to determine due tasks.
func (w *Worker) Clock() clock.Clock { return w.clock }

// Schedule enqueues task, to run no earlier than notBefore.
func (w *Worker) Schedule(notBefore time.Time, task Task) TaskID {
	return w.schedule(``, notBefore, task)
}

// ScheduleSlot enqueues task into slot, to run no earlier than notBefore,
// atomically replacing any task pending in the same slot. The replaced task
// will never run. An empty slot behaves like Schedule.
func (w *Worker) ScheduleSlot(slot string, notBefore time.Time, task Task) TaskID {
	return w.schedule(slot, notBefore, task)
}

// Debounce is ScheduleSlot, relative to the worker's clock.
func (w *Worker) Debounce(slot string, delay time.Duration, task Task) TaskID {
	return w.schedule(slot, w.clock.Now().Add(delay), task)
}

// Expedite is ScheduleSlot, except it never postpones: if the task pending in
// slot is already due no later than notBefore, it is kept, and its id is
// returned, with false.
func (w *Worker) Expedite(slot string, notBefore time.Time, task Task) (TaskID, bool) {
	if slot == `` {
		panic(`workqueue: empty slot`)
	}
	return w.enqueue(slot, notBefore, task, true)
}

func (w *Worker) schedule(slot string, notBefore time.Time, task Task) TaskID {
	id, _ := w.enqueue(slot, notBefore, task, false)
	return id
}

func (w *Worker) enqueue(slot string, notBefore time.Time, task Task, expedite bool) (TaskID, bool) {
	if task == nil {
		panic(`workqueue: nil task`)
	}

	e := &entry{
		notBefore: notBefore,
		task:      task,
		slot:      slot,
		id:        newTaskID(),
	}

	var replaced *entry

	w.mu.Lock()
	if slot != `` {
		if old, ok := w.slots[slot]; ok {
			if expedite && !old.notBefore.After(notBefore) {
				w.mu.Unlock()
				return old.id, false
			}
			heap.Remove(&w.queue, old.index)
			replaced = old
		}
		w.slots[slot] = e
	}
	w.seq++
	e.seq = w.seq
	heap.Push(&w.queue, e)
	// no longer confirmed idle, until the loop re-evaluates
	w.state.TryTransition(StateWaiting, StateRunning)
	w.mu.Unlock()

	if replaced != nil {
		w.replaced.Add(1)
		w.logger.Debug().
			Str(`slot`, slot).
			Stringer(`task_id`, e.id).
			Stringer(`replaced_id`, replaced.id).
			Log(`replaced pending task`)
	}

	w.signal()

	return e.id, true
}

// Stop cancels all pending tasks, returning the number cancelled. A task that
// is already executing is unaffected. The worker remains usable.
func (w *Worker) Stop() int {
	w.mu.Lock()
	n := len(w.queue)
	for _, e := range w.queue {
		e.index = -1
	}
	clear(w.queue)
	w.queue = w.queue[:0]
	clear(w.slots)
	w.mu.Unlock()

	if n != 0 {
		w.cancelled.Add(uint64(n))
		w.logger.Debug().
			Int(`cancelled`, n).
			Log(`stopped worker`)
	}

	w.signal()

	return n
}

// RunOneDue runs the earliest due task, if any, on the calling goroutine,
// returning true if a task ran. It never blocks. If another context (the
// background loop, or another caller) is currently consuming, it returns
// false, as it also does when called from within a task of the same worker.
func (w *Worker) RunOneDue() bool {
	if !w.consumeMu.TryLock() {
		return false
	}
	defer w.consumeMu.Unlock()
	e, _, _ := w.dequeueDue(false)
	if e == nil {
		return false
	}
	w.execute(e)
	return true
}

// Run is the worker's background execution context. It runs due tasks until
// ctx is cancelled, blocking (StateWaiting) whenever nothing is due. It
// returns ctx.Err() on cancellation, ErrAlreadyRunning if another call is in
// progress, or ErrTerminated if a previous call has returned.
func (w *Worker) Run(ctx context.Context) error {
	if !w.state.TryTransition(StateAwake, StateRunning) {
		if w.state.Load() == StateTerminated {
			return ErrTerminated
		}
		return ErrAlreadyRunning
	}

	defer close(w.done)
	defer w.state.Store(StateTerminated)

	w.logger.Debug().Log(`worker started`)

	err := w.run(ctx)

	w.logger.Debug().Err(err).Log(`worker terminated`)

	return err
}

func (w *Worker) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// parks (StateWaiting) unless ctx ended the drain
		deadline, ok := w.runDue(ctx)

		var timer clock.Timer
		var timerC <-chan time.Time
		if ok {
			timer = w.clock.NewTimer(deadline)
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
		case <-w.wake:
		case <-timerC:
		}

		if timer != nil {
			timer.Stop()
		}

		w.state.TryTransition(StateWaiting, StateRunning)
	}
}

// runDue runs due tasks until none remain, returning the deadline of the next
// pending task, if any. The worker is left in StateWaiting, unless ctx is
// done.
func (w *Worker) runDue(ctx context.Context) (time.Time, bool) {
	w.consumeMu.Lock()
	defer w.consumeMu.Unlock()
	for ctx.Err() == nil {
		e, deadline, ok := w.dequeueDue(true)
		if e == nil {
			return deadline, ok
		}
		w.execute(e)
	}
	return time.Time{}, false
}

// dequeueDue removes and returns the earliest task, if it is due, flagging
// the worker as executing. Otherwise, it returns the deadline of the earliest
// task, if there is one, and if park is set, transitions the background
// context to StateWaiting, within the same critical section.
func (w *Worker) dequeueDue(park bool) (*entry, time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		if park {
			w.state.TryTransition(StateRunning, StateWaiting)
		}
		return nil, time.Time{}, false
	}

	head := w.queue[0]
	if head.notBefore.After(w.clock.Now()) {
		if park {
			w.state.TryTransition(StateRunning, StateWaiting)
		}
		return nil, head.notBefore, true
	}

	heap.Pop(&w.queue)
	if head.slot != `` && w.slots[head.slot] == head {
		delete(w.slots, head.slot)
	}

	w.executing.Store(true)

	return head, time.Time{}, false
}

func (w *Worker) execute(e *entry) {
	defer w.executing.Store(false)
	defer w.executed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			w.panicked.Add(1)
			w.logger.Err().
				Err(PanicError{Value: r}).
				Stringer(`task_id`, e.id).
				Str(`slot`, e.slot).
				Log(`task panicked`)
		}
	}()
	e.task()
}

// signal wakes the background context, if it is waiting
func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// State returns the current state of the background context. StateWaiting
// is only reported while nothing is due: a parked context whose earliest
// task has since become due (e.g. the clock was advanced) is reported as
// StateRunning, until it has consumed that task.
func (w *Worker) State() State {
	state := w.state.Load()
	if state == StateWaiting && w.headDue() {
		return StateRunning
	}
	return state
}

func (w *Worker) headDue() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) != 0 && !w.queue[0].notBefore.After(w.clock.Now())
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// IsExecuting reports whether a task is currently running, on any context.
func (w *Worker) IsExecuting() bool { return w.executing.Load() }

// PendingCount returns the number of tasks in the queue, due or not.
func (w *Worker) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// NextDue returns the earliest notBefore of any pending task.
func (w *Worker) NextDue() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return time.Time{}, false
	}
	return w.queue[0].notBefore, true
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Executed:  w.executed.Load(),
		Cancelled: w.cancelled.Load(),
		Replaced:  w.replaced.Load(),
		Panicked:  w.panicked.Load(),
		Pending:   w.PendingCount(),
	}
}
