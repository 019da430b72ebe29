// Package focus tracks application focus transitions. Losing focus schedules
// a debounced "unfocused" task on a dedicated worker, which regaining focus
// cancels.
package focus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-synclane/workqueue"
	"github.com/joeycumines/logiface"
)

const (
	// Slot is the worker slot the unfocused task is scheduled into.
	Slot = `focus`

	// DefaultUnfocusedDelay is the default Config.UnfocusedDelay.
	DefaultUnfocusedDelay = 2 * time.Second
)

type (
	// Config models optional configuration for New.
	Config struct {
		// Logger is optional.
		Logger *logiface.Logger[logiface.Event]

		// UnfocusedDelay is how long focus must be lost before the unfocused
		// callbacks run. Defaults to DefaultUnfocusedDelay.
		UnfocusedDelay time.Duration
	}

	// Tracker is the focus state machine, see the package documentation.
	Tracker struct {
		worker   *workqueue.Worker
		logger   *logiface.Logger[logiface.Event]
		onLost   []func()
		onGained []func()
		delay    time.Duration
		mu       sync.RWMutex
		focused  atomic.Bool
	}
)

// New initialises a Tracker, initially focused, using w as the focus worker.
// The config may be nil.
func New(w *workqueue.Worker, cfg *Config) *Tracker {
	if w == nil {
		panic(`focus: nil worker`)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	x := &Tracker{
		worker: w,
		logger: cfg.Logger,
		delay:  cfg.UnfocusedDelay,
	}
	if x.delay <= 0 {
		x.delay = DefaultUnfocusedDelay
	}
	x.focused.Store(true)
	return x
}

// Worker returns the focus worker.
func (x *Tracker) Worker() *workqueue.Worker { return x.worker }

// Focused reports the last transition.
func (x *Tracker) Focused() bool { return x.focused.Load() }

// OnLost registers fn to run on the focus worker, once focus has been lost
// for the configured delay.
func (x *Tracker) OnLost(fn func()) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.onLost = append(x.onLost, fn)
}

// OnGained registers fn to run synchronously, within Gained.
func (x *Tracker) OnGained(fn func()) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.onGained = append(x.onGained, fn)
}

// Lost records a loss of focus, (re)starting the unfocused debounce.
func (x *Tracker) Lost() workqueue.TaskID {
	x.focused.Store(false)
	id := x.worker.Debounce(Slot, x.delay, x.unfocused)
	x.logger.Debug().
		Stringer(`task_id`, id).
		Dur(`delay`, x.delay).
		Log(`focus lost`)
	return id
}

// Gained records a gain of focus, cancelling any pending unfocused task, and
// then running the gained callbacks.
func (x *Tracker) Gained() {
	x.focused.Store(true)
	cancelled := x.worker.Stop()
	x.logger.Debug().
		Int(`cancelled`, cancelled).
		Log(`focus gained`)
	for _, fn := range x.callbacks(&x.onGained) {
		fn()
	}
}

func (x *Tracker) unfocused() {
	callbacks := x.callbacks(&x.onLost)
	x.logger.Info().
		Int(`callbacks`, len(callbacks)).
		Log(`running unfocused callbacks`)
	for _, fn := range callbacks {
		fn()
	}
}

func (x *Tracker) callbacks(v *[]func()) []func() {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]func(){}, *v...)
}
