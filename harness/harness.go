// Package harness exposes the operations a deterministic test driver needs:
// forcing pending asynchronous work to run, confirming nothing is silently
// still pending, waiting safely for the focus worker, and restoring a clean
// slate between runs.
package harness

import (
	"context"

	"github.com/joeycumines/go-synclane/channels"
	"github.com/joeycumines/go-synclane/clock"
	"github.com/joeycumines/go-synclane/drain"
	"github.com/joeycumines/go-synclane/workqueue"
	"github.com/joeycumines/logiface"
)

type (
	// Config models optional configuration for New.
	Config struct {
		// Focus is the focus worker, which is not part of the registry. May
		// be nil.
		Focus *workqueue.Worker

		// Logger is optional.
		Logger *logiface.Logger[logiface.Event]

		// Poller is used by RunFocusTasks. If Poller.Frozen is nil, it is
		// set to report whether the registry's clock is frozen.
		Poller drain.Poller
	}

	// Harness drives a registry (and focus worker) from the outside.
	Harness struct {
		registry *channels.Registry
		focus    *workqueue.Worker
		logger   *logiface.Logger[logiface.Event]
		poller   drain.Poller
	}
)

// New initialises a Harness. The config may be nil.
func New(registry *channels.Registry, cfg *Config) *Harness {
	if registry == nil {
		panic(`harness: nil registry`)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	x := &Harness{
		registry: registry,
		focus:    cfg.Focus,
		logger:   cfg.Logger,
		poller:   cfg.Poller,
	}
	if x.poller.Frozen == nil {
		x.poller.Frozen = registry.Clock().Frozen
	}
	if x.poller.Logger == nil {
		x.poller.Logger = x.logger
	}
	return x
}

// Registry returns the registry the harness drives.
func (x *Harness) Registry() *channels.Registry { return x.registry }

// RunAllNetworkTasks runs the due tasks of every registry worker, on the
// calling goroutine, returning true if any ran.
func (x *Harness) RunAllNetworkTasks() bool {
	var ran bool
	x.registry.ForEachWorker(func(key channels.Key, w *workqueue.Worker) {
		if drain.RunAllDue(w) {
			ran = true
		}
	})
	return ran
}

// RunFocusTasks drains the focus worker on a separate goroutine, waiting
// until it finishes or blocks. It returns false, without waiting, if the
// focus worker is executing or has nothing pending. The error is non-nil
// only if ctx ended the wait.
func (x *Harness) RunFocusTasks(ctx context.Context) (bool, error) {
	if x.focus == nil || x.focus.IsExecuting() || x.focus.PendingCount() == 0 {
		return false, nil
	}
	phase, err := x.poller.Wait(ctx, drain.Start(x.focus))
	x.logger.Debug().
		Stringer(`phase`, phase).
		Err(err).
		Log(`drained focus worker`)
	return true, err
}

// RunAllDue drains a single channel's worker.
func (x *Harness) RunAllDue(key channels.Key) (bool, error) {
	w, err := x.registry.Worker(key)
	if err != nil {
		return false, err
	}
	return drain.RunAllDue(w), nil
}

// IsIdle reports whether a single channel's worker is idle.
func (x *Harness) IsIdle(key channels.Key) (bool, error) {
	w, err := x.registry.Worker(key)
	if err != nil {
		return false, err
	}
	return drain.IsIdle(w), nil
}

// Idle reports whether every worker, including the focus worker, is idle.
func (x *Harness) Idle() bool {
	idle := x.focus == nil || drain.IsIdle(x.focus)
	x.registry.ForEachWorker(func(key channels.Key, w *workqueue.Worker) {
		if !drain.IsIdle(w) {
			idle = false
		}
	})
	return idle
}

// ResetAll cancels the pending tasks of every worker, then resets the clock
// to its initial state, if it supports that. Tasks that are already executing
// complete normally.
func (x *Harness) ResetAll() {
	var cancelled int
	x.registry.ForEachWorker(func(key channels.Key, w *workqueue.Worker) {
		cancelled += w.Stop()
	})
	if x.focus != nil {
		cancelled += x.focus.Stop()
	}
	if r, ok := x.registry.Clock().(clock.Resetter); ok {
		r.Reset()
	}
	x.logger.Debug().
		Int(`cancelled`, cancelled).
		Log(`reset all workers`)
}
