// Package coordinator wires a registry of sync lanes, their synchronizers,
// the focus tracker and the verification harness together, from
// configuration.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/joeycumines/go-bigbuff"
	"github.com/joeycumines/go-synclane/channels"
	"github.com/joeycumines/go-synclane/clock"
	"github.com/joeycumines/go-synclane/config"
	"github.com/joeycumines/go-synclane/drain"
	"github.com/joeycumines/go-synclane/focus"
	"github.com/joeycumines/go-synclane/harness"
	"github.com/joeycumines/go-synclane/syncstate"
	"github.com/joeycumines/go-synclane/workqueue"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

type (
	// Options models the dependencies of New, that are not configuration.
	Options struct {
		// Transport is required.
		Transport syncstate.Transport

		// Clock defaults to clock.Real.
		Clock clock.Clock

		// Logger is optional.
		Logger *logiface.Logger[logiface.Event]
	}

	// Coordinator is the process-level owner of every worker.
	Coordinator struct {
		registry *channels.Registry
		focus    *focus.Tracker
		harness  *harness.Harness
		logger   *logiface.Logger[logiface.Event]
		syncs    map[channels.Key]*syncstate.Synchronizer
		notifier bigbuff.Notifier
	}
)

// New builds a Coordinator. The ctx is used by synchronizers, for transport
// calls and publishing events. The config must be valid.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Coordinator, error) {
	if cfg == nil || opts.Transport == nil {
		return nil, errors.New("coordinator: config and transport are required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	syncCfg, err := cfg.Sync.SyncConfig()
	if err != nil {
		return nil, err
	}

	x := &Coordinator{
		logger: opts.Logger,
		syncs:  make(map[channels.Key]*syncstate.Synchronizer, len(cfg.Channels)),
	}
	syncCfg.Logger = opts.Logger
	syncCfg.Notifier = &x.notifier

	x.registry = channels.New(&channels.Config{
		Clock:  opts.Clock,
		Logger: opts.Logger,
		Mode:   cfg.ChannelMode(),
	}, cfg.Keys()...)

	for _, key := range x.registry.Keys() {
		w, _ := x.registry.Worker(key)
		x.syncs[key] = syncstate.New(ctx, syncstate.Lane(key), w, opts.Transport, syncCfg)
	}

	focusWorker := workqueue.New(
		workqueue.WithClock(opts.Clock),
		workqueue.WithLogger(opts.Logger),
		workqueue.WithName(focus.Slot),
	)
	x.focus = focus.New(focusWorker, &focus.Config{
		Logger:         opts.Logger,
		UnfocusedDelay: cfg.Focus.UnfocusedDelay,
	})
	x.focus.OnLost(x.FlushAll)

	x.harness = harness.New(x.registry, &harness.Config{
		Focus:  focusWorker,
		Logger: opts.Logger,
		Poller: drain.Poller{Quantum: cfg.Poller.Quantum},
	})

	return x, nil
}

// Registry returns the channel registry.
func (x *Coordinator) Registry() *channels.Registry { return x.registry }

// Focus returns the focus tracker.
func (x *Coordinator) Focus() *focus.Tracker { return x.focus }

// Harness returns the verification harness.
func (x *Coordinator) Harness() *harness.Harness { return x.harness }

// Synchronizer returns the synchronizer for a channel.
func (x *Coordinator) Synchronizer(key channels.Key) (*syncstate.Synchronizer, error) {
	if v, ok := x.syncs[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q", channels.ErrUnknownChannel, key)
}

// FlushAll flushes every synchronizer.
func (x *Coordinator) FlushAll() {
	for _, v := range x.syncs {
		v.Flush()
	}
}

// Subscribe registers target, a channel of syncstate.SyncEvent, to receive
// the events of every lane. See also syncstate.Synchronizer.Subscribe.
func (x *Coordinator) Subscribe(ctx context.Context, target any) context.CancelFunc {
	cancels := make([]context.CancelFunc, 0, len(x.syncs))
	for _, v := range x.syncs {
		cancels = append(cancels, v.Subscribe(ctx, target))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Run blocks until ctx is done. In production mode, it runs every worker's
// background context, including the focus worker's, for the duration. In
// deterministic mode, nothing is started, and workers only drain via the
// harness. A cancelled ctx is not treated as an error.
func (x *Coordinator) Run(ctx context.Context) error {
	mode := x.registry.Mode()

	x.logger.Info().
		Stringer(`mode`, mode).
		Int(`channels`, len(x.syncs)).
		Log(`coordinator running`)

	if mode == channels.ModeDeterministic {
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return x.registry.Run(ctx) })
	g.Go(func() error { return x.focus.Worker().Run(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	return err
}
