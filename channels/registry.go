// Package channels implements a registry of independent, named work queues,
// one per logical channel (e.g. per state sync lane).
package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joeycumines/go-synclane/clock"
	"github.com/joeycumines/go-synclane/workqueue"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

type (
	// Key identifies a channel.
	Key string

	// Mode selects how due tasks are consumed, for every worker a registry
	// owns.
	Mode int

	// Config models optional configuration for New.
	Config struct {
		// Clock is shared by every worker, and defaults to clock.Real.
		Clock clock.Clock

		// Logger is optional. Each worker logs with its channel key.
		Logger *logiface.Logger[logiface.Event]

		// Mode defaults to ModeProduction.
		Mode Mode
	}

	// Registry is the sole owner of one workqueue.Worker per channel.
	// Channels are fixed at construction.
	Registry struct {
		clock   clock.Clock
		logger  *logiface.Logger[logiface.Event]
		workers map[Key]*workqueue.Worker
		keys    []Key
		mode    Mode
	}
)

const (
	// ModeProduction indicates each worker drains continuously, on its own
	// background context, see Registry.Run.
	ModeProduction Mode = iota
	// ModeDeterministic indicates workers only drain when an external
	// controller consumes their due tasks.
	ModeDeterministic
)

var (
	// ErrUnknownChannel indicates a channel that was not registered.
	ErrUnknownChannel = errors.New("channels: unknown channel")

	// ErrDeterministicMode is returned by Registry.Run, in ModeDeterministic.
	ErrDeterministicMode = errors.New("channels: background draining disabled in deterministic mode")
)

// ParseMode parses the String form of a Mode, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case `production`:
		return ModeProduction, nil
	case `deterministic`:
		return ModeDeterministic, nil
	default:
		return 0, fmt.Errorf("channels: invalid mode %q", s)
	}
}

func (x Mode) String() string {
	switch x {
	case ModeProduction:
		return `production`
	case ModeDeterministic:
		return `deterministic`
	default:
		return fmt.Sprintf(`Mode(%d)`, int(x))
	}
}

// New constructs a Registry with a worker for each key. The config may be
// nil. Empty or duplicate keys will cause a panic.
func New(cfg *Config, keys ...Key) *Registry {
	if cfg == nil {
		cfg = &Config{}
	}

	x := &Registry{
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		workers: make(map[Key]*workqueue.Worker, len(keys)),
		keys:    make([]Key, 0, len(keys)),
		mode:    cfg.Mode,
	}
	if x.clock == nil {
		x.clock = clock.Real{}
	}

	for _, key := range keys {
		if key == `` {
			panic(`channels: empty key`)
		}
		if _, ok := x.workers[key]; ok {
			panic(fmt.Sprintf(`channels: duplicate key %q`, key))
		}
		x.workers[key] = workqueue.New(
			workqueue.WithClock(x.clock),
			workqueue.WithLogger(x.logger.Clone().Str(`channel`, string(key)).Logger()),
			workqueue.WithName(string(key)),
		)
		x.keys = append(x.keys, key)
	}

	return x
}

// Mode returns the mode the registry was constructed with.
func (x *Registry) Mode() Mode { return x.mode }

// Clock returns the clock shared by every worker.
func (x *Registry) Clock() clock.Clock { return x.clock }

// Keys returns the registered keys, in registration order.
func (x *Registry) Keys() []Key { return append([]Key(nil), x.keys...) }

// Worker returns the worker for key, or an error wrapping ErrUnknownChannel.
func (x *Registry) Worker(key Key) (*workqueue.Worker, error) {
	if w, ok := x.workers[key]; ok {
		return w, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, key)
}

// ForEachWorker calls fn for every worker, in no particular order.
func (x *Registry) ForEachWorker(fn func(key Key, w *workqueue.Worker)) {
	for key, w := range x.workers {
		fn(key, w)
	}
}

// Run runs every worker's background context concurrently, until ctx is
// cancelled or one of them fails. In ModeDeterministic it returns
// ErrDeterministicMode without starting anything.
func (x *Registry) Run(ctx context.Context) error {
	if x.mode == ModeDeterministic {
		return ErrDeterministicMode
	}

	x.logger.Info().
		Int(`channels`, len(x.workers)).
		Log(`starting channel workers`)

	g, ctx := errgroup.WithContext(ctx)
	for key, w := range x.workers {
		g.Go(func() error {
			err := w.Run(ctx)
			if err != nil && ctx.Err() == nil {
				err = fmt.Errorf("channels: worker %q: %w", key, err)
			}
			return err
		})
	}
	return g.Wait()
}
