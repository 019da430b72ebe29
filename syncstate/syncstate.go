// Package syncstate implements per-lane state synchronizers, which coalesce
// local state mutations into debounced, rate limited, retried calls to a
// remote sync endpoint, using a workqueue.Worker as their execution context.
package syncstate

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/go-bigbuff"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-synclane/workqueue"
	"github.com/joeycumines/logiface"
)

const (
	// LanePush is the push subscription state lane.
	LanePush Lane = `push`
	// LaneEmail is the email subscription state lane.
	LaneEmail Lane = `email`

	// SyncSlot is the worker slot sync tasks are scheduled into.
	SyncSlot = `sync`

	// DefaultDebounce is the default Config.Debounce.
	DefaultDebounce = 5 * time.Second
	// DefaultMaxRetries is the default Config.MaxRetries.
	DefaultMaxRetries = 3
	// DefaultRetryBackoff is the default Config.RetryBackoff.
	DefaultRetryBackoff = 15 * time.Second
)

type (
	// Lane identifies an independent sync target.
	Lane string

	// Transport performs the remote sync call. Implementations must respect
	// ctx.
	Transport interface {
		Sync(ctx context.Context, req Request) error
	}

	// TransportFunc implements Transport.
	TransportFunc func(ctx context.Context, req Request) error

	// Request is a single sync attempt.
	Request struct {
		Changes map[string]any
		Lane    Lane
		Attempt int
	}

	// SyncEvent is published after every sync attempt.
	SyncEvent struct {
		At      time.Time
		Err     error
		Lane    Lane
		Keys    []string
		Attempt int
		// Dropped indicates the change set was discarded, after exhausting
		// retries.
		Dropped bool
	}

	// Config models optional configuration for New.
	Config struct {
		// Logger is optional.
		Logger *logiface.Logger[logiface.Event]

		// Limiter optionally rate limits sync calls, per lane. A denied call
		// is deferred until the limiter's next allowed time, as measured by
		// the wall clock.
		Limiter *catrate.Limiter

		// Notifier receives SyncEvent values, keyed by Lane. It may be shared
		// between synchronizers. Defaults to a new Notifier.
		Notifier *bigbuff.Notifier

		// Debounce is how long after the last mutation a sync is attempted.
		// Defaults to DefaultDebounce.
		Debounce time.Duration

		// RetryBackoff is multiplied by the attempt number to determine the
		// delay before a retry. A sync already pending sooner (e.g. flushed
		// while the failed attempt was in flight) is not postponed. Defaults
		// to DefaultRetryBackoff.
		RetryBackoff time.Duration

		// MaxRetries is the number of attempts before a change set is
		// dropped. Defaults to DefaultMaxRetries.
		MaxRetries int
	}

	// Synchronizer tracks unsynchronized ("dirty") state for a lane.
	Synchronizer struct {
		ctx       context.Context
		transport Transport
		worker    *workqueue.Worker
		logger    *logiface.Logger[logiface.Event]
		limiter   *catrate.Limiter
		notifier  *bigbuff.Notifier
		dirty     map[string]any
		lane      Lane
		cfg       Config
		attempt   int
		mu        sync.Mutex
	}
)

var (
	// compile time assertions
	_ Transport = TransportFunc(nil)
)

func (f TransportFunc) Sync(ctx context.Context, req Request) error { return f(ctx, req) }

// New initialises a Synchronizer for lane, which runs its sync tasks on w.
// The ctx is used for transport calls, and for publishing events. The config
// may be nil.
func New(ctx context.Context, lane Lane, w *workqueue.Worker, transport Transport, cfg *Config) *Synchronizer {
	if ctx == nil || lane == `` || w == nil || transport == nil {
		panic(`syncstate: invalid arguments`)
	}

	x := &Synchronizer{
		ctx:       ctx,
		transport: transport,
		worker:    w,
		dirty:     make(map[string]any),
		lane:      lane,
	}
	if cfg != nil {
		x.cfg = *cfg
	}
	if x.cfg.Debounce <= 0 {
		x.cfg.Debounce = DefaultDebounce
	}
	if x.cfg.RetryBackoff <= 0 {
		x.cfg.RetryBackoff = DefaultRetryBackoff
	}
	if x.cfg.MaxRetries <= 0 {
		x.cfg.MaxRetries = DefaultMaxRetries
	}
	x.logger = x.cfg.Logger.Clone().Str(`lane`, string(lane)).Logger()
	x.limiter = x.cfg.Limiter
	x.notifier = x.cfg.Notifier
	if x.notifier == nil {
		x.notifier = new(bigbuff.Notifier)
	}

	return x
}

// Lane returns the lane.
func (x *Synchronizer) Lane() Lane { return x.lane }

// Set records a mutation, and (re)starts the debounce.
func (x *Synchronizer) Set(key string, value any) {
	x.mu.Lock()
	x.dirty[key] = value
	x.mu.Unlock()
	x.worker.Debounce(SyncSlot, x.cfg.Debounce, x.sync)
}

// Flush schedules a sync for immediately, replacing any pending debounce.
func (x *Synchronizer) Flush() {
	x.worker.ScheduleSlot(SyncSlot, x.worker.Clock().Now(), x.sync)
}

// Dirty returns a copy of the unsynchronized state.
func (x *Synchronizer) Dirty() map[string]any {
	x.mu.Lock()
	defer x.mu.Unlock()
	return maps.Clone(x.dirty)
}

// Subscribe registers target, a channel of SyncEvent, to receive events for
// this lane. Sends are blocking, so target must be received from promptly.
// The returned cancel func must be called, unless ctx is cancelled.
func (x *Synchronizer) Subscribe(ctx context.Context, target any) context.CancelFunc {
	return x.notifier.SubscribeCancel(ctx, x.lane, target)
}

func (x *Synchronizer) sync() {
	x.mu.Lock()
	if len(x.dirty) == 0 {
		x.mu.Unlock()
		return
	}
	changes := x.dirty
	x.dirty = make(map[string]any)
	x.attempt++
	attempt := x.attempt
	x.mu.Unlock()

	keys := slices.Sorted(maps.Keys(changes))

	if next, ok := x.limiter.Allow(x.lane); !ok {
		delay := time.Until(next)
		x.restore(changes, true)
		x.worker.Debounce(SyncSlot, delay, x.sync)
		x.logger.Debug().
			Dur(`delay`, delay).
			Log(`sync rate limited`)
		return
	}

	err := x.transport.Sync(x.ctx, Request{
		Changes: changes,
		Lane:    x.lane,
		Attempt: attempt,
	})

	event := SyncEvent{
		At:      x.worker.Clock().Now(),
		Err:     err,
		Lane:    x.lane,
		Keys:    keys,
		Attempt: attempt,
	}

	switch {
	case err == nil:
		x.mu.Lock()
		x.attempt = 0
		x.mu.Unlock()
		x.logger.Debug().
			Int(`attempt`, attempt).
			Int(`keys`, len(keys)).
			Log(`synced state`)

	case attempt >= x.cfg.MaxRetries:
		x.mu.Lock()
		x.attempt = 0
		x.mu.Unlock()
		event.Dropped = true
		x.logger.Err().
			Err(err).
			Int(`attempt`, attempt).
			Int(`keys`, len(keys)).
			Log(`sync failed, dropping changes`)

	default:
		x.restore(changes, false)
		delay := time.Duration(attempt) * x.cfg.RetryBackoff
		// a Flush or Set made during the attempt may already be sooner
		x.worker.Expedite(SyncSlot, x.worker.Clock().Now().Add(delay), x.sync)
		x.logger.Warning().
			Err(err).
			Int(`attempt`, attempt).
			Dur(`delay`, delay).
			Log(`sync failed, retrying`)
	}

	x.notifier.PublishContext(x.ctx, x.lane, event)
}

// restore merges changes back into the dirty state, without overwriting
// newer mutations
func (x *Synchronizer) restore(changes map[string]any, uncount bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for k, v := range changes {
		if _, ok := x.dirty[k]; !ok {
			x.dirty[k] = v
		}
	}
	if uncount {
		x.attempt--
	}
}
