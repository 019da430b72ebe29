package workqueue

import (
	"github.com/joeycumines/go-synclane/clock"
	"github.com/joeycumines/logiface"
)

// workerOptions holds configuration options for Worker creation.
type workerOptions struct {
	clock  clock.Clock
	logger *logiface.Logger[logiface.Event]
	name   string
}

// Option configures a Worker instance.
type Option interface {
	applyWorker(*workerOptions)
}

// optionImpl implements Option.
type optionImpl struct {
	applyWorkerFunc func(*workerOptions)
}

func (o *optionImpl) applyWorker(opts *workerOptions) {
	o.applyWorkerFunc(opts)
}

// WithClock sets the time source, used to determine when tasks are due.
// Defaults to clock.Real.
func WithClock(c clock.Clock) Option {
	return &optionImpl{func(opts *workerOptions) {
		opts.clock = c
	}}
}

// WithLogger attaches a logger. A nil logger (the default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *workerOptions) {
		opts.logger = logger
	}}
}

// WithName sets the name the worker logs under.
func WithName(name string) Option {
	return &optionImpl{func(opts *workerOptions) {
		opts.name = name
	}}
}

func resolveOptions(opts []Option) *workerOptions {
	cfg := &workerOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyWorker(cfg)
	}
	if cfg.clock == nil {
		cfg.clock = clock.Real{}
	}
	return cfg
}
