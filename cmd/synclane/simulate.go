package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-synclane/channels"
	"github.com/joeycumines/go-synclane/clock"
	"github.com/joeycumines/go-synclane/coordinator"
	"github.com/joeycumines/go-synclane/syncstate"
	"github.com/joeycumines/go-synclane/workqueue"
	"github.com/spf13/cobra"
)

const maxSettleSteps = 100

var (
	simulationStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	errSimulatedFailure = errors.New("simulated transport failure")
)

type simulation struct {
	out    io.Writer
	x      *coordinator.Coordinator
	clock  *clock.Frozen
	events chan syncstate.SyncEvent
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted scenario, deterministically, on a frozen clock",
		Long: `Runs the coordinator in deterministic mode, on a frozen clock, applying a
scripted sequence of state mutations and focus transitions. Time only moves
when the script advances it, and workers only drain when the script drains
them, so the printed sync events are reproducible.`,
		Args: cobra.NoArgs,
		RunE: runSimulate,
	}
	cmd.Flags().Int("failures", 0, "number of push lane sync calls that fail, before the transport recovers")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Mode = channels.ModeDeterministic.String()

	failures, err := cmd.Flags().GetInt("failures")
	if err != nil {
		return err
	}

	logger, closer, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var remaining atomic.Int64
	remaining.Store(int64(failures))

	s := &simulation{
		out:    cmd.OutOrStdout(),
		clock:  clock.NewFrozen(simulationStart),
		events: make(chan syncstate.SyncEvent, 64),
	}

	s.x, err = coordinator.New(ctx, cfg, coordinator.Options{
		Transport: syncstate.TransportFunc(func(ctx context.Context, req syncstate.Request) error {
			if req.Lane == syncstate.LanePush && remaining.Add(-1) >= 0 {
				return errSimulatedFailure
			}
			return nil
		}),
		Clock:  s.clock,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer s.x.Subscribe(ctx, s.events)()

	return s.run(ctx, cfg.Focus.UnfocusedDelay)
}

func (s *simulation) run(ctx context.Context, unfocusedDelay time.Duration) error {
	push, err := s.x.Synchronizer(channels.Key(syncstate.LanePush))
	if err != nil {
		return err
	}
	email, err := s.x.Synchronizer(channels.Key(syncstate.LaneEmail))
	if err != nil {
		return err
	}
	h := s.x.Harness()

	s.logf("set push.tags, email.address")
	push.Set(`tags`, `vip`)
	email.Set(`address`, `user@example.com`)

	s.advance(time.Second)
	s.logf("set push.language (coalesced)")
	push.Set(`language`, `en`)

	s.logf("focus lost")
	s.x.Focus().Lost()
	s.advance(unfocusedDelay)
	if err := s.drain(ctx); err != nil {
		return err
	}

	s.logf("set push.tags, focus lost then regained")
	push.Set(`tags`, `regular`)
	s.x.Focus().Lost()
	s.advance(unfocusedDelay / 2)
	s.x.Focus().Gained()

	if err := s.settle(ctx); err != nil {
		return err
	}

	h.ResetAll()
	s.logf("reset, idle=%v", h.Idle())

	return nil
}

func (s *simulation) logf(format string, args ...any) {
	fmt.Fprintf(s.out, "[+%s] "+format+"\n", append([]any{s.clock.Now().Sub(simulationStart)}, args...)...)
}

func (s *simulation) advance(d time.Duration) {
	s.clock.Advance(d)
	s.logf("advanced %s", d)
}

// drain runs everything that is due, printing the resulting events
func (s *simulation) drain(ctx context.Context) error {
	h := s.x.Harness()
	if _, err := h.RunFocusTasks(ctx); err != nil {
		return err
	}
	h.RunAllNetworkTasks()
	var events []syncstate.SyncEvent
	for len(s.events) != 0 {
		events = append(events, <-s.events)
	}
	// lanes drain in no particular order
	slices.SortStableFunc(events, func(a, b syncstate.SyncEvent) int {
		return strings.Compare(string(a.Lane), string(b.Lane))
	})
	for _, ev := range events {
		s.printEvent(ev)
	}
	return nil
}

// settle advances the clock to each pending deadline in turn, draining, until
// every worker is idle
func (s *simulation) settle(ctx context.Context) error {
	h := s.x.Harness()
	for range maxSettleSteps {
		if h.Idle() {
			return nil
		}
		if next, ok := s.nextDue(); ok && next.After(s.clock.Now()) {
			d := next.Sub(s.clock.Now())
			s.advance(d)
		}
		if err := s.drain(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("simulation did not settle within %d steps", maxSettleSteps)
}

func (s *simulation) nextDue() (next time.Time, ok bool) {
	consider := func(t time.Time, pending bool) {
		if pending && (!ok || t.Before(next)) {
			next, ok = t, true
		}
	}
	s.x.Registry().ForEachWorker(func(key channels.Key, w *workqueue.Worker) {
		consider(w.NextDue())
	})
	consider(s.x.Focus().Worker().NextDue())
	return
}

func (s *simulation) printEvent(ev syncstate.SyncEvent) {
	status := `ok`
	if ev.Err != nil {
		status = fmt.Sprintf("err=%q", ev.Err)
		if ev.Dropped {
			status += ` dropped`
		}
	}
	s.logf("sync lane=%s attempt=%d keys=%v %s", ev.Lane, ev.Attempt, ev.Keys, status)
}
