package workqueue

import (
	"testing"
	"time"

	"github.com/joeycumines/go-synclane/clock"
	"pgregory.net/rapid"
)

// For any interleaving of same-slot schedules and consumption, at most one
// task per slot runs per consumption, and it is the most recently scheduled.
func TestWorker_slotDebounceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := clock.NewFrozen(epoch)
		w := New(WithClock(c))

		slots := []string{`a`, `b`, `c`}
		latest := make(map[string]int)
		ran := make(map[string][]int)
		next := 0

		ops := rapid.IntRange(1, 100).Draw(t, `ops`)
		for range ops {
			switch rapid.IntRange(0, 3).Draw(t, `op`) {
			case 0, 1:
				slot := rapid.SampledFrom(slots).Draw(t, `slot`)
				delay := time.Duration(rapid.IntRange(0, 3).Draw(t, `delay`)) * time.Millisecond
				next++
				v := next
				latest[slot] = v
				w.Debounce(slot, delay, func() { ran[slot] = append(ran[slot], v) })
			case 2:
				c.Advance(time.Millisecond)
				before := make(map[string]int, len(latest))
				for k, v := range latest {
					before[k] = v
				}
				counts := make(map[string]int)
				for k := range ran {
					counts[k] = len(ran[k])
				}
				for w.RunOneDue() {
				}
				for k, v := range ran {
					if len(v) == counts[k] {
						continue
					}
					if len(v) != counts[k]+1 {
						t.Fatalf(`slot %q ran %d tasks in one drain`, k, len(v)-counts[k])
					}
					if got := v[len(v)-1]; got != before[k] {
						t.Fatalf(`slot %q ran %d, latest was %d`, k, got, before[k])
					}
					delete(latest, k)
				}
			case 3:
				w.Stop()
				clear(latest)
			}
			if w.PendingCount() != len(latest) {
				t.Fatalf(`pending %d, expected %d`, w.PendingCount(), len(latest))
			}
		}
	})
}

// Stop always leaves an idle, empty worker, and a drain immediately after
// a successful drain finds nothing.
func TestWorker_stopAndDrainProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := clock.NewFrozen(epoch)
		w := New(WithClock(c))

		n := rapid.IntRange(0, 20).Draw(t, `n`)
		for range n {
			w.Schedule(c.Now(), func() {})
		}
		if rapid.Bool().Draw(t, `stop`) {
			if got := w.Stop(); got != n {
				t.Fatalf(`stopped %d, expected %d`, got, n)
			}
			if w.IsExecuting() || w.PendingCount() != 0 {
				t.Fatal(`expected idle`)
			}
			n = 0
		}

		var ran bool
		for w.RunOneDue() {
			ran = true
		}
		if ran != (n != 0) {
			t.Fatalf(`ran=%v n=%d`, ran, n)
		}
		if w.RunOneDue() {
			t.Fatal(`expected nothing due`)
		}
	})
}
