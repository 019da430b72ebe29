package workqueue

import (
	"runtime"
	"testing"
	"time"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// checkNumGoroutines captures the current goroutine count, returning a
// function that fails the test if the count has not returned to (at most)
// that value within timeout.
func checkNumGoroutines(timeout time.Duration) func(t *testing.T) {
	start := runtime.NumGoroutine()
	return func(t *testing.T) {
		t.Helper()
		deadline := time.Now().Add(timeout)
		for {
			n := runtime.NumGoroutine()
			if n <= start {
				return
			}
			if time.Now().After(deadline) {
				t.Errorf(`expected at most %d goroutines, got %d`, start, n)
				return
			}
			time.Sleep(time.Millisecond * 10)
		}
	}
}

// waitFor polls cond until it returns true, failing the test after timeout.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(`timed out waiting for condition`)
		}
		time.Sleep(time.Millisecond)
	}
}
