// Package clock models the time source that drives delayed work.
//
// Two implementations are provided, both backed by
// github.com/benbjohnson/clock. [Real] is the wall clock. [Frozen] wraps a
// mock, and only advances when told to, which makes delay-based scheduling
// deterministic: a timer created against a Frozen clock fires exactly when
// [Frozen.Advance] (or [Frozen.Set]) moves the clock to, or past, its deadline.
//
// Timers are created from an absolute deadline, rather than a duration, as
// the scheduling code only ever knows deadlines. Unlike the underlying mock,
// a Frozen timer whose deadline has already passed fires immediately, and
// Reset releases outstanding timers, rather than leaving them to fire at
// some unrelated later time.
//
// Consumers should depend on the [Clock] interface, and type assert for
// [Resetter] where they need to restore the initial instant (e.g. between
// independent test cases).
package clock
