// Package workqueue implements a serialized, delay-aware work queue, owning a
// single execution context, per [Worker].
//
// Tasks are scheduled with a minimum start time ("not before"), and an
// optional slot. Scheduling into a slot that already holds a pending task
// replaces that task (debounce): the replaced task is never run. Tasks without
// a slot are independent, and run in arrival order among those due at the
// same instant.
//
// # Execution
//
// Due tasks may be consumed in one of two ways:
//
//   - [Worker.Run] is the worker's own background context, which runs due
//     tasks continuously, and blocks while nothing is due.
//   - [Worker.RunOneDue] runs at most one due task, on the caller's goroutine,
//     which is the primitive a deterministic drain is built on.
//
// Consumption is exclusive: at most one task from a given worker executes at
// any instant, no matter which of the above is used. RunOneDue does not wait
// for another consumer, it reports that nothing ran.
//
// The background context only enters StateWaiting in the same critical
// section that finds nothing due, and scheduling moves it back to
// StateRunning in the critical section that enqueues, so StateWaiting is
// never observed while a due task is pending.
//
// # Quiescence
//
// [Worker.IsExecuting] and [Worker.PendingCount] are provided for idle
// detection. A task is flagged as executing within the same critical section
// that removes it from the queue, so there is no window in which a task has
// left the queue but is not yet reported as executing. Callers must still
// check IsExecuting before PendingCount.
//
// # Failures
//
// Panics within a task are recovered, logged, and counted (see [Stats]). The
// worker then continues with the next due task. Nothing is retried.
package workqueue
