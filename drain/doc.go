// Package drain provides the external controls used to make a worker's
// otherwise asynchronous effects observable deterministically: forcing due
// work to run on the caller's goroutine ([RunAllDue]), detecting quiescence
// ([IsIdle]), and waiting for a background context to block or exit without
// ever blocking indefinitely ([Poller]).
//
// The Poller deliberately has no timeout of its own. A context that is
// genuinely stuck cannot be told apart from a slow one, so it is polled in
// bounded quanta until the caller's context is done.
package drain
