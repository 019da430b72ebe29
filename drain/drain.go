package drain

type (
	// Consumer runs at most one due task per call, see
	// workqueue.Worker.RunOneDue.
	Consumer interface {
		RunOneDue() bool
	}

	// Quiescent exposes what is needed to determine whether a worker is idle.
	Quiescent interface {
		IsExecuting() bool
		PendingCount() int
	}
)

// RunAllDue runs due tasks on the calling goroutine until none remain due,
// returning true if at least one ran. Tasks that become due while draining,
// including those scheduled concurrently, are run by the same call. It never
// blocks, neither waiting for a task to become due, nor for another consumer
// of the same worker, which causes it to return false.
func RunAllDue(c Consumer) bool {
	var ran bool
	for c.RunOneDue() {
		ran = true
	}
	return ran
}

// IsIdle reports whether nothing is executing and nothing is pending.
//
// IsExecuting is read strictly before PendingCount: a task leaves the queue
// before it finishes executing, so the reverse order could observe neither.
func IsIdle(q Quiescent) bool {
	if q.IsExecuting() {
		return false
	}
	return q.PendingCount() == 0
}
