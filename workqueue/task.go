package workqueue

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Task is a unit of deferred work. It must not be nil.
	Task func()

	// TaskID identifies a single enqueue, see Worker.Schedule.
	TaskID uuid.UUID

	// entry is a pending task
	entry struct {
		notBefore time.Time
		task      Task
		slot      string
		seq       uint64
		index     int
		id        TaskID
	}

	// taskHeap orders pending tasks by (notBefore, seq)
	taskHeap []*entry
)

func newTaskID() TaskID { return TaskID(uuid.New()) }

func (x TaskID) String() string { return uuid.UUID(x).String() }

// IsZero reports whether x is the zero value.
func (x TaskID) IsZero() bool { return x == TaskID{} }

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].notBefore.Equal(h[j].notBefore) {
		return h[i].seq < h[j].seq
	}
	return h[i].notBefore.Before(h[j].notBefore)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
