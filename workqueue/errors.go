package workqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when Run is called on a worker whose
	// background context is already running.
	ErrAlreadyRunning = errors.New("workqueue: worker is already running")

	// ErrTerminated is returned when Run is called on a worker whose
	// background context has already exited.
	ErrTerminated = errors.New("workqueue: worker has been terminated")
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("workqueue: task panicked: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error, for use with
// [errors.Is] and [errors.As].
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
