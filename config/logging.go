package config

import (
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// ParseLevel parses the short keyword form of a logiface.Level, as returned
// by its String method.
func ParseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("config: invalid log level %q", s)
}

// NewLogger builds a JSON logger writing to Output. The returned closer
// releases the output, and must be called once the logger is no longer in
// use.
func (l Logging) NewLogger() (*logiface.Logger[logiface.Event], io.Closer, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch l.Output {
	case `stdout`:
		w = os.Stdout
	case `stderr`:
		w = os.Stderr
	default:
		f, err := os.OpenFile(l.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("config: failed to open log output: %w", err)
		}
		w, closer = f, f
	}

	return NewLogger(w, level), closer, nil
}

// NewLogger builds a JSON logger writing to w.
func NewLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
