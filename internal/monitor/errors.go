package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutableNotFound means no backend binary could be located. It is an
	// installation problem and retrying will not help.
	ErrExecutableNotFound = errors.New("backend executable not found")

	// ErrPortDiscoveryTimeout means the backend never printed its ready line
	ErrPortDiscoveryTimeout = errors.New("backend did not report a port in time")

	// ErrNoProcess is returned when stopping a process that was never started
	ErrNoProcess = errors.New("no backend process")
)

// PrematureExitError is returned when the backend exits before reporting ready
type PrematureExitError struct {
	Code   int
	Signal string
}

func (e *PrematureExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("backend exited before ready (signal %s)", e.Signal)
	}
	return fmt.Sprintf("backend exited before ready (exit code %d)", e.Code)
}
