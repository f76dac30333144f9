package main

import (
	"errors"

	"github.com/ninebox-hr/ninebox-shell/internal/instance"
	"github.com/ninebox-hr/ninebox-shell/internal/supervisor"
)

// Exit codes reported to whatever launched the shell (installer, autostart entry)

const (
	// ExitCodeSuccess indicates normal program termination
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates a generic error (default)
	ExitCodeGeneralError = 1

	// ExitCodeAlreadyRunning indicates another shell instance holds the data directory lock
	ExitCodeAlreadyRunning = 2

	// ExitCodeStartupFailed indicates the backend never became ready and the user chose to quit
	ExitCodeStartupFailed = 3

	// ExitCodeConfigError indicates configuration validation failed
	ExitCodeConfigError = 4
)

// configError marks failures that happened while loading configuration
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// exitCodeFor maps a command error to a process exit code
func exitCodeFor(err error) int {
	var cfgErr *configError
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, instance.ErrAlreadyRunning):
		return ExitCodeAlreadyRunning
	case errors.Is(err, supervisor.ErrStartupFailed):
		return ExitCodeStartupFailed
	case errors.As(err, &cfgErr):
		return ExitCodeConfigError
	default:
		return ExitCodeGeneralError
	}
}

// exitCodeDescription returns a human-readable description of the exit code
func exitCodeDescription(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "Success"
	case ExitCodeGeneralError:
		return "General error"
	case ExitCodeAlreadyRunning:
		return "Another 9-box shell is already running"
	case ExitCodeStartupFailed:
		return "Backend failed to start"
	case ExitCodeConfigError:
		return "Configuration error"
	default:
		return "Unknown error"
	}
}
