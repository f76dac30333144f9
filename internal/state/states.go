package state

import (
	"context"
	"errors"

	"github.com/ninebox-hr/ninebox-shell/internal/monitor"
)

// ConnectionStatus is the shell's belief about whether the backend is reachable
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// AllStatuses lists every connection status
var AllStatuses = []ConnectionStatus{StatusConnected, StatusReconnecting, StatusDisconnected}

// RestartPhase is the restart coordinator's position in its attempt cycle
type RestartPhase string

const (
	// PhaseIdle means no restart is running
	PhaseIdle RestartPhase = "idle"

	// PhaseAttempting means a restart attempt is in flight
	PhaseAttempting RestartPhase = "attempting"

	// PhaseExhaustedDialog means automatic attempts ran out and the user
	// has been asked to retry or exit
	PhaseExhaustedDialog RestartPhase = "exhausted_dialog"
)

// CanTransition checks if a restart phase change is valid
func CanTransition(from, to RestartPhase) bool {
	validTransitions := map[RestartPhase][]RestartPhase{
		PhaseIdle: {
			PhaseAttempting,
			PhaseExhaustedDialog, // startup failure goes straight to the dialog
		},
		PhaseAttempting: {
			PhaseIdle,
			PhaseAttempting, // next attempt while under the limit
			PhaseExhaustedDialog,
		},
		PhaseExhaustedDialog: {
			PhaseAttempting, // manual retry
			PhaseIdle,       // recovered while the dialog was open
		},
	}

	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// FailureKind classifies a supervisor failure for the UI
type FailureKind string

const (
	FailureNone                 FailureKind = ""
	FailureExecutableNotFound   FailureKind = "executable_not_found"
	FailurePortDiscoveryTimeout FailureKind = "port_discovery_timeout"
	FailurePrematureExit        FailureKind = "premature_exit"
	FailureNotReady             FailureKind = "not_ready"
	FailureHealthCheckFailed    FailureKind = "health_check_failed"
	FailureRestartExhausted     FailureKind = "restart_exhausted"
	FailureUnknown              FailureKind = "unknown"
)

// KindError is implemented by errors that already know their failure kind
type KindError interface {
	error
	FailureKind() FailureKind
}

type kindError struct {
	kind FailureKind
	msg  string
}

func (e *kindError) Error() string            { return e.msg }
func (e *kindError) FailureKind() FailureKind { return e.kind }

// NewKindError returns a sentinel error classified as kind
func NewKindError(kind FailureKind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// ClassifyFailure maps any error onto the failure taxonomy
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var ke KindError
	if errors.As(err, &ke) {
		return ke.FailureKind()
	}

	var exitErr *monitor.PrematureExitError
	switch {
	case errors.Is(err, monitor.ErrExecutableNotFound):
		return FailureExecutableNotFound
	case errors.Is(err, monitor.ErrPortDiscoveryTimeout):
		return FailurePortDiscoveryTimeout
	case errors.As(err, &exitErr):
		return FailurePrematureExit
	case errors.Is(err, context.DeadlineExceeded):
		return FailureNotReady
	}
	return FailureUnknown
}

// FailureInfo is what the UI needs to present a failure
type FailureInfo struct {
	Kind        FailureKind
	Description string
	UserMessage string
	IsError     bool
	ShowLogs    bool // offer "view logs"
	CanRetry    bool
}

// GetFailureInfo returns presentation metadata for kind
func GetFailureInfo(kind FailureKind) FailureInfo {
	infoMap := map[FailureKind]FailureInfo{
		FailureNone: {
			Kind:        FailureNone,
			Description: "No failure",
			UserMessage: "Connected",
		},
		FailureExecutableNotFound: {
			Kind:        FailureExecutableNotFound,
			Description: "Backend executable is missing",
			UserMessage: "The 9-box backend could not be found. Please reinstall the application.",
			IsError:     true,
			// installation problem: no logs, no retry
		},
		FailurePortDiscoveryTimeout: {
			Kind:        FailurePortDiscoveryTimeout,
			Description: "Backend did not report its port",
			UserMessage: "The backend took too long to start.",
			IsError:     true,
			ShowLogs:    true,
			CanRetry:    true,
		},
		FailurePrematureExit: {
			Kind:        FailurePrematureExit,
			Description: "Backend exited during startup",
			UserMessage: "The backend stopped unexpectedly while starting.",
			IsError:     true,
			ShowLogs:    true,
			CanRetry:    true,
		},
		FailureNotReady: {
			Kind:        FailureNotReady,
			Description: "Backend never passed its readiness check",
			UserMessage: "The backend started but is not responding.",
			IsError:     true,
			ShowLogs:    true,
			CanRetry:    true,
		},
		FailureHealthCheckFailed: {
			Kind:        FailureHealthCheckFailed,
			Description: "Backend health check failed",
			UserMessage: "Connection to the backend was lost. Reconnecting...",
			CanRetry:    true,
		},
		FailureRestartExhausted: {
			Kind:        FailureRestartExhausted,
			Description: "Automatic restarts exhausted",
			UserMessage: "The backend could not be restarted. Retry or exit the application.",
			IsError:     true,
			ShowLogs:    true,
			CanRetry:    true,
		},
	}

	if info, ok := infoMap[kind]; ok {
		return info
	}

	return FailureInfo{
		Kind:        FailureUnknown,
		Description: "Unexpected startup error",
		UserMessage: "The backend failed to start.",
		IsError:     true,
		ShowLogs:    true,
		CanRetry:    true,
	}
}
