package supervisor

import (
	"context"

	"github.com/ninebox-hr/ninebox-shell/internal/state"
)

// Choice is the user's answer to a failure dialog
type Choice int

const (
	ChoiceExit Choice = iota
	ChoiceRetry
)

func (c Choice) String() string {
	if c == ChoiceRetry {
		return "retry"
	}
	return "exit"
}

// StartupFailure describes why the first launch failed
type StartupFailure struct {
	Info    state.FailureInfo
	Err     error
	LogPath string // empty when the failure has no logs affordance
}

// RestartExhausted describes a terminal restart failure
type RestartExhausted struct {
	Info     state.FailureInfo
	Attempts int
	LogPath  string
}

// Dialog asks the user how to proceed after a failure. Implementations must
// return ChoiceExit when ctx ends.
type Dialog interface {
	ShowStartupFailure(ctx context.Context, failure StartupFailure) Choice
	ShowRestartExhausted(ctx context.Context, exhausted RestartExhausted) Choice
}
