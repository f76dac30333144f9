// Package notify raises desktop notifications when the backend connection
// changes.
package notify

import (
	"context"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"github.com/ninebox-hr/ninebox-shell/internal/state"
)

// AppName is shown as the notification source where the platform supports it
const AppName = "9-box"

// Notifier delivers a single notification
type Notifier interface {
	Notify(title, message string) error
}

// Desktop sends notifications through the OS notification center
type Desktop struct{}

// NewDesktop returns a Notifier backed by beeep
func NewDesktop() *Desktop {
	beeep.AppName = AppName
	return &Desktop{}
}

// Notify shows a desktop notification
func (d *Desktop) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// StatusNotifier turns status events into notifications. The first
// connection is silent; after that every status change is announced once.
type StatusNotifier struct {
	notifier Notifier
	logger   *zap.SugaredLogger

	last state.ConnectionStatus
}

// NewStatusNotifier creates a StatusNotifier
func NewStatusNotifier(n Notifier, logger *zap.SugaredLogger) *StatusNotifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StatusNotifier{notifier: n, logger: logger}
}

// Run handles events until ctx ends or the channel closes
func (s *StatusNotifier) Run(ctx context.Context, events <-chan state.StatusEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.Handle(ev)
		}
	}
}

// Handle notifies for ev if it is worth telling the user about
func (s *StatusNotifier) Handle(ev state.StatusEvent) {
	prev := s.last
	s.last = ev.Status
	if prev == ev.Status {
		return
	}

	var title, message string
	switch ev.Status {
	case state.StatusConnected:
		if prev == "" {
			return
		}
		title, message = "9-box reconnected", "The connection to the backend has been restored."
	case state.StatusReconnecting:
		title, message = "9-box reconnecting", state.GetFailureInfo(state.FailureHealthCheckFailed).UserMessage
	case state.StatusDisconnected:
		if prev == "" && ev.Failure == state.FailureNone {
			return
		}
		title = "9-box disconnected"
		message = state.GetFailureInfo(ev.Failure).UserMessage
	default:
		return
	}

	if err := s.notifier.Notify(title, message); err != nil {
		s.logger.Debugw("Failed to show notification", "title", title, "error", err)
	}
}
