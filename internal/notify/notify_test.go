package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/ninebox-hr/ninebox-shell/internal/state"
)

type recorder struct {
	titles []string
	err    error
}

func (r *recorder) Notify(title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func TestStatusNotifier_Transitions(t *testing.T) {
	rec := &recorder{}
	n := NewStatusNotifier(rec, zaptest.NewLogger(t).Sugar())

	n.Handle(state.StatusEvent{Status: state.StatusConnected})
	assert.Empty(t, rec.titles, "first connection is silent")

	n.Handle(state.StatusEvent{Status: state.StatusReconnecting, Failure: state.FailureHealthCheckFailed})
	n.Handle(state.StatusEvent{Status: state.StatusReconnecting, Failure: state.FailureHealthCheckFailed})
	n.Handle(state.StatusEvent{Status: state.StatusConnected})
	n.Handle(state.StatusEvent{Status: state.StatusReconnecting})
	n.Handle(state.StatusEvent{Status: state.StatusDisconnected, Failure: state.FailureRestartExhausted})

	assert.Equal(t, []string{
		"9-box reconnecting",
		"9-box reconnected",
		"9-box reconnecting",
		"9-box disconnected",
	}, rec.titles)
}

func TestStatusNotifier_StartupFailure(t *testing.T) {
	rec := &recorder{}
	n := NewStatusNotifier(rec, nil)

	n.Handle(state.StatusEvent{Status: state.StatusDisconnected})
	assert.Empty(t, rec.titles)

	n = NewStatusNotifier(rec, nil)
	n.Handle(state.StatusEvent{Status: state.StatusDisconnected, Failure: state.FailurePrematureExit})
	assert.Equal(t, []string{"9-box disconnected"}, rec.titles)
}

func TestStatusNotifier_ErrorsIgnored(t *testing.T) {
	rec := &recorder{err: errors.New("no notification daemon")}
	n := NewStatusNotifier(rec, nil)

	n.Handle(state.StatusEvent{Status: state.StatusConnected})
	n.Handle(state.StatusEvent{Status: state.StatusReconnecting})
	assert.Len(t, rec.titles, 1)
}

func TestStatusNotifier_Run(t *testing.T) {
	rec := &recorder{}
	n := NewStatusNotifier(rec, nil)

	events := make(chan state.StatusEvent, 3)
	events <- state.StatusEvent{Status: state.StatusConnected}
	events <- state.StatusEvent{Status: state.StatusReconnecting}
	close(events)

	done := make(chan struct{})
	go func() {
		n.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	assert.Equal(t, []string{"9-box reconnecting"}, rec.titles)
}
