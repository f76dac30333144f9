package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ninebox-hr/ninebox-shell/internal/monitor"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RestartPhase
		want     bool
	}{
		{PhaseIdle, PhaseAttempting, true},
		{PhaseAttempting, PhaseIdle, true},
		{PhaseAttempting, PhaseAttempting, true},
		{PhaseAttempting, PhaseExhaustedDialog, true},
		{PhaseExhaustedDialog, PhaseAttempting, true},
		{PhaseIdle, PhaseIdle, false},
		{PhaseExhaustedDialog, PhaseExhaustedDialog, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestClassifyFailure(t *testing.T) {
	healthErr := NewKindError(FailureHealthCheckFailed, "health check failed")

	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, FailureNone},
		{"missing executable", fmt.Errorf("launch: %w", monitor.ErrExecutableNotFound), FailureExecutableNotFound},
		{"discovery timeout", fmt.Errorf("%w after 15s", monitor.ErrPortDiscoveryTimeout), FailurePortDiscoveryTimeout},
		{"premature exit", &monitor.PrematureExitError{Code: 2}, FailurePrematureExit},
		{"wrapped kind error", fmt.Errorf("tick: %w", healthErr), FailureHealthCheckFailed},
		{"deadline", context.DeadlineExceeded, FailureNotReady},
		{"anything else", errors.New("boom"), FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFailure(tt.err))
		})
	}
}

func TestGetFailureInfo(t *testing.T) {
	missing := GetFailureInfo(FailureExecutableNotFound)
	assert.True(t, missing.IsError)
	assert.False(t, missing.ShowLogs, "installation problems have no logs affordance")
	assert.False(t, missing.CanRetry)

	for _, kind := range []FailureKind{FailurePortDiscoveryTimeout, FailurePrematureExit} {
		info := GetFailureInfo(kind)
		assert.True(t, info.ShowLogs, kind)
		assert.True(t, info.IsError, kind)
	}

	health := GetFailureInfo(FailureHealthCheckFailed)
	assert.False(t, health.IsError)
	assert.True(t, health.CanRetry)

	exhausted := GetFailureInfo(FailureRestartExhausted)
	assert.True(t, exhausted.CanRetry)

	unknown := GetFailureInfo("something-new")
	assert.Equal(t, FailureUnknown, unknown.Kind)
	assert.True(t, unknown.ShowLogs)
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(zaptest.NewLogger(t).Sugar())

	ch1, unsub1 := b.Subscribe()
	ch2, _ := b.Subscribe()

	ev := StatusEvent{Status: StatusConnected, Port: 38001, Timestamp: time.Now()}
	b.Publish(ev)

	assert.Equal(t, ev, <-ch1)
	assert.Equal(t, ev, <-ch2)

	unsub1()
	unsub1()
	_, open := <-ch1
	assert.False(t, open)

	b.Publish(StatusEvent{Status: StatusReconnecting})
	assert.Equal(t, StatusReconnecting, (<-ch2).Status)

	b.Close()
	b.Close()
	_, open = <-ch2
	assert.False(t, open)

	// publishing after close is a no-op
	b.Publish(StatusEvent{Status: StatusDisconnected})

	late, _ := b.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestBroadcaster_NeverBlocks(t *testing.T) {
	b := NewBroadcaster(zaptest.NewLogger(t).Sugar())
	ch, _ := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(StatusEvent{Status: StatusReconnecting, RestartAttempts: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	first := <-ch
	require.Equal(t, 0, first.RestartAttempts)
}
