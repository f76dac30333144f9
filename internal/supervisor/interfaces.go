package supervisor

import (
	"context"
	"time"

	"github.com/ninebox-hr/ninebox-shell/internal/monitor"
	"github.com/ninebox-hr/ninebox-shell/internal/storage"
)

// Backend is a launched backend process
type Backend interface {
	PID() int
	Port() int
	Done() <-chan struct{}
	Stop(ctx context.Context, grace time.Duration) error
}

// Launcher spawns a backend and returns once it has reported its port
type Launcher interface {
	Launch(ctx context.Context, requestedPort int) (Backend, error)
}

// Prober checks backend health
type Prober interface {
	BaseURL(port int) string
	Check(ctx context.Context, port int, timeout time.Duration) error
	WaitUntilReady(ctx context.Context, port, maxAttempts int) bool
}

// Metrics receives supervisor activity
type Metrics interface {
	SetBackendStatus(status string, known []string)
	RecordStatusTransition(from, to string)
	RecordLaunch(result string, discovery time.Duration)
	RecordRestart(success bool)
	RecordHealthCheck(healthy bool, duration time.Duration)
}

// History persists supervisor events
type History interface {
	AppendHistory(entry storage.HistoryEntry) error
}

// SweepFunc terminates stray listeners on port
type SweepFunc func(ctx context.Context, port int, grace time.Duration) error

// WrapLauncher adapts a monitor.Launcher to the Launcher interface
func WrapLauncher(l *monitor.Launcher) Launcher {
	return processLauncher{l}
}

type processLauncher struct {
	l *monitor.Launcher
}

func (p processLauncher) Launch(ctx context.Context, requestedPort int) (Backend, error) {
	proc, err := p.l.Launch(ctx, requestedPort)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

type noopMetrics struct{}

func (noopMetrics) SetBackendStatus(string, []string) {}
func (noopMetrics) RecordStatusTransition(string, string) {}
func (noopMetrics) RecordLaunch(string, time.Duration) {}
func (noopMetrics) RecordRestart(bool) {}
func (noopMetrics) RecordHealthCheck(bool, time.Duration) {}
