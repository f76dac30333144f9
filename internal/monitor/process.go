package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExitInfo contains information about process exit
type ExitInfo struct {
	Code      int
	Signal    string
	Timestamp time.Time
	Error     error
}

// Process is a running backend instance. Its port never changes once the
// launcher has returned it.
type Process struct {
	cmd       *exec.Cmd
	pid       int
	port      int
	startedAt time.Time
	logger    *zap.SugaredLogger

	mu       sync.RWMutex
	exitInfo *ExitInfo
	done     chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func newProcess(cmd *exec.Cmd, logger *zap.SugaredLogger) *Process {
	return &Process{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// PID returns the operating system process id
func (p *Process) PID() int {
	return p.pid
}

// Port returns the port the backend reported in its ready line
func (p *Process) Port() int {
	return p.port
}

// StartedAt returns when the process was spawned
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Done is closed once the process has exited and been reaped
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process is gone
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitInfo returns exit details, nil while the process is running
func (p *Process) ExitInfo() *ExitInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitInfo
}

// markExited records the result of cmd.Wait
func (p *Process) markExited(err error) {
	info := &ExitInfo{Timestamp: time.Now(), Error: err}
	info.Code, info.Signal = exitDetails(err)

	p.mu.Lock()
	p.exitInfo = info
	p.mu.Unlock()
	close(p.done)

	if err != nil {
		p.logger.Warnw("Backend process exited",
			"pid", p.pid,
			"exit_code", info.Code,
			"signal", info.Signal,
			"runtime", time.Since(p.startedAt))
	} else {
		p.logger.Infow("Backend process exited normally",
			"pid", p.pid,
			"runtime", time.Since(p.startedAt))
	}
}

// Stop asks the process to exit, waits up to grace and then force kills it.
// A process that is already gone is not an error. Safe to call repeatedly.
func (p *Process) Stop(ctx context.Context, grace time.Duration) error {
	if p == nil {
		return ErrNoProcess
	}
	p.stopOnce.Do(func() {
		p.stopErr = p.stop(ctx, grace)
	})
	return p.stopErr
}

func (p *Process) stop(ctx context.Context, grace time.Duration) error {
	if p.Exited() {
		return nil
	}

	p.logger.Infow("Stopping backend process", "pid", p.pid, "grace", grace)

	if err := requestStop(p.pid); err != nil {
		p.logger.Warnw("Failed to request graceful stop", "pid", p.pid, "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		p.logger.Infow("Backend process stopped gracefully", "pid", p.pid)
		return nil
	case <-timer.C:
		p.logger.Warnw("Backend did not stop gracefully, force killing", "pid", p.pid)
	case <-ctx.Done():
		p.logger.Warnw("Stop cancelled, force killing", "pid", p.pid)
	}

	if err := p.Kill(); err != nil {
		return err
	}

	// Bound the reap so a wedged process cannot hang shutdown
	select {
	case <-p.done:
		return nil
	case <-time.After(killReapTimeout):
		return fmt.Errorf("backend process %d did not exit after kill", p.pid)
	}
}

// Kill force kills the process and its children without waiting
func (p *Process) Kill() error {
	if p.Exited() {
		return nil
	}
	if err := forceKill(p.pid); err != nil {
		return fmt.Errorf("failed to kill backend process %d: %w", p.pid, err)
	}
	return nil
}

const killReapTimeout = 5 * time.Second
