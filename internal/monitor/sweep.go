package monitor

import (
	"context"
	"os"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SweepPort terminates any process other than this one still listening on
// port: SIGTERM first, then a kill once grace has passed. It returns the pids
// it acted on.
func SweepPort(ctx context.Context, port int, grace time.Duration, logger *zap.SugaredLogger) ([]int32, error) {
	if port <= 0 {
		return nil, nil
	}

	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}

	self := int32(os.Getpid())
	seen := make(map[int32]struct{})
	var swept []int32

	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid <= 0 || c.Pid == self {
			continue
		}
		if _, ok := seen[c.Pid]; ok {
			continue
		}
		seen[c.Pid] = struct{}{}

		proc, err := process.NewProcessWithContext(ctx, c.Pid)
		if err != nil {
			continue
		}

		name, _ := proc.NameWithContext(ctx)
		logger.Warnw("Terminating stray process on backend port", "pid", c.Pid, "name", name, "port", port)

		if err := proc.TerminateWithContext(ctx); err != nil {
			logger.Debugw("Terminate failed", "pid", c.Pid, "error", err)
		}
		if !waitGone(ctx, proc, grace) {
			if err := proc.KillWithContext(ctx); err != nil {
				logger.Warnw("Failed to kill stray process", "pid", c.Pid, "error", err)
				continue
			}
		}
		swept = append(swept, c.Pid)
	}

	return swept, nil
}

func waitGone(ctx context.Context, proc *process.Process, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		running, err := proc.IsRunningWithContext(ctx)
		if err != nil || !running {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return false
}
