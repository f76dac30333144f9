package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ninebox-hr/ninebox-shell/internal/config"
)

// Environment variables every backend receives
const (
	EnvDataDir = "NINEBOX_DATA_DIR"
	EnvPort    = "NINEBOX_PORT"
)

// OutputSink receives every line the backend prints
type OutputSink interface {
	WriteLine(stream, line string)
}

// LauncherConfig contains configuration for spawning the backend
type LauncherConfig struct {
	BackendPath          string // explicit binary, skips discovery
	BackendName          string
	Args                 []string
	DataDir              string
	WorkingDir           string
	Runtime              *config.RuntimeConfig
	PortDiscoveryTimeout time.Duration
}

// Launcher spawns backend processes and discovers the port they listen on
type Launcher struct {
	config LauncherConfig
	sink   OutputSink
	logger *zap.SugaredLogger

	// replaced in tests
	resolve func(override, name string) (string, error)
	environ func() []string
}

// NewLauncher creates a launcher. sink may be nil.
func NewLauncher(cfg LauncherConfig, sink OutputSink, logger *zap.SugaredLogger) *Launcher {
	if cfg.PortDiscoveryTimeout == 0 {
		cfg.PortDiscoveryTimeout = 15 * time.Second
	}
	if cfg.Runtime == nil {
		cfg.Runtime = config.NewRuntimeConfig(nil)
	}
	return &Launcher{
		config:  cfg,
		sink:    sink,
		logger:  logger,
		resolve: ResolveExecutable,
		environ: os.Environ,
	}
}

// Launch starts a backend asking for requestedPort and returns once it has
// printed its ready line. The returned process may listen on a different port
// than requested.
func (l *Launcher) Launch(ctx context.Context, requestedPort int) (*Process, error) {
	binary, err := l.resolve(l.config.BackendPath, l.config.BackendName)
	if err != nil {
		l.logger.Errorw("Backend executable not found", "error", err)
		return nil, err
	}

	env := l.buildEnvironment(requestedPort)

	l.logger.Infow("Starting backend",
		"binary", binary,
		"args", maskSensitiveArgs(l.config.Args),
		"requested_port", requestedPort,
		"runtime_keys", len(l.config.Runtime.Keys()))
	l.logger.Debugw("Backend environment", "env_vars", maskSensitiveEnv(env))

	cmd := exec.Command(binary, l.config.Args...)
	cmd.Env = env
	if l.config.WorkingDir != "" {
		cmd.Dir = l.config.WorkingDir
	}
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrExecutableNotFound, err)
		}
		return nil, fmt.Errorf("failed to start backend: %w", err)
	}

	proc := newProcess(cmd, l.logger)
	l.mark("started %s pid=%d requested_port=%d", binary, proc.pid, requestedPort)

	readyCh := make(chan int, 1)
	var readers sync.WaitGroup
	readers.Add(2)
	go l.captureOutput(stdout, "stdout", readyCh, &readers)
	go l.captureOutput(stderr, "stderr", nil, &readers)

	// Pipes must be drained before Wait closes them
	go func() {
		readers.Wait()
		err := cmd.Wait()
		proc.markExited(err)
		info := proc.ExitInfo()
		l.mark("pid=%d exited code=%d signal=%s", proc.pid, info.Code, info.Signal)
	}()

	timer := time.NewTimer(l.config.PortDiscoveryTimeout)
	defer timer.Stop()

	select {
	case port := <-readyCh:
		return l.ready(proc, port), nil

	case <-proc.Done():
		// The ready line may have been the last thing printed
		select {
		case port := <-readyCh:
			return l.ready(proc, port), nil
		default:
		}
		info := proc.ExitInfo()
		l.logger.Errorw("Backend exited before reporting ready",
			"pid", proc.pid, "exit_code", info.Code, "signal", info.Signal)
		return nil, &PrematureExitError{Code: info.Code, Signal: info.Signal}

	case <-timer.C:
		l.logger.Errorw("Backend did not report a port in time",
			"pid", proc.pid, "timeout", l.config.PortDiscoveryTimeout)
		_ = proc.Kill()
		return nil, fmt.Errorf("%w after %v", ErrPortDiscoveryTimeout, l.config.PortDiscoveryTimeout)

	case <-ctx.Done():
		_ = proc.Kill()
		return nil, ctx.Err()
	}
}

func (l *Launcher) ready(proc *Process, port int) *Process {
	proc.port = port
	l.logger.Infow("Backend reported ready",
		"pid", proc.pid,
		"port", port,
		"discovery_time", time.Since(proc.startedAt))
	return proc
}

// buildEnvironment layers runtime config and the supervisor's own variables
// over the shell environment. Later sources replace earlier keys.
func (l *Launcher) buildEnvironment(requestedPort int) []string {
	var overrides []string
	for _, kv := range l.config.Runtime.Environ() {
		// the supervisor owns these
		if k := envKey(kv); k != EnvDataDir && k != EnvPort {
			overrides = append(overrides, kv)
		}
	}
	overrides = append(overrides,
		EnvDataDir+"="+l.config.DataDir,
		EnvPort+"="+strconv.Itoa(requestedPort),
	)

	replaced := make(map[string]struct{}, len(overrides))
	for _, kv := range overrides {
		replaced[envKey(kv)] = struct{}{}
	}

	base := l.environ()
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		if _, ok := replaced[envKey(kv)]; !ok {
			env = append(env, kv)
		}
	}
	return append(env, overrides...)
}

func envKey(kv string) string {
	if i := strings.IndexByte(kv, '='); i >= 0 {
		return kv[:i]
	}
	return kv
}

// captureOutput copies a pipe into the sink line by line. The stdout reader
// also feeds the ready scanner until a port is found.
func (l *Launcher) captureOutput(pipe io.Reader, stream string, readyCh chan<- int, done *sync.WaitGroup) {
	defer done.Done()

	var scanner ReadyScanner
	reader := bufio.NewScanner(pipe)
	reader.Buffer(make([]byte, 64*1024), 1024*1024)

	for reader.Scan() {
		line := reader.Text()
		if l.sink != nil {
			l.sink.WriteLine(stream, line)
		}

		if readyCh != nil && scanner.Port() == 0 {
			if port, ok := scanner.Feed([]byte(line + "\n")); ok {
				readyCh <- port
			}
		}

		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "panic") {
			l.logger.Warnw("Backend error output", "stream", stream, "line", line)
		} else {
			l.logger.Debugw("Backend output", "stream", stream, "line", line)
		}
	}

	if err := reader.Err(); err != nil {
		l.logger.Warnw("Error reading backend output", "stream", stream, "error", err)
		// keep draining so the child never blocks on a full pipe
		_, _ = io.Copy(io.Discard, pipe)
	}
}

func (l *Launcher) mark(format string, args ...interface{}) {
	if l.sink != nil {
		l.sink.WriteLine("shell", fmt.Sprintf(format, args...))
	}
}

func isSensitive(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "key") ||
		strings.Contains(s, "secret") ||
		strings.Contains(s, "token") ||
		strings.Contains(s, "password")
}

func maskSensitiveArgs(args []string) []string {
	masked := make([]string, len(args))
	for i, arg := range args {
		if isSensitive(arg) {
			masked[i] = maskValue(arg)
		} else {
			masked[i] = arg
		}
	}
	return masked
}

func maskSensitiveEnv(env []string) []string {
	masked := make([]string, len(env))
	for i, kv := range env {
		key := envKey(kv)
		if len(key) < len(kv) && isSensitive(key) {
			masked[i] = key + "=" + maskValue(kv[len(key)+1:])
		} else {
			masked[i] = kv
		}
	}
	return masked
}

func maskValue(v string) string {
	if len(v) > 8 {
		return v[:4] + "****" + v[len(v)-4:]
	}
	return "****"
}
