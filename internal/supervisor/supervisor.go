// Package supervisor keeps the local backend alive for the lifetime of the
// shell. All mutable state is owned by a single event loop goroutine; callers
// read it through Snapshot and status events.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/ninebox-hr/ninebox-shell/internal/observability"
	"github.com/ninebox-hr/ninebox-shell/internal/state"
	"github.com/ninebox-hr/ninebox-shell/internal/storage"
)

var (
	// ErrHealthCheckFailed marks a failed periodic health check
	ErrHealthCheckFailed = state.NewKindError(state.FailureHealthCheckFailed, "backend health check failed")

	// ErrRestartExhausted is reported once automatic restarts run out
	ErrRestartExhausted = state.NewKindError(state.FailureRestartExhausted, "backend restart attempts exhausted")

	// ErrStartupFailed is returned by Start when the user gives up on the
	// first launch
	ErrStartupFailed = errors.New("backend startup failed")

	// ErrStopped is returned when the supervisor has shut down
	ErrStopped = errors.New("supervisor stopped")

	errNotReady  = state.NewKindError(state.FailureNotReady, "backend did not pass its readiness check")
	errNoBackend = errors.New("no backend running")
)

// History event kinds
const (
	EventLaunch        = "launch"
	EventLaunchFailed  = "launch_failed"
	EventStatus        = "status"
	EventRestart       = "restart"
	EventRestartFailed = "restart_failed"
	EventDialog        = "dialog"
	EventShutdown      = "shutdown"
)

// Config holds supervisor timing and limits
type Config struct {
	RequestedPort        int
	HealthInterval       time.Duration
	HealthTimeout        time.Duration
	ReadinessMaxAttempts int
	MaxRestartAttempts   int
	StopGracePeriod      time.Duration
	LogPath              string
	SweepOnShutdown      bool
}

// Dependencies are the collaborators a Supervisor drives. Launcher, Prober
// and Dialog are required.
type Dependencies struct {
	Launcher    Launcher
	Prober      Prober
	Dialog      Dialog
	Scheduler   Scheduler
	Broadcaster *state.Broadcaster
	Metrics     Metrics
	Tracing     *observability.TracingManager
	History     History
	Sweep       SweepFunc

	// OnExit is called from the event loop when the user chooses to quit.
	// It must not block.
	OnExit func()
}

// Snapshot is a consistent view of supervisor state
type Snapshot struct {
	Status          state.ConnectionStatus
	Phase           state.RestartPhase
	Port            int
	PID             int
	URL             string
	RestartAttempts int
	Failure         state.FailureKind
	Since           time.Time
}

type op struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Supervisor launches the backend, checks its health and restarts it when it stops
// answering
type Supervisor struct {
	cfg    Config
	deps   Dependencies
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	status   state.ConnectionStatus
	phase    state.RestartPhase
	failure  state.FailureKind
	counter  int
	proc     Backend
	port     int
	url      string
	since    time.Time
	stopping bool

	// recoveries counts restart coordinator invocations
	recoveries int

	ops     chan op
	tickCh  chan struct{}
	retryCh chan struct{}

	loopCtx    context.Context
	cancelLoop context.CancelFunc
	loopDone   chan struct{}

	started      atomic.Bool
	startOnce    sync.Once
	windowOnce   sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Supervisor. Nothing runs until Start.
func New(cfg Config, deps Dependencies, logger *zap.SugaredLogger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.MaxRestartAttempts < 1 {
		cfg.MaxRestartAttempts = 1
	}
	if cfg.ReadinessMaxAttempts < 1 {
		cfg.ReadinessMaxAttempts = 1
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewTickerScheduler()
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = state.NewBroadcaster(logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.OnExit == nil {
		deps.OnExit = func() {}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
		status:     state.StatusDisconnected,
		phase:      state.PhaseIdle,
		since:      time.Now(),
		ops:        make(chan op),
		tickCh:     make(chan struct{}, 1),
		retryCh:    make(chan struct{}, 1),
		loopCtx:    loopCtx,
		cancelLoop: cancel,
		loopDone:   make(chan struct{}),
	}
}

// Start runs the event loop and performs the first launch. It returns nil
// once the backend is connected, or an error wrapping ErrStartupFailed when
// the user declines to retry.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.loopCtx.Err() != nil {
		return ErrStopped
	}
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
	})

	var result error
	if err := s.submit(ctx, func(loopCtx context.Context) {
		result = s.startup(loopCtx)
	}); err != nil {
		return err
	}
	return result
}

// MarkWindowShown starts periodic health monitoring
func (s *Supervisor) MarkWindowShown() {
	s.windowOnce.Do(func() {
		s.logger.Infow("Starting health monitor", "interval", s.cfg.HealthInterval)
		s.deps.Scheduler.Start(s.cfg.HealthInterval, s.requestTick)
	})
}

// Tick runs one health monitor tick on the event loop and waits for it
func (s *Supervisor) Tick(ctx context.Context) error {
	return s.submit(ctx, s.healthTick)
}

// RequestRetry asks for a manual restart. The counter is reset first.
func (s *Supervisor) RequestRetry() {
	select {
	case s.retryCh <- struct{}{}:
	default:
	}
}

// Subscribe returns status events and a cancel function
func (s *Supervisor) Subscribe() (<-chan state.StatusEvent, func()) {
	return s.deps.Broadcaster.Subscribe()
}

// Snapshot returns the current state
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Status:          s.status,
		Phase:           s.phase,
		Port:            s.port,
		URL:             s.url,
		RestartAttempts: s.counter,
		Failure:         s.failure,
		Since:           s.since,
	}
	if s.proc != nil {
		snap.PID = s.proc.PID()
	}
	return snap
}

// BackendURL returns the base URL of the running backend
func (s *Supervisor) BackendURL() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url, s.url != ""
}

// Shutdown stops monitoring and terminates the backend. Safe to call more
// than once; later calls return the first result.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Supervisor) shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down backend supervisor")

	s.deps.Scheduler.Stop()

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.cancelLoop()
	if s.started.Load() {
		select {
		case <-s.loopDone:
		case <-ctx.Done():
			s.logger.Warn("Timed out waiting for supervisor loop to stop")
		}
	}

	s.mu.Lock()
	proc := s.proc
	port := s.port
	s.proc = nil
	s.port = 0
	s.url = ""
	s.mu.Unlock()

	var errs []error
	if proc != nil {
		if err := proc.Stop(ctx, s.cfg.StopGracePeriod); err != nil {
			errs = append(errs, fmt.Errorf("stop backend: %w", err))
		}
	}
	if s.cfg.SweepOnShutdown && s.deps.Sweep != nil && port > 0 {
		if err := s.deps.Sweep(ctx, port, s.cfg.StopGracePeriod); err != nil {
			errs = append(errs, fmt.Errorf("sweep port %d: %w", port, err))
		}
	}

	s.setStatus(state.StatusDisconnected, state.FailureNone)
	s.record(EventShutdown, "", port)
	s.deps.Broadcaster.Close()

	return errors.Join(errs...)
}

func (s *Supervisor) run() {
	defer close(s.loopDone)

	for {
		if s.loopCtx.Err() != nil {
			return
		}
		select {
		case <-s.loopCtx.Done():
			return
		case o := <-s.ops:
			o.fn(s.loopCtx)
			close(o.done)
		case <-s.tickCh:
			s.healthTick(s.loopCtx)
		case <-s.retryCh:
			s.manualRetry(s.loopCtx)
		}
	}
}

func (s *Supervisor) submit(ctx context.Context, fn func(context.Context)) error {
	o := op{fn: fn, done: make(chan struct{})}

	select {
	case s.ops <- o:
	case <-s.loopDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-o.done:
		return nil
	case <-s.loopDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requestTick queues a tick. Ticks that arrive while one is pending coalesce.
func (s *Supervisor) requestTick() {
	select {
	case s.tickCh <- struct{}{}:
	default:
	}
}

func (s *Supervisor) startup(ctx context.Context) error {
	for {
		err := s.launchAndWait(ctx)
		if err == nil {
			s.mu.Lock()
			s.counter = 0
			s.mu.Unlock()
			s.setStatus(state.StatusConnected, state.FailureNone)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind := state.ClassifyFailure(err)
		info := state.GetFailureInfo(kind)
		s.logger.Errorw("Backend startup failed", "kind", kind, "error", err)
		s.setStatus(state.StatusDisconnected, kind)

		failure := StartupFailure{Info: info, Err: err}
		if info.ShowLogs {
			failure.LogPath = s.cfg.LogPath
		}
		choice := s.deps.Dialog.ShowStartupFailure(ctx, failure)
		s.record(EventDialog, fmt.Sprintf("startup %s: %s", kind, choice), 0)

		if choice == ChoiceRetry && info.CanRetry && ctx.Err() == nil {
			s.logger.Info("Retrying backend startup")
			continue
		}
		return fmt.Errorf("%w: %w", ErrStartupFailed, err)
	}
}

// launchAndWait replaces any current backend with a new one and waits for
// readiness. A backend that launched but never became ready stays current
// so the next attempt or shutdown stops it.
func (s *Supervisor) launchAndWait(ctx context.Context) error {
	if err := s.stopCurrent(ctx); err != nil {
		return err
	}
	proc, err := s.launch(ctx)
	if err != nil {
		return err
	}
	if !s.waitReady(ctx, proc.Port()) {
		return errNotReady
	}
	return nil
}

func (s *Supervisor) healthTick(ctx context.Context) {
	s.mu.RLock()
	port := s.port
	status := s.status
	s.mu.RUnlock()

	start := time.Now()
	err := errNoBackend
	if port > 0 {
		err = s.deps.Prober.Check(ctx, port, s.cfg.HealthTimeout)
	}
	if ctx.Err() != nil {
		return
	}
	s.deps.Metrics.RecordHealthCheck(err == nil, time.Since(start))

	if err == nil {
		s.mu.Lock()
		s.counter = 0
		s.mu.Unlock()
		if status != state.StatusConnected {
			s.setPhase(state.PhaseIdle)
			s.setStatus(state.StatusConnected, state.FailureNone)
		}
		return
	}

	if status != state.StatusConnected {
		s.logger.Debugw("Health check failed while not connected", "status", status, "error", err)
		return
	}

	s.logger.Warnw("Backend health check failed", "port", port, "error", err)
	s.setStatus(state.StatusReconnecting, state.ClassifyFailure(ErrHealthCheckFailed))
	s.recoverBackend(ctx)
}

func (s *Supervisor) manualRetry(ctx context.Context) {
	s.mu.Lock()
	status := s.status
	if status == state.StatusConnected {
		s.mu.Unlock()
		s.logger.Debug("Ignoring retry request, backend is connected")
		return
	}
	s.counter = 0
	s.mu.Unlock()

	s.logger.Info("Manual backend retry requested")
	s.recoverBackend(ctx)
}

// recoverBackend runs restart attempts until one succeeds or the limit is
// reached, then asks the user
func (s *Supervisor) recoverBackend(ctx context.Context) bool {
	s.mu.Lock()
	s.recoveries++
	s.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return false
		}

		s.mu.RLock()
		attempts := s.counter
		s.mu.RUnlock()

		if attempts >= s.cfg.MaxRestartAttempts {
			if s.exhausted(ctx, attempts) {
				continue
			}
			return false
		}

		s.mu.Lock()
		s.counter++
		attempt := s.counter
		s.mu.Unlock()
		s.setPhase(state.PhaseAttempting)
		s.setStatus(state.StatusReconnecting, state.FailureHealthCheckFailed)

		s.logger.Infow("Restarting backend", "attempt", attempt, "max_attempts", s.cfg.MaxRestartAttempts)
		if s.restart(ctx, attempt) {
			s.mu.Lock()
			s.counter = 0
			s.mu.Unlock()
			s.setPhase(state.PhaseIdle)
			s.setStatus(state.StatusConnected, state.FailureNone)
			return true
		}
	}
}

// exhausted shows the terminal dialog and reports whether to try again
func (s *Supervisor) exhausted(ctx context.Context, attempts int) bool {
	s.logger.Errorw("Backend restart attempts exhausted", "attempts", attempts)
	s.setPhase(state.PhaseExhaustedDialog)
	s.setStatus(state.StatusDisconnected, state.ClassifyFailure(ErrRestartExhausted))

	choice := s.deps.Dialog.ShowRestartExhausted(ctx, RestartExhausted{
		Info:     state.GetFailureInfo(state.FailureRestartExhausted),
		Attempts: attempts,
		LogPath:  s.cfg.LogPath,
	})
	s.record(EventDialog, "restart exhausted: "+choice.String(), 0)

	if choice == ChoiceRetry && ctx.Err() == nil {
		s.mu.Lock()
		s.counter = 0
		s.mu.Unlock()
		return true
	}

	s.logger.Info("User chose to exit after restart failure")
	s.deps.OnExit()
	return false
}

// restart replaces the backend. Every failure, including a panic in a
// collaborator, is reported as false.
func (s *Supervisor) restart(ctx context.Context, attempt int) (ok bool) {
	ctx, span := s.deps.Tracing.TraceRestart(ctx, attempt)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Backend restart panicked", "panic", r)
			ok = false
		}
		s.deps.Metrics.RecordRestart(ok)
		if ok {
			s.record(EventRestart, fmt.Sprintf("attempt %d", attempt), s.Snapshot().Port)
		} else {
			s.record(EventRestartFailed, fmt.Sprintf("attempt %d", attempt), 0)
		}
	}()

	if err := s.launchAndWait(ctx); err != nil {
		s.deps.Tracing.SetSpanError(ctx, err)
		return false
	}
	return true
}

// stopCurrent terminates the current backend, if any. When it cannot be
// stopped the handle stays current and no new backend may be launched.
func (s *Supervisor) stopCurrent(ctx context.Context) error {
	s.mu.Lock()
	old := s.proc
	s.proc = nil
	s.port = 0
	s.url = ""
	s.mu.Unlock()

	if old == nil {
		return nil
	}
	if err := old.Stop(ctx, s.cfg.StopGracePeriod); err != nil {
		s.logger.Errorw("Could not stop previous backend", "pid", old.PID(), "error", err)
		s.mu.Lock()
		s.proc = old
		s.port = old.Port()
		s.url = s.deps.Prober.BaseURL(old.Port())
		s.mu.Unlock()
		return fmt.Errorf("stop backend pid %d: %w", old.PID(), err)
	}
	return nil
}

func (s *Supervisor) launch(ctx context.Context) (Backend, error) {
	ctx, span := s.deps.Tracing.TraceLaunch(ctx, s.cfg.RequestedPort)
	defer span.End()

	start := time.Now()
	proc, err := s.deps.Launcher.Launch(ctx, s.cfg.RequestedPort)
	if err != nil {
		kind := state.ClassifyFailure(err)
		s.logger.Warnw("Backend launch failed", "kind", kind, "error", err)
		s.deps.Metrics.RecordLaunch(string(kind), 0)
		s.deps.Tracing.SetSpanError(ctx, err)
		s.record(EventLaunchFailed, err.Error(), 0)
		return nil, err
	}
	s.deps.Metrics.RecordLaunch(observability.ResultSuccess, time.Since(start))

	url := s.deps.Prober.BaseURL(proc.Port())
	s.mu.Lock()
	s.proc = proc
	s.port = proc.Port()
	s.url = url
	s.mu.Unlock()

	s.logger.Infow("Backend launched", "pid", proc.PID(), "port", proc.Port(), "url", url)
	s.record(EventLaunch, fmt.Sprintf("pid %d", proc.PID()), proc.Port())
	go s.watchExit(proc)
	return proc, nil
}

// watchExit requests a health check as soon as the current backend dies on its own
func (s *Supervisor) watchExit(proc Backend) {
	select {
	case <-proc.Done():
	case <-s.loopCtx.Done():
		return
	}

	s.mu.RLock()
	current := s.proc == proc && !s.stopping
	s.mu.RUnlock()
	if !current {
		return
	}
	s.logger.Warnw("Backend exited unexpectedly", "pid", proc.PID())
	s.requestTick()
}

func (s *Supervisor) waitReady(ctx context.Context, port int) bool {
	ctx, span := s.deps.Tracing.TraceReadiness(ctx, port, s.cfg.ReadinessMaxAttempts)
	defer span.End()

	ready := s.deps.Prober.WaitUntilReady(ctx, port, s.cfg.ReadinessMaxAttempts)
	if !ready {
		s.logger.Warnw("Backend not ready", "port", port, "max_attempts", s.cfg.ReadinessMaxAttempts)
		s.deps.Tracing.SetSpanError(ctx, errNotReady)
	}
	return ready
}

func (s *Supervisor) setPhase(phase state.RestartPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == phase {
		return
	}
	if !state.CanTransition(s.phase, phase) {
		s.logger.Warnw("Unexpected restart phase transition", "from", s.phase, "to", phase)
	}
	s.phase = phase
}

func (s *Supervisor) setStatus(status state.ConnectionStatus, failure state.FailureKind) {
	s.mu.Lock()
	from := s.status
	changed := from != status || s.failure != failure
	s.status = status
	s.failure = failure
	if from != status {
		s.since = time.Now()
	}
	ev := state.StatusEvent{
		Status:          status,
		Port:            s.port,
		Phase:           s.phase,
		RestartAttempts: s.counter,
		Failure:         failure,
		Timestamp:       time.Now(),
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	if from != status {
		s.logger.Infow("Backend connection status changed", "from", from, "to", status, "failure", failure)
		s.deps.Metrics.RecordStatusTransition(string(from), string(status))
		s.record(EventStatus, fmt.Sprintf("%s -> %s", from, status), ev.Port)
	}
	s.deps.Metrics.SetBackendStatus(string(status), statusNames())
	s.deps.Broadcaster.Publish(ev)
}

func (s *Supervisor) record(kind, detail string, port int) {
	if s.deps.History == nil {
		return
	}
	s.mu.RLock()
	status := string(s.status)
	s.mu.RUnlock()

	entry := storage.HistoryEntry{
		ID:     ulid.Make().String(),
		Time:   time.Now().UTC(),
		Kind:   kind,
		Status: status,
		Port:   port,
		Detail: detail,
	}
	if err := s.deps.History.AppendHistory(entry); err != nil {
		s.logger.Warnw("Failed to record history", "kind", kind, "error", err)
	}
}

func statusNames() []string {
	names := make([]string, 0, len(state.AllStatuses))
	for _, st := range state.AllStatuses {
		names = append(names, string(st))
	}
	return names
}
