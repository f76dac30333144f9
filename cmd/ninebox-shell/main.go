package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ninebox-hr/ninebox-shell/internal/config"
	"github.com/ninebox-hr/ninebox-shell/internal/instance"
	"github.com/ninebox-hr/ninebox-shell/internal/ipc"
	"github.com/ninebox-hr/ninebox-shell/internal/logs"
	"github.com/ninebox-hr/ninebox-shell/internal/monitor"
	"github.com/ninebox-hr/ninebox-shell/internal/notify"
	"github.com/ninebox-hr/ninebox-shell/internal/observability"
	"github.com/ninebox-hr/ninebox-shell/internal/prompt"
	"github.com/ninebox-hr/ninebox-shell/internal/secret"
	"github.com/ninebox-hr/ninebox-shell/internal/state"
	"github.com/ninebox-hr/ninebox-shell/internal/storage"
	"github.com/ninebox-hr/ninebox-shell/internal/supervisor"
	"github.com/ninebox-hr/ninebox-shell/internal/updatecheck"
)

var (
	configFile string
	logLevel   string
	logDir     string
	logToFile  bool
	noSweep    bool

	version = "v0.1.0" // injected by -ldflags during build
)

const (
	shutdownTimeout = 15 * time.Second
	uptimeInterval  = 15 * time.Second
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		code := exitCodeFor(err)
		fmt.Fprintf(os.Stderr, "Error: %v (%s)\n", err, exitCodeDescription(code))
		os.Exit(code)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ninebox-shell",
		Short:         "9-box desktop shell - launches and supervises the local 9-box backend",
		Version:       version,
		RunE:          runShell,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory path (default: ~/.ninebox)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", true, "Enable logging to file in standard OS location")

	rootCmd.Flags().String("backend-path", "", "Backend executable (skips discovery next to the shell and on PATH)")
	rootCmd.Flags().String("backend-name", config.DefaultBackendName, "Backend executable name used for discovery")
	rootCmd.Flags().Int("requested-port", config.DefaultRequestedPort, "Port the backend is asked to listen on")
	rootCmd.Flags().String("runtime-config-path", "", "Bundled runtime config artifact (default: next to the executable)")
	rootCmd.Flags().BoolVar(&noSweep, "no-sweep", false, "Do not kill leftover processes on the backend port at shutdown")

	rootCmd.AddCommand(getSecretCommand())
	rootCmd.AddCommand(getCheckUpdateCommand())
	rootCmd.AddCommand(getStatusCommand())

	return rootCmd
}

// loadShellConfig loads configuration and applies the logging flags
func loadShellConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, &configError{err: err}
	}

	if cmd.Flags().Changed("log-level") || cfg.Logging.Level == "" {
		cfg.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("log-to-file") {
		cfg.Logging.EnableFile = logToFile
	}
	if logDir != "" {
		cfg.Logging.LogDir = logDir
	}
	return cfg, nil
}

func runShell(cmd *cobra.Command, _ []string) error {
	startTime := time.Now()

	cfg, err := loadShellConfig(cmd)
	if err != nil {
		return err
	}

	masker := logs.NewSecretSanitizer()
	logger, err := logs.SetupLogger(cfg.Logging, masker)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	sugar := logger.Sugar()

	sugar.Infow("Starting 9-box shell",
		"version", version,
		"data_dir", cfg.DataDir,
		"requested_port", cfg.RequestedPort,
		"log_level", cfg.Logging.Level)

	lock, err := acquireInstance(cfg.DataDir, sugar)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			sugar.Warnw("Failed to release instance lock", "error", err)
		}
	}()

	store, err := storage.Open(cfg.DataDir, sugar.Named("storage"))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			sugar.Warnw("Failed to close storage", "error", err)
		}
	}()

	metrics := observability.NewMetricsManager(sugar.Named("metrics"))
	metrics.SetUptime(startTime)

	tracing, err := observability.NewTracingManager(sugar.Named("tracing"), cfg.Tracing)
	if err != nil {
		sugar.Warnw("Tracing disabled", "error", err)
		tracing = nil
	}

	resolver := secret.NewResolver(secret.OnResolve(masker.RegisterResolvedSecret))
	runtimeCfg, err := config.LoadRuntimeConfig(cmd.Context(), runtimeConfigPath(cfg), cfg.DevConfigPath, resolver)
	if err != nil {
		return &configError{err: err}
	}
	sugar.Infow("Runtime configuration loaded", "source", runtimeCfg.Source(), "keys", runtimeCfg.Len())

	sink, err := logs.OpenBackendSink(cfg.Logging, masker)
	if err != nil {
		return fmt.Errorf("failed to open backend log: %w", err)
	}
	defer sink.Close()

	launcher := monitor.NewLauncher(monitor.LauncherConfig{
		BackendPath:          cfg.BackendPath,
		BackendName:          cfg.BackendName,
		DataDir:              cfg.DataDir,
		WorkingDir:           cfg.DataDir,
		Runtime:              runtimeCfg,
		PortDiscoveryTimeout: cfg.Launch.PortDiscoveryTimeout,
	}, sink, sugar.Named("launcher"))

	prober := monitor.NewProber(monitor.ProberConfig{
		Interval:       cfg.Readiness.Interval,
		RequestTimeout: cfg.Readiness.RequestTimeout,
	}, sugar.Named("prober"))

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			sugar.Infow("Received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	desktop := notify.NewDesktop()
	console := prompt.NewConsolePrompter()
	dialog := &consoleDialog{
		chooser:     console,
		interactive: console.Interactive(),
		out:         os.Stderr,
		logs:        sink,
		notifier:    desktop,
		logger:      sugar.Named("dialog"),
	}

	sup := supervisor.New(supervisor.Config{
		RequestedPort:        cfg.RequestedPort,
		HealthInterval:       cfg.Health.Interval,
		HealthTimeout:        cfg.Health.Timeout,
		ReadinessMaxAttempts: cfg.Readiness.MaxAttempts,
		MaxRestartAttempts:   cfg.Restart.MaxAttempts,
		StopGracePeriod:      cfg.Restart.StopGracePeriod,
		LogPath:              sink.Path(),
		SweepOnShutdown:      !noSweep,
	}, supervisor.Dependencies{
		Launcher:    supervisor.WrapLauncher(launcher),
		Prober:      prober,
		Dialog:      dialog,
		Broadcaster: state.NewBroadcaster(sugar.Named("events")),
		Metrics:     metrics,
		Tracing:     tracing,
		History:     store,
		Sweep:       sweepFunc(sugar.Named("sweep")),
		OnExit:      cancel,
	}, sugar.Named("supervisor"))

	events, unsubscribe := sup.Subscribe()
	defer unsubscribe()
	go notify.NewStatusNotifier(desktop, sugar.Named("notify")).Run(ctx, events)

	checker := updatecheck.New(logger.Named("updatecheck"), version, cfg.UpdateCheck.FeedURL)
	if cfg.UpdateCheck.Enabled {
		checker.SetCheckInterval(cfg.UpdateCheck.Interval)
		checker.OnUpdateAvailable(func(info updatecheck.VersionInfo) {
			msg := fmt.Sprintf("Version %s is available (running %s)", info.LatestVersion, info.CurrentVersion)
			if err := desktop.Notify("9-box update available", msg); err != nil {
				sugar.Debugw("Desktop notification failed", "error", err)
			}
		})
		go checker.Start(ctx)
	}

	var ipcServer *ipc.Server
	if cfg.IPC.Enabled {
		token := ipc.NewToken()
		ipcServer = ipc.NewServer(ipc.Options{
			Token:      token,
			Controller: sup,
			Store:      store,
			Version:    checker,
			Logs:       sink,
			Metrics:    metrics,
		}, sugar.Named("ipc"))

		addr, err := ipcServer.Start(cfg.IPC.Listen)
		if err != nil {
			return fmt.Errorf("failed to start IPC server: %w", err)
		}
		if err := writeHandoff(cfg.DataDir, handoff{Addr: addr, Token: token, PID: os.Getpid()}); err != nil {
			sugar.Warnw("Failed to write IPC handoff file", "error", err)
		}
		defer removeHandoff(cfg.DataDir)
		sugar.Infow("IPC server listening", "addr", addr)
	}

	go reportUptime(ctx, metrics, startTime)

	startErr := sup.Start(ctx)
	if startErr == nil {
		sup.MarkWindowShown()
		if url, ok := sup.BackendURL(); ok {
			sugar.Infow("Backend ready", "url", url)
		}
		<-ctx.Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if ipcServer != nil {
		if err := ipcServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("ipc shutdown: %w", err))
		}
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("supervisor shutdown: %w", err))
	}
	if err := tracing.Close(shutdownCtx); err != nil {
		sugar.Warnw("Failed to flush traces", "error", err)
	}

	if startErr != nil {
		sugar.Errorw("Shell exiting after startup failure", "error", startErr)
		return startErr
	}
	if len(errs) > 0 {
		sugar.Warnw("Shutdown completed with errors", "error", errors.Join(errs...))
	}
	sugar.Info("9-box shell stopped")
	return nil
}

func runtimeConfigPath(cfg *config.Config) string {
	if cfg.RuntimeConfigPath != "" {
		return cfg.RuntimeConfigPath
	}
	return config.DefaultRuntimeConfigPath()
}

func sweepFunc(logger *zap.SugaredLogger) supervisor.SweepFunc {
	return func(ctx context.Context, port int, grace time.Duration) error {
		_, err := monitor.SweepPort(ctx, port, grace, logger)
		return err
	}
}

func reportUptime(ctx context.Context, metrics *observability.MetricsManager, startTime time.Time) {
	ticker := time.NewTicker(uptimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetUptime(startTime)
		}
	}
}

// acquireInstance takes the single-instance lock, naming the holder when
// another shell already has it
func acquireInstance(dataDir string, logger *zap.SugaredLogger) (*instance.Lock, error) {
	lock, err := instance.Acquire(dataDir)
	if err != nil {
		if errors.Is(err, instance.ErrAlreadyRunning) {
			if pid, ok := instance.HolderPID(dataDir); ok {
				logger.Warnw("Another shell instance is running", "pid", pid)
			}
		}
		return nil, err
	}
	return lock, nil
}
