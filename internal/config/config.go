package config

import (
	"fmt"
	"time"

	"github.com/ninebox-hr/ninebox-shell/internal/observability"
)

const (
	DefaultBackendName   = "ninebox-backend"
	DefaultRequestedPort = 38001
	DefaultIPCListen     = "127.0.0.1:0"
	DefaultReleaseFeed   = "https://api.github.com/repos/ninebox-hr/ninebox/releases/latest"
)

// Config represents the shell configuration
type Config struct {
	DataDir           string `json:"data_dir" mapstructure:"data-dir"`
	BackendPath       string `json:"backend_path,omitempty" mapstructure:"backend-path"`
	BackendName       string `json:"backend_name" mapstructure:"backend-name"`
	RequestedPort     int    `json:"requested_port" mapstructure:"requested-port"`
	RuntimeConfigPath string `json:"runtime_config_path,omitempty" mapstructure:"runtime-config-path"`
	DevConfigPath     string `json:"dev_config_path,omitempty" mapstructure:"dev-config-path"`

	Health      HealthConfig      `json:"health" mapstructure:"health"`
	Readiness   ReadinessConfig   `json:"readiness" mapstructure:"readiness"`
	Launch      LaunchConfig      `json:"launch" mapstructure:"launch"`
	Restart     RestartConfig     `json:"restart" mapstructure:"restart"`
	IPC         IPCConfig         `json:"ipc" mapstructure:"ipc"`
	UpdateCheck UpdateCheckConfig `json:"update_check" mapstructure:"update-check"`

	Tracing observability.TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Logging configuration
	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`
}

// HealthConfig controls the recurring health monitor
type HealthConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// ReadinessConfig controls the post-launch readiness check
type ReadinessConfig struct {
	Interval       time.Duration `json:"interval" mapstructure:"interval"`
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request-timeout"`
	MaxAttempts    int           `json:"max_attempts" mapstructure:"max-attempts"`
}

// LaunchConfig controls backend spawning
type LaunchConfig struct {
	PortDiscoveryTimeout time.Duration `json:"port_discovery_timeout" mapstructure:"port-discovery-timeout"`
}

// RestartConfig controls the restart coordinator.
// MaxAttempts defaults to 1: a single automatic restart before asking the user.
type RestartConfig struct {
	MaxAttempts     int           `json:"max_attempts" mapstructure:"max-attempts"`
	StopGracePeriod time.Duration `json:"stop_grace_period" mapstructure:"stop-grace-period"`
}

// IPCConfig controls the loopback API exposed to the UI layer
type IPCConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// UpdateCheckConfig controls background release checks
type UpdateCheckConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	FeedURL  string        `json:"feed_url" mapstructure:"feed-url"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log-dir"` // Custom log directory
	MaxSize       int    `json:"max_size" mapstructure:"max-size"`         // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"`   // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max-age"`           // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json-format"`
}

// DefaultConfig returns a configuration with the supervisor's stock timings
func DefaultConfig() *Config {
	return &Config{
		BackendName:   DefaultBackendName,
		RequestedPort: DefaultRequestedPort,
		Health: HealthConfig{
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
		Readiness: ReadinessConfig{
			Interval:       1 * time.Second,
			RequestTimeout: 1 * time.Second,
			MaxAttempts:    60,
		},
		Launch: LaunchConfig{
			PortDiscoveryTimeout: 15 * time.Second,
		},
		Restart: RestartConfig{
			MaxAttempts:     1,
			StopGracePeriod: 5 * time.Second,
		},
		IPC: IPCConfig{
			Enabled: true,
			Listen:  DefaultIPCListen,
		},
		UpdateCheck: UpdateCheckConfig{
			Enabled:  true,
			FeedURL:  DefaultReleaseFeed,
			Interval: 4 * time.Hour,
		},
		Tracing: observability.TracingConfig{
			ServiceName: "ninebox-shell",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration for values the supervisor cannot run with
func (c *Config) Validate() error {
	if c.RequestedPort < 0 || c.RequestedPort > 65535 {
		return fmt.Errorf("requested port %d is out of range", c.RequestedPort)
	}
	if c.BackendName == "" && c.BackendPath == "" {
		return fmt.Errorf("either backend name or backend path must be set")
	}

	durations := map[string]time.Duration{
		"health.interval":               c.Health.Interval,
		"health.timeout":                c.Health.Timeout,
		"readiness.interval":            c.Readiness.Interval,
		"readiness.request-timeout":     c.Readiness.RequestTimeout,
		"launch.port-discovery-timeout": c.Launch.PortDiscoveryTimeout,
		"restart.stop-grace-period":     c.Restart.StopGracePeriod,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.Readiness.MaxAttempts < 1 {
		return fmt.Errorf("readiness.max-attempts must be at least 1, got %d", c.Readiness.MaxAttempts)
	}
	if c.Restart.MaxAttempts < 1 {
		return fmt.Errorf("restart.max-attempts must be at least 1, got %d", c.Restart.MaxAttempts)
	}
	if c.UpdateCheck.Enabled && c.UpdateCheck.Interval <= 0 {
		return fmt.Errorf("update-check.interval must be positive when update checks are enabled")
	}
	if c.Tracing.Enabled && c.Tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp-endpoint is required when tracing is enabled")
	}

	return nil
}
