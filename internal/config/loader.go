package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultDataDir = ".ninebox"
	ConfigFileName = "shell.yaml"
	EnvPrefix      = "NINEBOX"
)

// Load loads configuration from file, environment, flags and defaults.
// An empty path falls back to <data dir>/shell.yaml when that file exists.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := newViper()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if configPath == "" {
		configPath = findConfigFile(v.GetString("data-dir"))
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDataDir(cfg); err != nil {
		return nil, err
	}

	if cfg.Logging == nil {
		cfg.Logging = DefaultLogConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// newViper configures a viper instance with environment variable handling and defaults
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	// Replace - and . with _ for environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	defaults := DefaultConfig()
	v.SetDefault("data-dir", "")
	v.SetDefault("backend-path", "")
	v.SetDefault("backend-name", defaults.BackendName)
	v.SetDefault("requested-port", defaults.RequestedPort)
	v.SetDefault("runtime-config-path", "")
	v.SetDefault("dev-config-path", "")

	v.SetDefault("health.interval", defaults.Health.Interval)
	v.SetDefault("health.timeout", defaults.Health.Timeout)
	v.SetDefault("readiness.interval", defaults.Readiness.Interval)
	v.SetDefault("readiness.request-timeout", defaults.Readiness.RequestTimeout)
	v.SetDefault("readiness.max-attempts", defaults.Readiness.MaxAttempts)
	v.SetDefault("launch.port-discovery-timeout", defaults.Launch.PortDiscoveryTimeout)
	v.SetDefault("restart.max-attempts", defaults.Restart.MaxAttempts)
	v.SetDefault("restart.stop-grace-period", defaults.Restart.StopGracePeriod)

	v.SetDefault("ipc.enabled", defaults.IPC.Enabled)
	v.SetDefault("ipc.listen", defaults.IPC.Listen)

	v.SetDefault("update-check.enabled", defaults.UpdateCheck.Enabled)
	v.SetDefault("update-check.feed-url", defaults.UpdateCheck.FeedURL)
	v.SetDefault("update-check.interval", defaults.UpdateCheck.Interval)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service-name", defaults.Tracing.ServiceName)
	v.SetDefault("tracing.sample-rate", defaults.Tracing.SampleRate)

	return v
}

// findConfigFile returns the first existing shell config in the usual locations
func findConfigFile(dataDir string) string {
	locations := []string{filepath.Join(".", ConfigFileName)}

	if dataDir != "" {
		locations = append(locations, filepath.Join(dataDir, ConfigFileName))
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(homeDir, DefaultDataDir, ConfigFileName))
	}

	for _, location := range locations {
		if info, err := os.Stat(location); err == nil && !info.IsDir() {
			return location
		}
	}
	return ""
}

// ensureDataDir fills in the default data directory and creates it
func ensureDataDir(cfg *Config) error {
	if cfg.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(homeDir, DefaultDataDir)
	}

	if strings.HasPrefix(cfg.DataDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to expand data directory: %w", err)
		}
		cfg.DataDir = filepath.Join(homeDir, cfg.DataDir[2:])
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}
	return nil
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:         "info",
		EnableFile:    true,
		EnableConsole: true,
		Filename:      "shell.log",
		MaxSize:       10, // 10MB
		MaxBackups:    5,
		MaxAge:        30, // days
		Compress:      true,
	}
}
