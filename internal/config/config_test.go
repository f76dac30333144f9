package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 38001, cfg.RequestedPort)
	assert.Equal(t, "ninebox-backend", cfg.BackendName)
	assert.Equal(t, 30*time.Second, cfg.Health.Interval)
	assert.Equal(t, 5*time.Second, cfg.Health.Timeout)
	assert.Equal(t, time.Second, cfg.Readiness.Interval)
	assert.Equal(t, 60, cfg.Readiness.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Launch.PortDiscoveryTimeout)
	assert.Equal(t, 1, cfg.Restart.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Restart.StopGracePeriod)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"port too high", func(c *Config) { c.RequestedPort = 70000 }, "out of range"},
		{"no backend", func(c *Config) { c.BackendName = "" }, "backend name"},
		{"zero health interval", func(c *Config) { c.Health.Interval = 0 }, "health.interval"},
		{"zero readiness attempts", func(c *Config) { c.Readiness.MaxAttempts = 0 }, "readiness.max-attempts"},
		{"zero restart attempts", func(c *Config) { c.Restart.MaxAttempts = 0 }, "restart.max-attempts"},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }, "otlp-endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shell.yaml")
	content := `
data-dir: ` + filepath.Join(dir, "data") + `
requested-port: 40000
health:
  interval: 10s
restart:
  max-attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("NINEBOX_READINESS_MAX_ATTEMPTS", "12")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("backend-name", "", "")
	require.NoError(t, flags.Parse([]string{"--backend-name=custom-backend"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 40000, cfg.RequestedPort)
	assert.Equal(t, 10*time.Second, cfg.Health.Interval)
	assert.Equal(t, 5*time.Second, cfg.Health.Timeout)
	assert.Equal(t, 3, cfg.Restart.MaxAttempts)
	assert.Equal(t, 12, cfg.Readiness.MaxAttempts)
	assert.Equal(t, "custom-backend", cfg.BackendName)
	assert.DirExists(t, cfg.DataDir)
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "shell.log", cfg.Logging.Filename)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shell.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data-dir: "+dir+"\nrequested-port: 99999\n"), 0600))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
