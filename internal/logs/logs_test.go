package logs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ninebox-hr/ninebox-shell/internal/config"
)

func testLogConfig(t *testing.T) *config.LogConfig {
	cfg := config.DefaultLogConfig()
	cfg.LogDir = t.TempDir()
	cfg.EnableConsole = false
	cfg.Compress = false
	return cfg
}

func TestGetLogDir(t *testing.T) {
	logDir, err := GetLogDir()
	require.NoError(t, err)
	assert.Contains(t, logDir, "ninebox")
	assert.True(t, filepath.IsAbs(logDir))
}

func TestGetLogFilePathWithDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	path, err := GetLogFilePathWithDir(dir, "shell.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shell.log"), path)
	assert.DirExists(t, dir)
}

func TestSetupLogger_WritesFileAndMasksSecrets(t *testing.T) {
	cfg := testLogConfig(t)
	masker := NewSecretSanitizer()
	masker.RegisterResolvedSecret("super-secret-license")

	logger, err := SetupLogger(cfg, masker)
	require.NoError(t, err)

	logger.Info("loaded runtime config", zap.String("license", "super-secret-license"))
	logger.Debug("debug is filtered at info level")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, cfg.Filename))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "loaded runtime config")
	assert.NotContains(t, content, "super-secret-license")
	assert.Contains(t, content, "sup***se")
	assert.NotContains(t, content, "debug is filtered")
}

func TestSetupLogger_NoOutputs(t *testing.T) {
	cfg := testLogConfig(t)
	cfg.EnableFile = false

	_, err := SetupLogger(cfg, nil)
	assert.Error(t, err)
}

func TestSecretSanitizer(t *testing.T) {
	s := NewSecretSanitizer()
	s.RegisterResolvedSecret("short")
	s.RegisterResolvedSecret("0123456789abcdef")

	assert.Equal(t, "short value", s.Sanitize("short value"))
	assert.Equal(t, "key=012***ef", s.Sanitize("key=0123456789abcdef"))
	assert.Equal(t, "Authorization: Bearer abc***yz", s.Sanitize("Authorization: Bearer abcdefghijklmnopxyz"))
}

func TestBackendSink(t *testing.T) {
	cfg := testLogConfig(t)
	masker := NewSecretSanitizer()
	masker.RegisterResolvedSecret("db-password-123")

	sink, err := OpenBackendSink(cfg, masker)
	require.NoError(t, err)
	sink.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	assert.Equal(t, filepath.Join(cfg.LogDir, BackendLogFilename), sink.Path())

	sink.WriteLine("shell", "started ninebox-backend pid=4242 requested_port=38001")
	sink.WriteLine("stdout", `{"port":38001,"status":"ready"}`)
	sink.WriteLine("stderr", "connecting with db-password-123")

	lines, err := sink.Tail(3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "2026-01-02T03:04:05.000Z [shell] started ninebox-backend pid=4242 requested_port=38001", lines[0])
	assert.Equal(t, `2026-01-02T03:04:05.000Z [stdout] {"port":38001,"status":"ready"}`, lines[1])
	assert.True(t, strings.HasSuffix(lines[2], "[stderr] connecting with db-***23"))

	require.NoError(t, sink.Close())
}

func TestBackendSink_TailMissingFile(t *testing.T) {
	sink, err := OpenBackendSink(testLogConfig(t), nil)
	require.NoError(t, err)

	lines, err := sink.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"trace":   zapcore.DebugLevel,
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		" warn ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for name, want := range tests {
		assert.Equal(t, want, parseLevel(name), name)
	}
}
