package logs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ninebox-hr/ninebox-shell/internal/config"
)

// SetupLogger builds the shell logger: colored console output on stderr and a
// rotated shell.log. When masker is not nil every entry passes through it
// before being encoded.
func SetupLogger(cfg *config.LogConfig, masker *SecretSanitizer) (*zap.Logger, error) {
	if cfg == nil {
		cfg = config.DefaultLogConfig()
	}
	level := parseLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stderr), level))
	}
	if cfg.EnableFile {
		path, err := GetLogFilePathWithDir(cfg.LogDir, cfg.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to get log file path: %w", err)
		}
		cores = append(cores, zapcore.NewCore(fileEncoder(cfg.JSONFormat), zapcore.AddSync(rotator(cfg, path)), level))
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("no log outputs configured")
	}

	core := zapcore.NewTee(cores...)
	if masker != nil {
		core = masker.Wrap(core)
	}
	return zap.New(core, zap.AddCaller()), nil
}

// parseLevel accepts zap level names plus "trace", which maps to debug.
// Unknown names log at info.
func parseLevel(name string) zapcore.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "trace" {
		return zapcore.DebugLevel
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil || name == "" {
		return zapcore.InfoLevel
	}
	return level
}

func rotator(cfg *config.LogConfig, path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	}
}

func consoleEncoder() zapcore.Encoder {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(ec)
}

// fileEncoder writes either JSON lines or pipe-separated text
func fileEncoder(jsonFormat bool) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	if jsonFormat {
		ec.EncodeTime = zapcore.RFC3339TimeEncoder
		ec.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(ec)
}
