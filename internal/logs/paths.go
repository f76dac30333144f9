package logs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDirName = "ninebox"

// GetLogDir returns the per-user log directory for the current OS:
//
//	windows  %LOCALAPPDATA%\ninebox\logs
//	darwin   ~/Library/Logs/ninebox
//	linux    $XDG_STATE_HOME/ninebox/logs (~/.local/state when unset)
func GetLogDir() (string, error) {
	homeDir, homeErr := os.UserHomeDir()

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" && homeErr == nil {
			base = filepath.Join(homeDir, "AppData", "Local")
		}
		if base != "" {
			return filepath.Join(base, appDirName, "logs"), nil
		}
	case "darwin":
		if homeErr == nil {
			return filepath.Join(homeDir, "Library", "Logs", appDirName), nil
		}
	case "linux":
		state := os.Getenv("XDG_STATE_HOME")
		if state == "" && homeErr == nil {
			state = filepath.Join(homeDir, ".local", "state")
		}
		if state != "" {
			return filepath.Join(state, appDirName, "logs"), nil
		}
	}

	if homeErr != nil {
		return filepath.Join(os.TempDir(), appDirName, "logs"), nil
	}
	return filepath.Join(homeDir, "."+appDirName, "logs"), nil
}

// GetLogFilePathWithDir returns the path of filename inside logDir, creating the
// directory. An empty logDir selects the OS default.
func GetLogFilePathWithDir(logDir, filename string) (string, error) {
	if logDir == "" {
		var err error
		if logDir, err = GetLogDir(); err != nil {
			return "", err
		}
	}

	if strings.HasPrefix(logDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		logDir = filepath.Join(homeDir, logDir[2:])
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(logDir, filename), nil
}
