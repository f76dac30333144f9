// Package instance keeps a second shell from running on the same data
// directory.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// LockFilename is created in the data directory
const LockFilename = "shell.lock"

// ErrAlreadyRunning is returned when another shell holds the lock
var ErrAlreadyRunning = errors.New("another ninebox shell is already running")

// Lock is a held single-instance lock
type Lock struct {
	fl   *flock.Flock
	path string
}

// Acquire takes the lock in dataDir without blocking. The holder's PID is
// written to the lock file.
func Acquire(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	path := filepath.Join(dataDir, LockFilename)
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		if pid, ok := HolderPID(dataDir); ok {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		return nil, ErrAlreadyRunning
	}

	if err := os.WriteFile(path+".pid", []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("writing pid file: %w", err)
	}

	return &Lock{fl: fl, path: path}, nil
}

// HolderPID reads the PID recorded by the current lock holder
func HolderPID(dataDir string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(dataDir, LockFilename) + ".pid")
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Path returns the lock file path
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. Safe to call on nil.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	_ = os.Remove(l.path + ".pid")
	return l.fl.Unlock()
}
