package logs

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ninebox-hr/ninebox-shell/internal/config"
)

// BackendLogFilename is the file that collects backend stdout and stderr
const BackendLogFilename = "backend.log"

// BackendSink is the append-only log of everything the backend process prints.
// It is safe for concurrent use by the stdout and stderr readers.
type BackendSink struct {
	mu     sync.Mutex
	out    *lumberjack.Logger
	path   string
	masker *SecretSanitizer
	now    func() time.Time
}

// OpenBackendSink opens backend.log next to the shell log, rotated with the same limits
func OpenBackendSink(cfg *config.LogConfig, masker *SecretSanitizer) (*BackendSink, error) {
	if cfg == nil {
		cfg = config.DefaultLogConfig()
	}

	path, err := GetLogFilePathWithDir(cfg.LogDir, BackendLogFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to get backend log path: %w", err)
	}

	return &BackendSink{
		out:    rotator(cfg, path),
		path:   path,
		masker: masker,
		now:    time.Now,
	}, nil
}

// Path returns the backend log location offered by the "view logs" affordance
func (s *BackendSink) Path() string {
	return s.path
}

// WriteLine appends one line of backend output tagged with its stream
func (s *BackendSink) WriteLine(stream, line string) {
	if s.masker != nil {
		line = s.masker.Sanitize(line)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Write errors are dropped: output capture must never affect the backend
	_, _ = fmt.Fprintf(s.out, "%s [%s] %s\n", s.now().Format("2006-01-02T15:04:05.000Z07:00"), stream, line)
}

// Tail returns the last n lines of the backend log
func (s *BackendSink) Tail(n int) ([]string, error) {
	if n <= 0 {
		n = 50
	}
	if n > 500 {
		n = 500
	}

	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open backend log: %w", err)
	}
	defer file.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read backend log: %w", err)
	}
	return ring, nil
}

// Close flushes and closes the underlying file
func (s *BackendSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}
