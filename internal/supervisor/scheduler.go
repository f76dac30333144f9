package supervisor

import (
	"sync"
	"time"
)

// Scheduler fires a callback on a fixed interval until stopped
type Scheduler interface {
	Start(interval time.Duration, fn func())
	Stop()
}

// TickerScheduler is a Scheduler backed by time.Ticker
type TickerScheduler struct {
	mu   sync.Mutex
	stop chan struct{}
}

// NewTickerScheduler creates a wall-clock scheduler
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

// Start begins firing fn every interval. Calling Start twice is a no-op.
func (t *TickerScheduler) Start(interval time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		return
	}
	stop := make(chan struct{})
	t.stop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Stop halts the ticker. Safe to call more than once.
func (t *TickerScheduler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		select {
		case <-t.stop:
		default:
			close(t.stop)
		}
	}
}

// ManualScheduler fires only when told to
type ManualScheduler struct {
	mu       sync.Mutex
	fn       func()
	interval time.Duration
	stopped  bool
}

// NewManualScheduler creates a scheduler driven by Fire
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (m *ManualScheduler) Start(interval time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fn == nil {
		m.fn = fn
		m.interval = interval
	}
}

func (m *ManualScheduler) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

// Fire runs the callback once, as if the interval had elapsed
func (m *ManualScheduler) Fire() {
	m.mu.Lock()
	fn := m.fn
	stopped := m.stopped
	m.mu.Unlock()

	if fn != nil && !stopped {
		fn()
	}
}

// Started reports whether Start has been called
func (m *ManualScheduler) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fn != nil
}

// Interval returns the interval passed to Start
func (m *ManualScheduler) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}
