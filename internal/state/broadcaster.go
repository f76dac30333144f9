package state

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatusEvent is broadcast to the UI whenever the connection status changes
type StatusEvent struct {
	Status          ConnectionStatus `json:"status"`
	Port            int              `json:"port,omitempty"`
	Phase           RestartPhase     `json:"phase"`
	RestartAttempts int              `json:"restart_attempts"`
	Failure         FailureKind      `json:"failure,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Broadcaster fans status events out to subscribers without ever blocking
// the publisher. Slow subscribers lose events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[int]chan StatusEvent
	nextID      int
	closed      bool
	logger      *zap.SugaredLogger
}

// NewBroadcaster creates a broadcaster
func NewBroadcaster(logger *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[int]chan StatusEvent),
		logger:      logger,
	}
}

// Subscribe returns a channel for receiving status events and a function
// that ends the subscription
func (b *Broadcaster) Subscribe() (<-chan StatusEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan StatusEvent, 16)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
		})
	}
}

// Publish delivers ev to every subscriber that has room for it
func (b *Broadcaster) Publish(ev StatusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Debugw("Status subscriber full, dropping event", "subscriber", id, "status", ev.Status)
		}
	}
}

// Close ends all subscriptions. Safe to call more than once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
