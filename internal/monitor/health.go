package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthPath is the backend endpoint used for readiness and liveness
const HealthPath = "/health"

// ProberConfig contains configuration for health probing
type ProberConfig struct {
	Host           string        // defaults to localhost
	Interval       time.Duration // between readiness attempts
	RequestTimeout time.Duration // per readiness attempt
}

// Prober checks the backend's health endpoint
type Prober struct {
	config     ProberConfig
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewProber creates a prober. Timeouts are applied per request through the
// context so one client serves both readiness and monitor checks.
func NewProber(cfg ProberConfig, logger *zap.SugaredLogger) *Prober {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// A restarted backend reuses the port; never hand it a stale connection
	transport.DisableKeepAlives = true

	return &Prober{
		config:     cfg,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

// BaseURL returns the backend URL for port
func (p *Prober) BaseURL(port int) string {
	return fmt.Sprintf("http://%s:%d", p.config.Host, port)
}

// Check performs one health request bounded by timeout. It returns nil only
// for HTTP 200.
func (p *Prober) Check(ctx context.Context, port int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL(port)+HealthPath, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// WaitUntilReady polls the health endpoint once per interval, at most
// maxAttempts times. It returns true on the first 200 and false when attempts
// run out or ctx ends. Errors are logged, never returned.
func (p *Prober) WaitUntilReady(ctx context.Context, port, maxAttempts int) bool {
	p.logger.Infow("Waiting for backend to become ready",
		"port", port,
		"max_attempts", maxAttempts,
		"interval", p.config.Interval)

	start := time.Now()
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				p.logger.Warnw("Readiness wait cancelled", "port", port, "attempts", attempt-1)
				return false
			case <-ticker.C:
			}
		}

		if lastErr = p.Check(ctx, port, p.config.RequestTimeout); lastErr == nil {
			p.logger.Infow("Backend is ready",
				"port", port,
				"attempts", attempt,
				"elapsed", time.Since(start))
			return true
		}
		p.logger.Debugw("Readiness attempt failed", "port", port, "attempt", attempt, "error", lastErr)
	}

	p.logger.Warnw("Backend did not become ready",
		"port", port,
		"attempts", maxAttempts,
		"elapsed", time.Since(start),
		"last_error", lastErr)
	return false
}
