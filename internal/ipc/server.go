// Package ipc serves the loopback HTTP API the UI layer uses to find the
// backend and follow its connection status.
package ipc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ninebox-hr/ninebox-shell/internal/observability"
	"github.com/ninebox-hr/ninebox-shell/internal/state"
	"github.com/ninebox-hr/ninebox-shell/internal/storage"
	"github.com/ninebox-hr/ninebox-shell/internal/supervisor"
	"github.com/ninebox-hr/ninebox-shell/internal/updatecheck"
)

const (
	// TokenHeader carries the per-instance token on every API request
	TokenHeader = "X-Ninebox-Token"

	// tokenQueryParam is accepted for EventSource clients that cannot set headers
	tokenQueryParam = "token"

	defaultHeartbeat = 30 * time.Second
	maxHistoryLimit  = 1000
	maxLogLines      = 500
)

// Controller is the supervisor surface the API exposes
type Controller interface {
	Snapshot() supervisor.Snapshot
	Subscribe() (<-chan state.StatusEvent, func())
	RequestRetry()
}

// Store persists window state and history
type Store interface {
	LoadWindowState() (storage.WindowState, bool, error)
	SaveWindowState(ws storage.WindowState) error
	ListHistory(limit int) ([]storage.HistoryEntry, error)
}

// VersionSource reports update check results
type VersionSource interface {
	GetVersionInfo() *updatecheck.VersionInfo
}

// LogSource exposes the backend output log
type LogSource interface {
	Path() string
	Tail(n int) ([]string, error)
}

// Options configures a Server. Token and Controller are required.
type Options struct {
	Token      string
	Controller Controller
	Store      Store
	Version    VersionSource
	Logs       LogSource
	Metrics    *observability.MetricsManager

	// HeartbeatInterval is the SSE keep-alive period
	HeartbeatInterval time.Duration
}

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Server provides the IPC endpoints with a chi router
type Server struct {
	opts   Options
	logger *zap.SugaredLogger
	router *chi.Mux

	httpServer *http.Server
	addr       string
}

// NewToken returns a fresh instance token
func NewToken() string {
	return uuid.NewString()
}

// NewServer creates the API server
func NewServer(opts Options, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeat
	}

	s := &Server{
		opts:   opts,
		logger: logger,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when the port is 0.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("IPC server stopped", "error", err)
		}
	}()

	s.logger.Infow("IPC server listening", "addr", s.addr)
	return s.addr, nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown stops the listener and waits for handlers to return
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(s.opts.Metrics.HTTPMiddleware())
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware())

	if s.opts.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.tokenAuthMiddleware())

		r.Get("/backend", s.handleGetBackend)
		r.Get("/status", s.handleGetStatus)
		r.Get("/events", s.handleEvents)
		r.Post("/retry", s.handleRetry)
		r.Get("/window-state", s.handleGetWindowState)
		r.Put("/window-state", s.handlePutWindowState)
		r.Get("/history", s.handleGetHistory)
		r.Get("/version", s.handleGetVersion)
		r.Get("/logs", s.handleGetLogs)
	})
}

// tokenAuthMiddleware rejects requests without the instance token
func (s *Server) tokenAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.opts.Token == "" {
				s.writeError(w, http.StatusUnauthorized, "IPC token not configured")
				return
			}

			token := r.Header.Get(TokenHeader)
			if token == "" {
				token = r.URL.Query().Get(tokenQueryParam)
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) != 1 {
				s.logger.Warnw("IPC request with invalid token",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr)
				s.writeError(w, http.StatusUnauthorized, "Invalid or missing token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) loggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			s.logger.Debugw("IPC request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, APIResponse{Error: message})
}

func (s *Server) writeSuccess(w http.ResponseWriter, data interface{}) {
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func queryInt(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
