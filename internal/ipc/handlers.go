package ipc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ninebox-hr/ninebox-shell/internal/state"
	"github.com/ninebox-hr/ninebox-shell/internal/storage"
)

// BackendResponse locates the running backend
type BackendResponse struct {
	URL  string `json:"url"`
	Port int    `json:"port"`
}

// StatusResponse is the supervisor state as seen by the UI
type StatusResponse struct {
	Status          state.ConnectionStatus `json:"status"`
	Port            int                    `json:"port,omitempty"`
	PID             int                    `json:"pid,omitempty"`
	RestartAttempts int                    `json:"restart_attempts"`
	Phase           state.RestartPhase     `json:"phase"`
	Failure         state.FailureKind      `json:"failure,omitempty"`
	Message         string                 `json:"message,omitempty"`
	Since           time.Time              `json:"since"`
}

// LogsResponse is the tail of the backend log
type LogsResponse struct {
	Path  string   `json:"path"`
	Lines []string `json:"lines"`
}

func (s *Server) handleGetBackend(w http.ResponseWriter, _ *http.Request) {
	snap := s.opts.Controller.Snapshot()
	if snap.URL == "" {
		s.writeError(w, http.StatusServiceUnavailable, "Backend is not running")
		return
	}
	s.writeSuccess(w, BackendResponse{URL: snap.URL, Port: snap.Port})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.opts.Controller.Snapshot()
	resp := StatusResponse{
		Status:          snap.Status,
		Port:            snap.Port,
		PID:             snap.PID,
		RestartAttempts: snap.RestartAttempts,
		Phase:           snap.Phase,
		Failure:         snap.Failure,
		Since:           snap.Since,
	}
	if snap.Failure != state.FailureNone {
		resp.Message = state.GetFailureInfo(snap.Failure).UserMessage
	}
	s.writeSuccess(w, resp)
}

func (s *Server) handleRetry(w http.ResponseWriter, _ *http.Request) {
	s.opts.Controller.RequestRetry()
	s.writeJSON(w, http.StatusAccepted, APIResponse{Success: true, Data: map[string]string{"action": "retry"}})
}

func (s *Server) handleGetWindowState(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Storage not available")
		return
	}
	ws, ok, err := s.opts.Store.LoadWindowState()
	if err != nil {
		s.logger.Errorw("Failed to load window state", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load window state")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "No window state saved")
		return
	}
	s.writeSuccess(w, ws)
}

func (s *Server) handlePutWindowState(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Storage not available")
		return
	}

	var ws storage.WindowState
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&ws); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := s.opts.Store.SaveWindowState(ws); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeSuccess(w, ws)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Storage not available")
		return
	}

	entries, err := s.opts.Store.ListHistory(queryInt(r, "limit", 100, maxHistoryLimit))
	if err != nil {
		s.logger.Errorw("Failed to list history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}
	if entries == nil {
		entries = []storage.HistoryEntry{}
	}
	s.writeSuccess(w, entries)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Version == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Update checker not available")
		return
	}
	s.writeSuccess(w, s.opts.Version.GetVersionInfo())
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.opts.Logs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Backend log not available")
		return
	}

	lines, err := s.opts.Logs.Tail(queryInt(r, "lines", 50, maxLogLines))
	if err != nil {
		s.logger.Errorw("Failed to read backend log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read backend log")
		return
	}
	if lines == nil {
		lines = []string{}
	}
	s.writeSuccess(w, LogsResponse{Path: s.opts.Logs.Path(), Lines: lines})
}

// handleEvents streams status changes as server-sent events. Delivery is
// best effort; a slow client misses events rather than stalling the
// supervisor.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.logger.Warn("ResponseWriter does not support flushing, SSE may not work properly")
	}

	events, cancel := s.opts.Controller.Subscribe()
	defer cancel()

	fmt.Fprintf(w, ": connected\nretry: 5000\n\n")

	snap := s.opts.Controller.Snapshot()
	initial := state.StatusEvent{
		Status:          snap.Status,
		Port:            snap.Port,
		Phase:           snap.Phase,
		RestartAttempts: snap.RestartAttempts,
		Failure:         snap.Failure,
		Timestamp:       time.Now(),
	}
	if err := s.writeSSEEvent(w, flusher, canFlush, "status", initial); err != nil {
		s.logger.Debugw("Failed to write initial SSE event", "error", err)
		return
	}

	heartbeat := time.NewTicker(s.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping %d\n\n", time.Now().Unix()); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeSSEEvent(w, flusher, canFlush, "status", ev); err != nil {
				s.logger.Debugw("SSE client went away", "error", err)
				return
			}
		}
	}
}

func (s *Server) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, canFlush bool, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	if canFlush {
		flusher.Flush()
	}
	return nil
}
