package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gogins/csound-ac/internal/dispatch"
	"github.com/gogins/csound-ac/internal/journal"
	"github.com/gogins/csound-ac/internal/launch"
)

const maxHistoryLimit = 1000

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Actions:       s.invoker.Catalog().Len(),
	}
	if s.launches != nil {
		resp.Running = s.launches.Len()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleListActions handles GET /actions.
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ActionListResponse{Actions: s.invoker.Catalog().All()})
}

// handleInvoke handles POST /actions/{action}.
// Shell actions answer 202 once the process has started; URL actions answer 200.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "action")

	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	mode, err := launch.ParseMode(req.Mode, "")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.invoker.Invoke(r.Context(), dispatch.Invocation{
		ActionID:     name,
		DocumentPath: req.Document,
		Mode:         mode,
	})
	switch {
	case errors.Is(err, dispatch.ErrUnknownAction):
		s.writeError(w, http.StatusNotFound, "action not found")
		return
	case errors.Is(err, dispatch.ErrNoActiveDocument):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("invocation failed", "action", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if res.Handle == nil {
		respondJSON(w, http.StatusOK, InvokeResponse{
			Action: res.Action.ID,
			Status: "opened",
			URL:    res.URL,
		})
		return
	}

	info := res.Handle.Info()
	respondJSON(w, http.StatusAccepted, InvokeResponse{
		Action:  res.Action.ID,
		Status:  "started",
		Command: res.Request.String(),
		Launch:  &info,
	})
}

// handleListLaunches handles GET /launches.
func (s *Server) handleListLaunches(w http.ResponseWriter, r *http.Request) {
	resp := LaunchListResponse{Launches: []launch.Info{}}
	for _, h := range s.launches.List() {
		resp.Launches = append(resp.Launches, h.Info())
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleStopLaunch handles DELETE /launches/{pid}: SIGTERM to the process
// group now, SIGKILL once the grace period has passed.
func (s *Server) handleStopLaunch(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil || pid <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid pid")
		return
	}

	h, ok := s.launches.Get(pid)
	if !ok {
		s.writeError(w, http.StatusNotFound, "launch not found")
		return
	}

	go func() {
		if err := h.Terminate(s.config.StopGrace); err != nil && !errors.Is(err, launch.ErrNotRunning) {
			s.logger.Warn("failed to stop launch", "pid", pid, "launch_id", h.ID, "error", err)
		}
	}()

	respondJSON(w, http.StatusAccepted, StopResponse{PID: pid, Status: "stopping"})
}

// handleHistory handles GET /history?limit=N&action=ID.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}

	limit := journal.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.Recent(r.Context(), limit, r.URL.Query().Get("action"))
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.invoker.Catalog().All()))
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
