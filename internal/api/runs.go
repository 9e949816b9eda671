package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/backfill"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// startRun handles POST /api/v1/backfill/runs. It answers 202 with the run ID,
// 409 while another run is active, or 503 when backfills are not configured.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "backfill runs unavailable")
		return
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.closed || s.runCtx.Err() != nil {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	if s.activeRun != "" {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"error":   "backfill already running",
			"run_id":  s.activeRun,
		})
		return
	}
	runID, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to allocate run id")
		return
	}
	run := backfill.Run{ID: runID, Status: backfill.RunRunning, StartedAt: s.deps.Clock.Now().UTC()}
	if err := s.deps.Runs.CreateRun(r.Context(), run); err != nil {
		s.logger.Error("create run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}
	s.activeRun = runID
	s.runWG.Add(1)
	go s.execute(runID)

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "run_id": runID})
}

func (s *Server) execute(runID string) {
	defer s.runWG.Done()
	logger := s.logger.With(zap.String("run_id", runID))
	report, runErr := s.deps.Runner.Backfill(s.runCtx, runID)
	if runErr != nil {
		logger.Warn("backfill run ended with error", zap.Error(runErr))
	}
	if err := s.deps.Runs.FinishRun(context.WithoutCancel(s.runCtx), runID, report, runErr, s.deps.Clock.Now().UTC()); err != nil {
		logger.Error("finish run failed", zap.Error(err))
	}
	s.runMu.Lock()
	s.activeRun = ""
	s.runMu.Unlock()
}

// listRuns handles GET /api/v1/backfill/runs?limit=&offset=, newest first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "backfill runs unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "runs": runs})
}

// getRun handles GET /api/v1/backfill/runs/{run_id}, including the report once finished.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "backfill runs unavailable")
		return
	}
	run, err := s.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		if errors.Is(err, backfill.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "run": run})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
