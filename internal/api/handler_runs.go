package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"shoplake/internal/domain"
	"shoplake/internal/middleware"
)

const defaultRunListLimit = 20

// TriggerRun starts a pipeline run and waits for it to finish. Concurrent
// triggers while a run is in flight answer 409.
func (h *APIHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var params domain.RunParams
	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, domain.ErrValidation("read request body: %v", err))
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &params); err != nil {
				writeError(w, domain.ErrValidation("invalid run params: %v", err))
				return
			}
		}
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	h.logger.Info("run triggered over http",
		"principal", principal,
		"request_id", middleware.RequestIDFromContext(r.Context()))

	run, err := h.pipeline.Execute(r.Context(), domain.TriggerAPI, params)
	if err != nil {
		writeError(w, err)
		return
	}
	// A failed run is still a completed request; the failure detail lives in
	// the run record.
	writeJSON(w, http.StatusOK, run)
}

// ListRuns returns the most recent runs, newest first.
func (h *APIHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, domain.ErrValidation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun returns a single run with its stage reports.
func (h *APIHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
