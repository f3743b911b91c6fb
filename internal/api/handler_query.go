package api

import (
	"encoding/json"
	"net/http"

	"shoplake/internal/domain"
)

type queryRequest struct {
	SQL string `json:"sql"`
}

// ExecuteQuery runs a read-only SQL statement against the lake views.
func (h *APIHandler) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid query request: %v", err))
		return
	}
	if req.SQL == "" {
		writeError(w, domain.ErrValidation("sql is required"))
		return
	}

	result, err := h.querier.Query(r.Context(), req.SQL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
