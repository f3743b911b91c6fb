package api

import (
	"net/http"

	"shoplake/internal/domain"
)

// ListTables returns every registered table as "layer.table" names.
func (h *APIHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.partitions.ListTables(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// ListPartitions returns the committed partitions of one table.
func (h *APIHandler) ListPartitions(w http.ResponseWriter, r *http.Request) {
	layer := r.URL.Query().Get("layer")
	table := r.URL.Query().Get("table")
	if layer == "" || table == "" {
		writeError(w, domain.ErrValidation("layer and table query parameters are required"))
		return
	}

	parts, err := h.partitions.List(r.Context(), layer, table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"partitions": parts})
}
