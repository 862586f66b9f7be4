package handlers

import "net/http"

// HealthCheck reports liveness plus index shape for smoke checks.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	idx := h.engine.Index()
	RespondJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"schema_version":   idx.SchemaVersion,
		"total_tile_count": idx.TotalTileCount,
		"collections":      len(idx.Collections),
		"generated_at":     idx.GeneratedAt,
	})
}
