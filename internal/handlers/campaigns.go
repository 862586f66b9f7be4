package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/road-engineering/dem-elevation/internal/coverage"
	"github.com/road-engineering/dem-elevation/internal/geo"
	"github.com/road-engineering/dem-elevation/internal/index"
)

// ListCampaigns serves GET /api/v1/campaigns with filters and
// pagination.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := coverage.Query{
		Page:            queryInt(q.Get("page"), 1),
		PageSize:        queryInt(q.Get("page_size"), 0),
		MinResolutionM:  queryFloat(q.Get("min_resolution_m")),
		MaxResolutionM:  queryFloat(q.Get("max_resolution_m")),
		YearFrom:        queryInt(q.Get("year_from"), 0),
		YearTo:          queryInt(q.Get("year_to"), 0),
		IncludeTiles:    q.Get("include_tiles") == "true",
		IncludeGeometry: q.Get("include_geometry") == "true",
	}
	for _, dt := range splitList(q.Get("data_types")) {
		query.DataTypes = append(query.DataTypes, index.DataType(dt))
	}
	query.Providers = splitList(q.Get("providers"))
	query.Countries = splitList(q.Get("countries"))

	if raw := q.Get("bbox"); raw != "" {
		b, ok := parseBBox(raw)
		if !ok {
			RespondBadRequest(w, r, "bbox must be min_lon,min_lat,max_lon,max_lat")
			return
		}
		query.Bounds = &b
	}

	RespondJSON(w, r, http.StatusOK, h.coverage.List(query))
}

// GetCampaign serves GET /api/v1/campaigns/{id}.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		RespondBadRequest(w, r, "campaign id is required")
		return
	}
	view, ok := h.coverage.Get(id,
		r.URL.Query().Get("include_tiles") == "true",
		r.URL.Query().Get("include_geometry") == "true")
	if !ok {
		RespondNotFound(w, r, "campaign "+id+" not found")
		return
	}
	RespondJSON(w, r, http.StatusOK, view)
}

// CampaignsInBounds serves GET /api/v1/campaigns/in-bounds.
func (h *Handlers) CampaignsInBounds(w http.ResponseWriter, r *http.Request) {
	b, ok := parseBBox(r.URL.Query().Get("bbox"))
	if !ok {
		RespondBadRequest(w, r, "bbox must be min_lon,min_lat,max_lon,max_lat")
		return
	}
	RespondJSON(w, r, http.StatusOK, h.coverage.InBounds(b))
}

// CampaignClusters serves GET /api/v1/campaigns/clusters.
func (h *Handlers) CampaignClusters(w http.ResponseWriter, r *http.Request) {
	b, ok := parseBBox(r.URL.Query().Get("bbox"))
	if !ok {
		RespondBadRequest(w, r, "bbox must be min_lon,min_lat,max_lon,max_lat")
		return
	}
	zoom := queryInt(r.URL.Query().Get("zoom"), 10)
	RespondJSON(w, r, http.StatusOK, h.coverage.Clusters(b, zoom))
}

// parseBBox reads the conventional "min_lon,min_lat,max_lon,max_lat"
// viewport string.
func parseBBox(raw string) (geo.Bounds, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geo.Bounds{}, false
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.Bounds{}, false
		}
		vals[i] = v
	}
	b := geo.Bounds{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if !b.Valid() {
		return geo.Bounds{}, false
	}
	return b, true
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
