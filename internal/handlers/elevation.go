package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/road-engineering/dem-elevation/internal/engine"
	"github.com/road-engineering/dem-elevation/internal/ratelimit"
	"github.com/road-engineering/dem-elevation/internal/selector"
)

// PointRequest is the body of POST /api/v1/elevation/point.
type PointRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	SourceID  string  `json:"source_id,omitempty"`
	Policy    string  `json:"policy,omitempty"`
}

// BulkRequest is the body of POST /api/v1/elevation/points.
type BulkRequest struct {
	Points []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"points"`
	SourceID string `json:"source_id,omitempty"`
	Policy   string `json:"policy,omitempty"`
}

// BulkResponse preserves input order and length.
type BulkResponse struct {
	Results []engine.Result `json:"results"`
}

// maxBulkPoints bounds one bulk request.
const maxBulkPoints = 500

// GetElevation answers a single point query. Accepts a JSON body on
// POST or lat/lon query parameters on GET.
func (h *Handlers) GetElevation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PointRequest
	if r.Method == http.MethodGet {
		lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		lon, err2 := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
		if err1 != nil || err2 != nil {
			RespondBadRequest(w, r, "lat and lon query parameters are required numbers")
			return
		}
		req.Latitude, req.Longitude = lat, lon
		req.SourceID = r.URL.Query().Get("source_id")
		req.Policy = r.URL.Query().Get("policy")
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondBadRequest(w, r, "invalid request body")
			return
		}
	}

	policy, ok := selector.ParsePolicy(req.Policy)
	if !ok {
		RespondBadRequest(w, r, "unknown policy "+req.Policy)
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetElevation(ctx, req.SourceID, req.Latitude, req.Longitude); err == nil && cached != nil {
			RespondJSON(w, r, http.StatusOK, cached)
			return
		}
	}

	result, err := h.engine.GetElevation(ctx, engine.Request{
		Lat:      req.Latitude,
		Lon:      req.Longitude,
		SourceID: req.SourceID,
		Policy:   policy,
	})
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	if h.cache != nil && result.ElevationM != nil {
		if err := h.cache.SetElevation(ctx, req.SourceID, req.Latitude, req.Longitude, result); err != nil {
			slog.Debug("elevation cache set failed", "error", err)
		}
	}
	RespondJSON(w, r, http.StatusOK, result)
}

// GetElevations answers a bulk query. Response length and order match
// the request.
func (h *Handlers) GetElevations(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondBadRequest(w, r, "invalid request body")
		return
	}
	if len(req.Points) == 0 {
		RespondBadRequest(w, r, "points is required")
		return
	}
	if len(req.Points) > maxBulkPoints {
		RespondBadRequest(w, r, "too many points, max "+strconv.Itoa(maxBulkPoints))
		return
	}

	policy, ok := selector.ParsePolicy(req.Policy)
	if !ok {
		RespondBadRequest(w, r, "unknown policy "+req.Policy)
		return
	}

	points := make([]engine.Request, len(req.Points))
	for i, p := range req.Points {
		points[i] = engine.Request{Lat: p.Lat, Lon: p.Lon, SourceID: req.SourceID, Policy: policy}
	}

	results, err := h.engine.GetElevations(r.Context(), points)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	RespondJSON(w, r, http.StatusOK, BulkResponse{Results: results})
}

// GetCoverageSummary reports candidate datasets at a point without
// sampling anything.
func (h *Handlers) GetCoverageSummary(w http.ResponseWriter, r *http.Request) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err1 != nil || err2 != nil {
		RespondBadRequest(w, r, "lat and lon query parameters are required numbers")
		return
	}
	policy, ok := selector.ParsePolicy(r.URL.Query().Get("policy"))
	if !ok {
		RespondBadRequest(w, r, "unknown policy")
		return
	}

	summary, err := h.engine.Coverage(lat, lon, policy)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	RespondJSON(w, r, http.StatusOK, summary)
}

func (h *Handlers) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *engine.ValidationError
	switch {
	case errors.As(err, &ve):
		RespondBadRequest(w, r, ve.Msg)
	case errors.Is(err, ratelimit.ErrServiceUnavailable):
		RespondServiceUnavailable(w, r, "rate limiter unavailable")
	default:
		slog.Error("elevation request failed", "path", r.URL.Path, "error", err)
		RespondInternalError(w, r, "elevation lookup failed")
	}
}
