package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/road-engineering/dem-elevation/internal/geo"
	"github.com/road-engineering/dem-elevation/internal/provider"
	"github.com/road-engineering/dem-elevation/internal/selector"
)

// Machine-readable reason codes surfaced with results.
const (
	ReasonNoCoverage       = "no_coverage"
	ReasonAllSourcesFailed = "all_sources_failed"
	ReasonCancelled        = "cancelled"
)

// ValidationError marks a malformed request; handlers map it to 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Request is one point query.
type Request struct {
	Lat      float64
	Lon      float64
	SourceID string          // restrict to one campaign, optional
	Policy   selector.Policy // zero value selects fastest
}

// Result is the response contract for a point query. Elevation is nil
// when no source produced a value; Message then carries the reason code.
type Result struct {
	ElevationM *float64 `json:"elevation_m"`
	Source     string   `json:"source"`
	DatasetID  *string  `json:"dataset_id"`
	CRS        *string  `json:"crs"`
	Message    *string  `json:"message"`
}

// Provenance labels in Result.Source.
const (
	sourceObjectStorage = "object-storage"
	sourceNone          = "none"
)

// GetElevation runs the fallback state machine for one point:
// selector -> campaign tiles -> next campaign -> provider chain.
// TileMiss and transient upstream failures are absorbed; everything
// else surfaces.
func (e *Engine) GetElevation(ctx context.Context, req Request) (Result, error) {
	if err := geo.ValidateCoordinate(req.Lat, req.Lon); err != nil {
		return Result{}, &ValidationError{Msg: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	sel := e.newSelector(req.Policy)
	matches := e.allowed(sel.Select(req.Lat, req.Lon))
	matches = filterBySource(matches, req.SourceID)

	if len(matches) == 0 && len(e.providers) == 0 {
		return noCoverageResult(), nil
	}

	// High-confidence top candidates end the campaign walk after one
	// search; the provider chain still backs a sampling miss.
	if len(matches) > 1 && matches[0].Confidence > selector.HighConfidence {
		matches = matches[:1]
	}

	for _, match := range matches {
		result, ok, err := e.tryCampaign(ctx, match, req.Lat, req.Lon)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return cancelledResult(match.ID), nil
			}
			return Result{}, err
		}
		if ok {
			return result, nil
		}
	}

	return e.tryProviders(ctx, req.Lat, req.Lon)
}

// tryCampaign samples every candidate tile of one campaign in key order.
// A nodata pixel or an upstream failure moves to the next tile; one
// retry covers transient storage errors.
func (e *Engine) tryCampaign(ctx context.Context, match selector.DatasetMatch, lat, lon float64) (Result, bool, error) {
	tiles := e.idx.CampaignTiles(match.ID, lat, lon)
	ref := e.idx.CampaignByID(match.ID)

	for _, tile := range tiles {
		if ctx.Err() != nil {
			return Result{}, false, ctx.Err()
		}
		value, ok, err := e.sampler.Sample(ctx, tile, lat, lon)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return Result{}, false, err
			}
			// Retry once, then treat the tile as missed.
			value, ok, err = e.sampler.Sample(ctx, tile, lat, lon)
			if err != nil {
				slog.Warn("tile sample failed, trying next candidate",
					"campaign", match.ID, "key", tile.Key, "error", err)
				continue
			}
		}
		if !ok {
			continue
		}

		crs := tile.NativeCRS
		message := fmt.Sprintf("sampled %s via %s", tile.Key, tile.Method)
		slog.Info("elevation served",
			"source", sourceObjectStorage,
			"dataset", match.ID,
			"tile", tile.Key,
			"method", tile.Method,
			"provider", ref.Campaign.Provider,
		)
		return Result{
			ElevationM: &value,
			Source:     sourceObjectStorage,
			DatasetID:  &match.ID,
			CRS:        &crs,
			Message:    &message,
		}, true, nil
	}
	return Result{}, false, nil
}

// tryProviders walks the HTTP chain in configured order. Rate-limited
// providers start a cool-off; 4xx/5xx failures skip the provider for the
// remainder of this request only.
func (e *Engine) tryProviders(ctx context.Context, lat, lon float64) (Result, error) {
	attempted := false
	for _, p := range e.providers {
		if ctx.Err() != nil {
			return cancelledResult(""), nil
		}
		if e.providerCooling(p.Name()) {
			slog.Debug("provider in cool-off, skipping", "provider", p.Name())
			continue
		}
		attempted = true

		if err := p.CheckRateLimit(ctx); err != nil {
			if errors.Is(err, provider.ErrRateLimited) {
				e.startCoolOff(p.Name())
				slog.Warn("provider rate limited, cooling off", "provider", p.Name())
				continue
			}
			return Result{}, err
		}

		value, err := p.FetchElevation(ctx, lat, lon)
		if err != nil {
			if errors.Is(err, provider.ErrRateLimited) {
				e.startCoolOff(p.Name())
				continue
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return cancelledResult(p.Name()), nil
			}
			slog.Warn("provider failed, trying next", "provider", p.Name(), "error", err)
			continue
		}

		name := p.Name()
		crs := "EPSG:4326"
		message := "resolved by external provider"
		slog.Info("elevation served", "source", name, "lat", lat, "lon", lon)
		return Result{
			ElevationM: &value,
			Source:     name,
			DatasetID:  nil,
			CRS:        &crs,
			Message:    &message,
		}, nil
	}

	if !attempted {
		return noCoverageResult(), nil
	}
	reason := ReasonAllSourcesFailed
	return Result{Source: sourceNone, Message: &reason}, nil
}

// GetElevations answers a bulk query. Points sharing a top campaign are
// processed together so the tile cache stays hot; results always come
// back in input order.
func (e *Engine) GetElevations(ctx context.Context, points []Request) ([]Result, error) {
	results := make([]Result, len(points))

	// Group input positions by best-candidate campaign.
	groups := make(map[string][]int)
	var order []string
	for i, pt := range points {
		if err := geo.ValidateCoordinate(pt.Lat, pt.Lon); err != nil {
			return nil, &ValidationError{Msg: fmt.Sprintf("point %d: %v", i, err)}
		}
		sel := e.newSelector(pt.Policy)
		matches := filterBySource(e.allowed(sel.Select(pt.Lat, pt.Lon)), pt.SourceID)
		key := ""
		if len(matches) > 0 {
			key = matches[0].ID
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	for _, key := range order {
		for _, i := range groups[key] {
			res, err := e.GetElevation(ctx, points[i])
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
	}
	return results, nil
}

func filterBySource(matches []selector.DatasetMatch, sourceID string) []selector.DatasetMatch {
	if sourceID == "" {
		return matches
	}
	var out []selector.DatasetMatch
	for _, m := range matches {
		if m.ID == sourceID {
			out = append(out, m)
		}
	}
	return out
}

func noCoverageResult() Result {
	reason := ReasonNoCoverage
	return Result{Source: sourceNone, Message: &reason}
}

func cancelledResult(lastAttempt string) Result {
	message := ReasonCancelled
	if lastAttempt != "" {
		message = ReasonCancelled + ": last attempt " + lastAttempt
	}
	return Result{Source: sourceNone, Message: &message}
}

// CoverageSummary reports what the index offers at a point without
// sampling anything.
type CoverageSummary struct {
	Lat        float64                 `json:"lat"`
	Lon        float64                 `json:"lon"`
	Candidates []selector.DatasetMatch `json:"candidates"`
	TileCount  int                     `json:"tile_count"`
}

// Coverage lists the ranked candidates and candidate tile count at a
// point under the given policy.
func (e *Engine) Coverage(lat, lon float64, p selector.Policy) (CoverageSummary, error) {
	if err := geo.ValidateCoordinate(lat, lon); err != nil {
		return CoverageSummary{}, &ValidationError{Msg: err.Error()}
	}
	matches := e.allowed(e.newSelector(p).Select(lat, lon))
	tiles := 0
	for _, m := range matches {
		tiles += len(e.idx.CampaignTiles(m.ID, lat, lon))
	}
	return CoverageSummary{Lat: lat, Lon: lon, Candidates: matches, TileCount: tiles}, nil
}
