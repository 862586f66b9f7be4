// Package selector ranks candidate campaigns for a coordinate under a
// named selection policy. Scores are weighted sums of geographic and
// quality components; the orchestrator walks the ranked list.
package selector

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/road-engineering/dem-elevation/internal/index"
)

// Policy names a weight vector for confidence scoring.
type Policy string

const (
	PolicyFastest  Policy = "fastest"
	PolicyCheapest Policy = "cheapest"
	PolicyBalanced Policy = "balanced"
	PolicyQuality  Policy = "quality"
)

// ParsePolicy maps a request string to a Policy, defaulting to fastest.
func ParsePolicy(s string) (Policy, bool) {
	switch Policy(strings.ToLower(s)) {
	case PolicyFastest, "":
		return PolicyFastest, true
	case PolicyCheapest:
		return PolicyCheapest, true
	case PolicyBalanced:
		return PolicyBalanced, true
	case PolicyQuality:
		return PolicyQuality, true
	}
	return PolicyFastest, false
}

// Weights is the scoring vector for one policy.
type Weights struct {
	BoundsOverlap        float64
	BoundsSpecificity    float64
	CenterProximity      float64
	ResolutionPreference float64
	DataTypeQuality      float64
	ProviderReliability  float64
	CostEfficiency       float64
}

func (w Weights) total() float64 {
	return w.BoundsOverlap + w.BoundsSpecificity + w.CenterProximity +
		w.ResolutionPreference + w.DataTypeQuality + w.ProviderReliability +
		w.CostEfficiency
}

// Normalize scales the vector down proportionally when it sums above 1,
// so a full-score candidate never exceeds confidence 1.0.
func (w Weights) Normalize() Weights {
	total := w.total()
	if total <= 1.0 {
		return w
	}
	f := 1.0 / total
	return Weights{
		BoundsOverlap:        w.BoundsOverlap * f,
		BoundsSpecificity:    w.BoundsSpecificity * f,
		CenterProximity:      w.CenterProximity * f,
		ResolutionPreference: w.ResolutionPreference * f,
		DataTypeQuality:      w.DataTypeQuality * f,
		ProviderReliability:  w.ProviderReliability * f,
		CostEfficiency:       w.CostEfficiency * f,
	}
}

// PolicyWeights returns the normalized weight vector for a policy.
func PolicyWeights(p Policy) Weights {
	var w Weights
	switch p {
	case PolicyCheapest:
		w = Weights{0.30, 0.20, 0.10, 0.05, 0.05, 0.05, 0.25}
	case PolicyBalanced:
		w = Weights{0.35, 0.30, 0.15, 0.15, 0.08, 0.05, 0.12}
	case PolicyQuality:
		w = Weights{0.30, 0.20, 0.10, 0.30, 0.20, 0.10, 0.00}
	default: // fastest
		w = Weights{0.40, 0.40, 0.20, 0.20, 0.10, 0.05, 0.00}
	}
	return w.Normalize()
}

// trustedProviders earn the provider_reliability component.
var trustedProviders = []string{"elvis", "ga", "linz"}

// ScoreBreakdown records the per-component contributions behind a
// confidence value. Returned with matches so API consumers can see why a
// dataset won.
type ScoreBreakdown struct {
	BoundsOverlap        float64 `json:"bounds_overlap"`
	BoundsSpecificity    float64 `json:"bounds_specificity"`
	CenterProximity      float64 `json:"center_proximity"`
	ResolutionPreference float64 `json:"resolution_preference"`
	DataTypeQuality      float64 `json:"data_type_quality"`
	ProviderReliability  float64 `json:"provider_reliability"`
	CostEfficiency       float64 `json:"cost_efficiency"`
}

// DatasetMatch is one ranked candidate.
type DatasetMatch struct {
	ID           string         `json:"dataset_id"`
	Name         string         `json:"dataset_name"`
	Confidence   float64        `json:"confidence_score"`
	Priority     int            `json:"priority"`
	FileCount    int            `json:"file_count"`
	CostPerQuery float64        `json:"cost_per_query"`
	ResolutionM  float64        `json:"resolution_m"`
	Breakdown    ScoreBreakdown `json:"score_breakdown"`
}

// Selector scores campaigns from a read-only spatial index.
type Selector struct {
	idx    *index.SpatialIndex
	policy Policy
	w      Weights
}

func New(idx *index.SpatialIndex, policy Policy) *Selector {
	return &Selector{idx: idx, policy: policy, w: PolicyWeights(policy)}
}

func (s *Selector) Policy() Policy { return s.policy }

// Select returns campaigns containing the point ranked best-first.
// Candidates whose bounds exclude the point are dropped entirely.
// Ordering: confidence desc, priority asc, cost asc, id asc.
func (s *Selector) Select(lat, lon float64) []DatasetMatch {
	var matches []DatasetMatch
	for _, ref := range s.idx.Campaigns() {
		c := ref.Campaign
		conf, breakdown, ok := s.score(lat, lon, c)
		if !ok {
			continue
		}
		matches = append(matches, DatasetMatch{
			ID:           c.ID,
			Name:         c.Name,
			Confidence:   conf,
			Priority:     c.Priority,
			FileCount:    c.FileCount,
			CostPerQuery: c.CostPerQuery,
			ResolutionM:  c.ResolutionM,
			Breakdown:    breakdown,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.CostPerQuery != b.CostPerQuery {
			return a.CostPerQuery < b.CostPerQuery
		}
		return a.ID < b.ID
	})

	slog.Debug("dataset selection",
		"policy", s.policy, "lat", lat, "lon", lon, "candidates", len(matches))
	return matches
}

// HighConfidence is the short-circuit threshold: when the top match
// exceeds it, the orchestrator stops after that single campaign.
const HighConfidence = 0.8

func (s *Selector) score(lat, lon float64, c *index.Campaign) (float64, ScoreBreakdown, bool) {
	b := c.Bounds
	if !b.Contains(lat, lon) {
		return 0, ScoreBreakdown{}, false
	}

	var bd ScoreBreakdown
	bd.BoundsOverlap = s.w.BoundsOverlap

	latRange, lonRange := b.LatRange(), b.LonRange()
	switch {
	case latRange < 2.0 && lonRange < 2.0:
		bd.BoundsSpecificity = s.w.BoundsSpecificity
	case latRange < 5.0 && lonRange < 5.0:
		bd.BoundsSpecificity = s.w.BoundsSpecificity * 0.5
	}

	centerLat, centerLon := b.Center()
	latDist, lonDist := math.Abs(lat-centerLat), math.Abs(lon-centerLon)
	switch {
	case latDist < latRange*0.25 && lonDist < lonRange*0.25:
		bd.CenterProximity = s.w.CenterProximity
	case latDist < latRange*0.5 && lonDist < lonRange*0.5:
		bd.CenterProximity = s.w.CenterProximity * 0.5
	}

	switch {
	case c.ResolutionM <= 1.0:
		bd.ResolutionPreference = s.w.ResolutionPreference
	case c.ResolutionM <= 5.0:
		bd.ResolutionPreference = s.w.ResolutionPreference * 0.5
	}

	switch c.DataType {
	case index.DataTypeLiDAR:
		bd.DataTypeQuality = s.w.DataTypeQuality
	case index.DataTypeDEM:
		bd.DataTypeQuality = s.w.DataTypeQuality * 0.5
	}

	provider := strings.ToLower(c.Provider)
	for _, trusted := range trustedProviders {
		if strings.Contains(provider, trusted) {
			bd.ProviderReliability = s.w.ProviderReliability
			break
		}
	}

	if s.w.CostEfficiency > 0 {
		switch {
		case c.CostPerQuery <= 0.001:
			bd.CostEfficiency = s.w.CostEfficiency
		case c.CostPerQuery <= 0.01:
			bd.CostEfficiency = s.w.CostEfficiency * 0.5
		}
	}

	conf := bd.BoundsOverlap + bd.BoundsSpecificity + bd.CenterProximity +
		bd.ResolutionPreference + bd.DataTypeQuality + bd.ProviderReliability +
		bd.CostEfficiency
	return math.Min(conf, 1.0), bd, true
}
