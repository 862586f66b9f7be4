package extractor

import (
	"strings"

	"github.com/road-engineering/dem-elevation/internal/geo"
)

// Regional fallback: when neither the raster header nor the filename
// yields bounds, a coarse state box is derived from the object path.
// The result is always precision "regional".

type regionBox struct {
	name   string
	bounds geo.Bounds
}

var stateBoxes = []regionBox{
	{"act", geo.Bounds{MinLat: -35.93, MaxLat: -35.12, MinLon: 148.76, MaxLon: 149.40}},
	{"qld", geo.Bounds{MinLat: -29.18, MaxLat: -9.14, MinLon: 137.99, MaxLon: 153.55}},
	{"nsw", geo.Bounds{MinLat: -37.51, MaxLat: -28.16, MinLon: 140.99, MaxLon: 153.64}},
	{"vic", geo.Bounds{MinLat: -39.16, MaxLat: -33.98, MinLon: 140.96, MaxLon: 149.98}},
	{"tas", geo.Bounds{MinLat: -43.64, MaxLat: -39.57, MinLon: 143.82, MaxLon: 148.50}},
	{"wa", geo.Bounds{MinLat: -35.13, MaxLat: -13.69, MinLon: 112.92, MaxLon: 129.00}},
	{"sa", geo.Bounds{MinLat: -38.06, MaxLat: -25.99, MinLon: 129.00, MaxLon: 141.00}},
	{"nt", geo.Bounds{MinLat: -26.00, MaxLat: -10.96, MinLon: 129.00, MaxLon: 138.00}},
}

var australiaBox = geo.Bounds{MinLat: -43.64, MaxLat: -9.14, MinLon: 112.92, MaxLon: 153.64}

// regionalBounds derives a state-level box from path substrings,
// defaulting to the Australia-wide envelope. The reason string records
// which heuristic fired.
func regionalBounds(key string) (geo.Bounds, string) {
	lower := strings.ToLower(key)
	for _, rb := range stateBoxes {
		if strings.Contains(lower, rb.name) {
			return rb.bounds, "state heuristic: " + rb.name
		}
	}
	return australiaBox, "no state match, australia-wide"
}

// DetectRegion returns the state bucket used for stratified validation
// sampling, or "other" when no state substring matches.
func DetectRegion(key string) string {
	lower := strings.ToLower(key)
	for _, rb := range stateBoxes {
		if strings.Contains(lower, rb.name) {
			return rb.name
		}
	}
	return "other"
}
