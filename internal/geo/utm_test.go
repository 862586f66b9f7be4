package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Round-tripping through the projection must land within 1 m. A degree
// of latitude is ~111 km, so 1 m is roughly 1e-5 degrees.
func TestUTMRoundTrip(t *testing.T) {
	points := []struct {
		name     string
		lat, lon float64
		zone     int
	}{
		{"brisbane", -27.4698, 153.0251, 56},
		{"canberra", -35.2809, 149.1300, 55},
		{"melbourne", -37.8136, 144.9631, 55},
		{"alice springs", -23.6980, 133.8807, 53},
	}

	for _, pt := range points {
		t.Run(pt.name, func(t *testing.T) {
			e, n := LatLonToUTM(pt.lat, pt.lon, pt.zone)
			lat, lon := UTMToLatLon(e, n, pt.zone, true)

			latErr := math.Abs(lat-pt.lat) * 111_000
			lonErr := math.Abs(lon-pt.lon) * 111_000 * math.Cos(pt.lat*math.Pi/180)
			assert.Less(t, latErr, 1.0, "latitude error %fm", latErr)
			assert.Less(t, lonErr, 1.0, "longitude error %fm", lonErr)
		})
	}
}

func TestLatLonToUTM_KnownRanges(t *testing.T) {
	// Brisbane sits just east of zone 56's central meridian: easting a
	// touch over 500km, southern-hemisphere northing near 6.96M.
	e, n := LatLonToUTM(-27.4698, 153.0251, 56)
	assert.InDelta(t, 502_000, e, 2_000)
	assert.InDelta(t, 6_961_000, n, 5_000)
}

// Reprojecting a bbox out and back must land within 1 m on every edge.
func TestReprojectBBoxRoundTrip(t *testing.T) {
	// Corner-transform-then-envelope covers a slightly rotated
	// rectangle, so drift scales with grid convergence; kilometre
	// tiles sit well inside the metre bound.
	boxes := []struct {
		name                   string
		minE, minN, maxE, maxN float64
		zone                   int
	}{
		{"brisbane 1km tile", 502_000, 6_960_000, 503_000, 6_961_000, 56},
		{"canberra 1km tile", 499_000, 6_090_000, 500_000, 6_091_000, 55},
		{"alice springs 1km tile", 499_500, 7_370_000, 500_500, 7_371_000, 53},
	}

	for _, bx := range boxes {
		t.Run(bx.name, func(t *testing.T) {
			wgs := ReprojectBBoxToWGS84(bx.minE, bx.minN, bx.maxE, bx.maxN, bx.zone, true)
			minE, minN, maxE, maxN := ReprojectBBoxToUTM(wgs, bx.zone)

			// The round-tripped envelope can only grow (axis-aligned
			// covers of rotated rectangles), and by less than a meter
			// at these extents. The series forward and inverse
			// projections are not exact inverses of each other, so an
			// edge with no growth can come back a few hundredths of a
			// millimetre inside; the 1 mm tolerance absorbs that.
			assert.LessOrEqual(t, minE, bx.minE+1e-3)
			assert.LessOrEqual(t, minN, bx.minN+1e-3)
			assert.GreaterOrEqual(t, maxE, bx.maxE-1e-3)
			assert.GreaterOrEqual(t, maxN, bx.maxN-1e-3)

			assert.Less(t, bx.minE-minE, 1.0, "west edge drift")
			assert.Less(t, bx.minN-minN, 1.0, "south edge drift")
			assert.Less(t, maxE-bx.maxE, 1.0, "east edge drift")
			assert.Less(t, maxN-bx.maxN, 1.0, "north edge drift")
		})
	}
}

func TestTileBounds(t *testing.T) {
	e, n := LatLonToUTM(-27.4698, 153.0251, 56)
	b := TileBounds(e, n, 56, 1000)

	assert.True(t, b.Contains(-27.4698, 153.0251), "tile centered on the point must contain it")
	// A 1km tile spans well under 0.02 degrees on either axis.
	assert.Less(t, b.LatRange(), 0.02)
	assert.Less(t, b.LonRange(), 0.02)
	assert.Greater(t, b.Area(), 0.0)
}
