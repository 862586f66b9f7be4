package coverage

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/road-engineering/dem-elevation/internal/geo"
	"github.com/road-engineering/dem-elevation/internal/index"
)

// Geometry is the GeoJSON geometry returned with campaign footprints.
type Geometry = geojson.Geometry

// Footprint renders a campaign's coverage as GeoJSON: the union of its
// tile boxes as a Polygon (single box) or MultiPolygon, or the campaign
// bounds rectangle when the campaign has no tiles yet.
func Footprint(c *index.Campaign) Geometry {
	if len(c.Files) == 0 {
		return *geojson.NewGeometry(ringOf(c.Bounds))
	}

	seen := make(map[geo.Bounds]bool, len(c.Files))
	var polys orb.MultiPolygon
	for i := range c.Files {
		b := c.Files[i].Bounds
		if seen[b] {
			continue
		}
		seen[b] = true
		polys = append(polys, ringOf(b))
	}

	if len(polys) == 1 {
		return *geojson.NewGeometry(polys[0])
	}
	return *geojson.NewGeometry(polys)
}

// ringOf converts a bounds box to a closed counter-clockwise polygon.
// GeoJSON positions are (lon, lat).
func ringOf(b geo.Bounds) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{b.MinLon, b.MinLat},
		{b.MaxLon, b.MinLat},
		{b.MaxLon, b.MaxLat},
		{b.MinLon, b.MaxLat},
		{b.MinLon, b.MinLat},
	}}
}
