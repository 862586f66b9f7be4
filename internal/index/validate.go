package index

import (
	"errors"
	"fmt"
	"math"

	"github.com/road-engineering/dem-elevation/internal/geo"
)

// ErrSchemaMismatch marks an index document whose schema_version this
// code does not support. Fatal at startup; exit 2 in the builder.
var ErrSchemaMismatch = errors.New("index schema version mismatch")

// ErrStructural marks an index that loaded but fails its invariants.
var ErrStructural = errors.New("index structural error")

// boundsEpsilon tolerates float drift when comparing recomputed unions
// against stored campaign bounds.
const boundsEpsilon = 1e-9

// Validate checks the structural invariants the builder must guarantee
// before a new index can replace the old one:
//
//   - every campaign's bounds equal the union of its tile bounds
//   - file_count matches the number of files
//   - total_tile_count equals the sum of campaign file counts
//   - no duplicate tile keys within a campaign
//   - every tile's bounds are valid WGS84 degrees (a UTM-in-degrees mix
//     is rejected, never silently accepted)
func (idx *SpatialIndex) Validate() error {
	if idx.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: have %q, want %q", ErrSchemaMismatch, idx.SchemaVersion, SchemaVersion)
	}

	total := 0
	for _, col := range idx.Collections {
		for id, campaign := range col.Campaigns {
			if len(campaign.Files) > 0 && !boundsWithin(campaign.Bounds, col.Bounds) {
				return fmt.Errorf("%w: campaign %s bounds %s outside collection %s bounds %s",
					ErrStructural, id, campaign.Bounds, col.Country, col.Bounds)
			}
			if campaign.FileCount != len(campaign.Files) {
				return fmt.Errorf("%w: campaign %s file_count %d != %d files",
					ErrStructural, id, campaign.FileCount, len(campaign.Files))
			}
			total += campaign.FileCount

			seen := make(map[string]bool, len(campaign.Files))
			for i := range campaign.Files {
				t := &campaign.Files[i]
				if seen[t.Key] {
					return fmt.Errorf("%w: campaign %s duplicate tile key %s", ErrStructural, id, t.Key)
				}
				seen[t.Key] = true

				if fam := geo.DetectCRSFamily(t.Bounds); fam != geo.CRSWGS84 {
					return fmt.Errorf("%w: campaign %s tile %s bounds are %s, not WGS84",
						ErrStructural, id, t.Key, fam)
				}
				if t.Bounds.Area() <= 0 {
					return fmt.Errorf("%w: campaign %s tile %s has empty bounds", ErrStructural, id, t.Key)
				}
			}

			if len(campaign.Files) > 0 {
				union := campaign.Files[0].Bounds
				for i := 1; i < len(campaign.Files); i++ {
					union = geo.Union(union, campaign.Files[i].Bounds)
				}
				if !boundsEqual(union, campaign.Bounds) {
					return fmt.Errorf("%w: campaign %s bounds %s != union of tiles %s",
						ErrStructural, id, campaign.Bounds, union)
				}
			}
		}
	}

	if total != idx.TotalTileCount {
		return fmt.Errorf("%w: total_tile_count %d != %d enumerated tiles",
			ErrStructural, idx.TotalTileCount, total)
	}
	return nil
}

// boundsWithin reports whether inner sits inside outer, tolerating the
// same float drift as the union comparison.
func boundsWithin(inner, outer geo.Bounds) bool {
	return inner.MinLat >= outer.MinLat-boundsEpsilon &&
		inner.MaxLat <= outer.MaxLat+boundsEpsilon &&
		inner.MinLon >= outer.MinLon-boundsEpsilon &&
		inner.MaxLon <= outer.MaxLon+boundsEpsilon
}

func boundsEqual(a, b geo.Bounds) bool {
	return math.Abs(a.MinLat-b.MinLat) < boundsEpsilon &&
		math.Abs(a.MaxLat-b.MaxLat) < boundsEpsilon &&
		math.Abs(a.MinLon-b.MinLon) < boundsEpsilon &&
		math.Abs(a.MaxLon-b.MaxLon) < boundsEpsilon
}
