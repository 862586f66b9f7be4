package index

import (
	"log/slog"
	"sort"

	"github.com/road-engineering/dem-elevation/internal/geo"
)

// TileHit is one candidate tile with its owning campaign.
type TileHit struct {
	Ref  CampaignRef
	Tile *TileEntry
}

// FindTiles returns every tile whose bounds contain the point: a
// collection-level bounds test, then a campaign-level test, then a scan
// of only the surviving campaigns' tiles. This scoping is the index's
// performance contract: a metropolitan query scans a few thousand tile
// records, not the whole corpus.
func (idx *SpatialIndex) FindTiles(lat, lon float64) []TileHit {
	var hits []TileHit
	for _, col := range idx.Collections {
		if !col.Bounds.Contains(lat, lon) {
			continue
		}
		for _, campaign := range col.Campaigns {
			if !campaign.Bounds.Contains(lat, lon) {
				continue
			}
			for i := range campaign.Files {
				t := &campaign.Files[i]
				if t.Bounds.Contains(lat, lon) {
					hits = append(hits, TileHit{
						Ref:  CampaignRef{Collection: col, Campaign: campaign},
						Tile: t,
					})
				}
			}
		}
	}
	return hits
}

// CampaignTiles returns the tiles of one campaign containing the point,
// ordered by tile key for deterministic fallback iteration.
func (idx *SpatialIndex) CampaignTiles(campaignID string, lat, lon float64) []*TileEntry {
	ref := idx.CampaignByID(campaignID)
	if ref == nil {
		return nil
	}
	var tiles []*TileEntry
	for i := range ref.Campaign.Files {
		t := &ref.Campaign.Files[i]
		if t.Bounds.Contains(lat, lon) {
			tiles = append(tiles, t)
		}
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Key < tiles[j].Key })
	return tiles
}

// campaignGrid is a coarse 1-degree cell index over campaign bounds,
// built lazily on the first viewport query.
type campaignGrid struct {
	cells map[gridCell][]CampaignRef
}

type gridCell struct {
	latIdx int
	lonIdx int
}

func cellOf(lat, lon float64) gridCell {
	return gridCell{latIdx: int(floorDiv(lat, 1)), lonIdx: int(floorDiv(lon, 1))}
}

func floorDiv(v, size float64) float64 {
	q := v / size
	f := float64(int(q))
	if q < 0 && q != f {
		f--
	}
	return f
}

func (idx *SpatialIndex) ensureGrid() *campaignGrid {
	idx.gridOnce.Do(func() {
		g := &campaignGrid{cells: make(map[gridCell][]CampaignRef)}
		for _, ref := range idx.Campaigns() {
			b := ref.Campaign.Bounds
			minCell := cellOf(b.MinLat, b.MinLon)
			maxCell := cellOf(b.MaxLat, b.MaxLon)
			for la := minCell.latIdx; la <= maxCell.latIdx; la++ {
				for lo := minCell.lonIdx; lo <= maxCell.lonIdx; lo++ {
					c := gridCell{latIdx: la, lonIdx: lo}
					g.cells[c] = append(g.cells[c], ref)
				}
			}
		}
		idx.grid = g
		slog.Debug("campaign grid built", "cells", len(g.cells))
	})
	return idx.grid
}

// CampaignsIntersecting returns campaigns whose bounds intersect the
// viewport, using the 1-degree grid to prune candidates.
func (idx *SpatialIndex) CampaignsIntersecting(b geo.Bounds) []CampaignRef {
	g := idx.ensureGrid()
	seen := make(map[string]bool)
	var out []CampaignRef
	minCell := cellOf(b.MinLat, b.MinLon)
	maxCell := cellOf(b.MaxLat, b.MaxLon)
	for la := minCell.latIdx; la <= maxCell.latIdx; la++ {
		for lo := minCell.lonIdx; lo <= maxCell.lonIdx; lo++ {
			for _, ref := range g.cells[gridCell{latIdx: la, lonIdx: lo}] {
				if seen[ref.Campaign.ID] {
					continue
				}
				seen[ref.Campaign.ID] = true
				if ref.Campaign.Bounds.Intersects(b) {
					out = append(out, ref)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Campaign.ID < out[j].Campaign.ID })
	return out
}

// Cluster is one bucket of campaign centroids for low-zoom map display.
type Cluster struct {
	CenterLat   float64  `json:"center_lat"`
	CenterLon   float64  `json:"center_lon"`
	Count       int      `json:"count"`
	CampaignIDs []string `json:"campaign_ids"`
}

// ClusterGridSize returns the clustering cell size in degrees for a map
// zoom level. Wider cells at lower zoom.
func ClusterGridSize(zoom int) float64 {
	switch {
	case zoom <= 6:
		return 5.0
	case zoom <= 8:
		return 2.0
	default:
		return 1.0
	}
}

// ClustersFor buckets campaign centroids inside the viewport into a grid
// sized by zoom. At zoom 11 and above every campaign is its own cluster.
func (idx *SpatialIndex) ClustersFor(b geo.Bounds, zoom int) []Cluster {
	refs := idx.CampaignsIntersecting(b)

	if zoom >= 11 {
		clusters := make([]Cluster, 0, len(refs))
		for _, ref := range refs {
			lat, lon := ref.Campaign.Bounds.Center()
			clusters = append(clusters, Cluster{
				CenterLat:   lat,
				CenterLon:   lon,
				Count:       1,
				CampaignIDs: []string{ref.Campaign.ID},
			})
		}
		return clusters
	}

	size := ClusterGridSize(zoom)
	buckets := make(map[gridCell]*Cluster)
	var order []gridCell
	for _, ref := range refs {
		lat, lon := ref.Campaign.Bounds.Center()
		cell := gridCell{latIdx: int(floorDiv(lat, size)), lonIdx: int(floorDiv(lon, size))}
		cl, ok := buckets[cell]
		if !ok {
			cl = &Cluster{
				CenterLat: (floorDiv(lat, size) + 0.5) * size,
				CenterLon: (floorDiv(lon, size) + 0.5) * size,
			}
			buckets[cell] = cl
			order = append(order, cell)
		}
		cl.Count++
		cl.CampaignIDs = append(cl.CampaignIDs, ref.Campaign.ID)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].latIdx != order[j].latIdx {
			return order[i].latIdx < order[j].latIdx
		}
		return order[i].lonIdx < order[j].lonIdx
	})
	clusters := make([]Cluster, 0, len(order))
	for _, cell := range order {
		clusters = append(clusters, *buckets[cell])
	}
	return clusters
}
