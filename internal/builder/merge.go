package builder

import (
	"sort"
	"time"

	"github.com/road-engineering/dem-elevation/internal/extractor"
	"github.com/road-engineering/dem-elevation/internal/geo"
	"github.com/road-engineering/dem-elevation/internal/index"
)

// Campaign defaults per country. Priority and cost come from the source
// catalog for serving; these seed newly discovered campaigns.
var countryDefaults = map[string]struct {
	provider string
	crs      string
	priority int
}{
	"AU": {provider: "ELVIS", crs: "GDA94 MGA", priority: 1},
	"NZ": {provider: "LINZ", crs: "NZGD2000", priority: 2},
}

// merger routes extracted tiles into Collection -> Campaign buckets.
// Only the builder's consumer goroutine touches it.
type merger struct {
	bucket      string
	incremental bool
	collections map[string]*index.Collection
	countryOrd  []string
}

func newMerger(bucket string, existing *index.SpatialIndex) *merger {
	m := &merger{bucket: bucket, collections: make(map[string]*index.Collection)}
	if existing != nil {
		m.incremental = true
		m.adopt(cloneIndex(existing))
	}
	return m
}

// adopt seeds the merger from a checkpoint or an existing index.
func (m *merger) adopt(idx *index.SpatialIndex) {
	for _, col := range idx.Collections {
		if _, seen := m.collections[col.Country]; !seen {
			m.countryOrd = append(m.countryOrd, col.Country)
		}
		m.collections[col.Country] = col
	}
}

// add routes one tile to its campaign, creating the collection and
// campaign lazily. Replaces any previous entry under the same key.
func (m *merger) add(entry index.TileEntry) {
	gk := extractor.GroupTile(entry.Key)

	col, ok := m.collections[gk.Country]
	if !ok {
		defaults := countryDefaults[gk.Country]
		col = &index.Collection{
			Country:          gk.Country,
			CoordinateSystem: defaults.crs,
			Campaigns:        make(map[string]*index.Campaign),
		}
		m.collections[gk.Country] = col
		m.countryOrd = append(m.countryOrd, gk.Country)
	}

	campaign, ok := col.Campaigns[gk.CampaignID]
	if !ok {
		defaults := countryDefaults[gk.Country]
		campaign = &index.Campaign{
			ID:           gk.CampaignID,
			Name:         gk.Name,
			Provider:     defaults.provider,
			DataType:     gk.DataType,
			ResolutionM:  1.0,
			Priority:     defaults.priority,
			CostPerQuery: 0,
			CampaignYear: gk.Year,
			SurveyName:   gk.SurveyName,
		}
		col.Campaigns[gk.CampaignID] = campaign
	}

	for i := range campaign.Files {
		if campaign.Files[i].Key == entry.Key {
			campaign.Files[i] = entry
			return
		}
	}
	campaign.Files = append(campaign.Files, entry)
}

func (m *merger) tileCount() int {
	n := 0
	for _, col := range m.collections {
		for _, c := range col.Campaigns {
			n += len(c.Files)
		}
	}
	return n
}

// snapshot produces a consistent checkpoint document without finalizing.
func (m *merger) snapshot() *index.SpatialIndex {
	return m.assemble(time.Now().UTC())
}

// finalize recomputes every derived field and stamps the document.
func (m *merger) finalize() *index.SpatialIndex {
	idx := m.assemble(time.Now().UTC())
	if m.incremental {
		t := idx.GeneratedAt
		idx.LastIncrementalUpdate = &t
	}
	return idx
}

func (m *merger) assemble(now time.Time) *index.SpatialIndex {
	idx := &index.SpatialIndex{
		SchemaVersion: index.SchemaVersion,
		GeneratedAt:   now,
		Bucket:        m.bucket,
	}
	for _, country := range m.countryOrd {
		col := m.collections[country]
		var colBounds []geo.Bounds
		for _, campaign := range col.Campaigns {
			// Stable enumeration order within a campaign.
			sort.SliceStable(campaign.Files, func(i, j int) bool {
				return campaign.Files[i].Key < campaign.Files[j].Key
			})
			campaign.FileCount = len(campaign.Files)
			if len(campaign.Files) > 0 {
				bounds := campaign.Files[0].Bounds
				for i := 1; i < len(campaign.Files); i++ {
					bounds = geo.Union(bounds, campaign.Files[i].Bounds)
				}
				campaign.Bounds = bounds
				colBounds = append(colBounds, bounds)
			}
			idx.TotalTileCount += campaign.FileCount
		}
		// Collection bounds roll up from the campaigns the same way
		// campaign bounds roll up from tiles.
		if len(colBounds) > 0 {
			col.Bounds = geo.Union(colBounds...)
		}
		idx.Collections = append(idx.Collections, col)
	}
	return idx
}

// cloneIndex deep-copies an index so an update never mutates the
// document currently serving reads.
func cloneIndex(src *index.SpatialIndex) *index.SpatialIndex {
	dst := &index.SpatialIndex{
		SchemaVersion:  src.SchemaVersion,
		GeneratedAt:    src.GeneratedAt,
		Bucket:         src.Bucket,
		TotalTileCount: src.TotalTileCount,
	}
	if src.LastIncrementalUpdate != nil {
		t := *src.LastIncrementalUpdate
		dst.LastIncrementalUpdate = &t
	}
	for _, col := range src.Collections {
		newCol := &index.Collection{
			Country:          col.Country,
			CoordinateSystem: col.CoordinateSystem,
			Bounds:           col.Bounds,
			Campaigns:        make(map[string]*index.Campaign, len(col.Campaigns)),
		}
		for id, c := range col.Campaigns {
			newC := *c
			newC.Files = make([]index.TileEntry, len(c.Files))
			copy(newC.Files, c.Files)
			newCol.Campaigns[id] = &newC
		}
		dst.Collections = append(dst.Collections, newCol)
	}
	return dst
}
