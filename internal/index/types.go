// Package index implements the persistent three-level spatial index
// (Collection -> Campaign -> TileEntry) and its query operations. The
// index is a single serialized document, loaded read-only at startup and
// mutated only by the builder.
package index

import (
	"sync"
	"time"

	"github.com/road-engineering/dem-elevation/internal/geo"
)

// SchemaVersion is the only index document version this code reads or
// writes. A loaded document with any other version is rejected.
const SchemaVersion = "2.0"

// Method records how a tile's bounds were obtained.
type Method string

const (
	MethodRasterHeader     Method = "raster-header"
	MethodFilenameGrid     Method = "filename-grid"
	MethodRegionalFallback Method = "regional-fallback"
)

// Precision is the size bucket of a tile's bounds.
type Precision string

const (
	PrecisionPrecise    Precision = "precise"
	PrecisionReasonable Precision = "reasonable"
	PrecisionRegional   Precision = "regional"
)

// Precision class boundaries in square degrees. Areas exactly on a
// boundary classify into the better class.
const (
	preciseMaxArea    = 0.001
	reasonableMaxArea = 1.0
)

// ClassifyPrecision buckets a bounds area into its precision class.
func ClassifyPrecision(areaDeg2 float64) Precision {
	switch {
	case areaDeg2 <= preciseMaxArea:
		return PrecisionPrecise
	case areaDeg2 <= reasonableMaxArea:
		return PrecisionReasonable
	default:
		return PrecisionRegional
	}
}

// DataType identifies the survey product a campaign contains.
type DataType string

const (
	DataTypeDEM            DataType = "DEM"
	DataTypeDSM            DataType = "DSM"
	DataTypeLiDAR          DataType = "LiDAR"
	DataTypePhotogrammetry DataType = "Photogrammetry"
	DataTypeUnknown        DataType = "Unknown"
)

// TileEntry describes one raster file in object storage. Entries are
// immutable; re-extraction replaces the whole value.
type TileEntry struct {
	Key          string     `json:"key"`
	Filename     string     `json:"filename"`
	Bounds       geo.Bounds `json:"bounds"`
	NativeCRS    string     `json:"native_crs"`
	PixelSizeX   float64    `json:"pixel_size_x"`
	PixelSizeY   float64    `json:"pixel_size_y"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	Precision    Precision  `json:"precision"`
	Method       Method     `json:"method"`
	SizeBytes    int64      `json:"size_bytes"`
	LastModified time.Time  `json:"last_modified"`
}

// Campaign is a named survey owning an ordered set of tiles. For NZ data
// the same structure represents a survey-level collection child.
type Campaign struct {
	ID           string      `json:"-"`
	Name         string      `json:"name"`
	Provider     string      `json:"provider"`
	DataType     DataType    `json:"data_type"`
	ResolutionM  float64     `json:"resolution_m"`
	Priority     int         `json:"priority"`
	CostPerQuery float64     `json:"cost_per_query"`
	Accuracy     string      `json:"accuracy,omitempty"`
	Bounds       geo.Bounds  `json:"bounds"`
	CampaignYear int         `json:"campaign_year,omitempty"`
	SurveyName   string      `json:"survey_name,omitempty"`
	FileCount    int         `json:"file_count"`
	Files        []TileEntry `json:"files"`
}

// Collection groups campaigns per country dataset family. AU campaigns
// are keyed by UTM zone and campaign name; NZ campaigns by survey and
// data type.
// Bounds is the union of all child campaign bounds and gates queries
// before any campaign is examined.
type Collection struct {
	Country          string               `json:"country"`
	CoordinateSystem string               `json:"coordinate_system"`
	Bounds           geo.Bounds           `json:"bounds"`
	Campaigns        map[string]*Campaign `json:"campaigns"`
}

// SpatialIndex is the root of the persisted document. Field names fix
// the on-disk shape; renaming one is a schema version bump.
type SpatialIndex struct {
	SchemaVersion         string        `json:"schema_version"`
	GeneratedAt           time.Time     `json:"generated_at"`
	Bucket                string        `json:"bucket"`
	TotalTileCount        int           `json:"total_tile_count"`
	Collections           []*Collection `json:"collections"`
	LastIncrementalUpdate *time.Time    `json:"last_incremental_update,omitempty"`

	// Lazily built 1-degree campaign grid; gridOnce makes the build
	// safe under concurrent readers.
	gridOnce sync.Once
	grid     *campaignGrid
}

// CampaignRef pairs a campaign with its parent collection for query
// results. Tiles hold neither a campaign id nor a pointer back; a tile's
// campaign is known only through the campaign that lists it.
type CampaignRef struct {
	Collection *Collection
	Campaign   *Campaign
}

// Collection lookup by country code.
func (idx *SpatialIndex) Collection(country string) *Collection {
	for _, c := range idx.Collections {
		if c.Country == country {
			return c
		}
	}
	return nil
}

// Campaigns returns every campaign across all collections.
func (idx *SpatialIndex) Campaigns() []CampaignRef {
	var refs []CampaignRef
	for _, col := range idx.Collections {
		for _, c := range col.Campaigns {
			refs = append(refs, CampaignRef{Collection: col, Campaign: c})
		}
	}
	return refs
}

// CampaignByID finds a campaign in any collection.
func (idx *SpatialIndex) CampaignByID(id string) *CampaignRef {
	for _, col := range idx.Collections {
		if c, ok := col.Campaigns[id]; ok {
			return &CampaignRef{Collection: col, Campaign: c}
		}
	}
	return nil
}
