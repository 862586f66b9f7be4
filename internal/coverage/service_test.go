package coverage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/road-engineering/dem-elevation/internal/geo"
	"github.com/road-engineering/dem-elevation/internal/index"
)

func coverageIndex(t *testing.T) *index.SpatialIndex {
	t.Helper()

	mk := func(key string, b geo.Bounds) index.TileEntry {
		return index.TileEntry{
			Key: key, Filename: key, Bounds: b,
			NativeCRS: "EPSG:28356", PixelSizeX: 1, PixelSizeY: -1,
			Width: 1000, Height: 1000,
			Precision: index.ClassifyPrecision(b.Area()), Method: index.MethodRasterHeader,
			SizeBytes: 1, LastModified: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	brisbaneA := geo.Bounds{MinLat: -27.48, MaxLat: -27.46, MinLon: 153.01, MaxLon: 153.03}
	brisbaneB := geo.Bounds{MinLat: -27.46, MaxLat: -27.44, MinLon: 153.01, MaxLon: 153.03}
	sydney := geo.Bounds{MinLat: -33.88, MaxLat: -33.86, MinLon: 151.20, MaxLon: 151.22}
	wellington := geo.Bounds{MinLat: -41.30, MaxLat: -41.28, MinLon: 174.77, MaxLon: 174.79}

	idx := &index.SpatialIndex{
		SchemaVersion:  index.SchemaVersion,
		GeneratedAt:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		TotalTileCount: 4,
		Collections: []*index.Collection{
			{
				Country:          "AU",
				CoordinateSystem: "GDA94 MGA",
				Bounds:           geo.Union(brisbaneA, brisbaneB, sydney),
				Campaigns: map[string]*index.Campaign{
					"brisbane2019": {
						ID: "brisbane2019", Name: "Brisbane_2019_Prj", Provider: "ELVIS",
						DataType: index.DataTypeLiDAR, ResolutionM: 1, Priority: 1,
						CampaignYear: 2019,
						Bounds:       geo.Union(brisbaneA, brisbaneB), FileCount: 2,
						Files: []index.TileEntry{mk("b/a.tif", brisbaneA), mk("b/b.tif", brisbaneB)},
					},
					"sydney2015": {
						ID: "sydney2015", Name: "Sydney2015", Provider: "ELVIS",
						DataType: index.DataTypeDEM, ResolutionM: 5, Priority: 1,
						CampaignYear: 2015,
						Bounds:       sydney, FileCount: 1,
						Files: []index.TileEntry{mk("s/a.tif", sydney)},
					},
				},
			},
			{
				Country:          "NZ",
				CoordinateSystem: "NZGD2000",
				Bounds:           wellington,
				Campaigns: map[string]*index.Campaign{
					"wellington2021": {
						ID: "wellington2021", Name: "wellington-city_2021", Provider: "LINZ",
						DataType: index.DataTypeLiDAR, ResolutionM: 1, Priority: 2,
						CampaignYear: 2021,
						Bounds:       wellington, FileCount: 1,
						Files: []index.TileEntry{mk("w/a.tif", wellington)},
					},
				},
			},
		},
	}
	require.NoError(t, idx.Validate())
	return idx
}

func TestList_Filters(t *testing.T) {
	svc := New(coverageIndex(t))

	t.Run("all", func(t *testing.T) {
		res := svc.List(Query{})
		assert.Equal(t, 3, res.Total)
		assert.Len(t, res.Campaigns, 3)
	})

	t.Run("data type", func(t *testing.T) {
		res := svc.List(Query{DataTypes: []index.DataType{index.DataTypeLiDAR}})
		assert.Equal(t, 2, res.Total)
	})

	t.Run("resolution ceiling", func(t *testing.T) {
		res := svc.List(Query{MaxResolutionM: 1})
		assert.Equal(t, 2, res.Total)
	})

	t.Run("provider case-insensitive", func(t *testing.T) {
		res := svc.List(Query{Providers: []string{"linz"}})
		require.Equal(t, 1, res.Total)
		assert.Equal(t, "wellington2021", res.Campaigns[0].ID)
	})

	t.Run("country", func(t *testing.T) {
		res := svc.List(Query{Countries: []string{"AU"}})
		assert.Equal(t, 2, res.Total)
	})

	t.Run("year range", func(t *testing.T) {
		res := svc.List(Query{YearFrom: 2016, YearTo: 2020})
		require.Equal(t, 1, res.Total)
		assert.Equal(t, "brisbane2019", res.Campaigns[0].ID)
	})

	t.Run("bbox", func(t *testing.T) {
		b := geo.Bounds{MinLat: -28, MaxLat: -27, MinLon: 153, MaxLon: 154}
		res := svc.List(Query{Bounds: &b})
		require.Equal(t, 1, res.Total)
		assert.Equal(t, "brisbane2019", res.Campaigns[0].ID)
	})
}

func TestList_Pagination(t *testing.T) {
	svc := New(coverageIndex(t))

	page1 := svc.List(Query{Page: 1, PageSize: 2})
	require.Len(t, page1.Campaigns, 2)
	assert.Equal(t, 3, page1.Total)

	page2 := svc.List(Query{Page: 2, PageSize: 2})
	require.Len(t, page2.Campaigns, 1)

	// Stable id ordering across pages, no overlap.
	assert.Less(t, page1.Campaigns[1].ID, page2.Campaigns[0].ID)

	empty := svc.List(Query{Page: 9, PageSize: 2})
	assert.Empty(t, empty.Campaigns)
}

func TestList_TilesAndGeometryOptIn(t *testing.T) {
	svc := New(coverageIndex(t))

	bare := svc.List(Query{})
	for _, c := range bare.Campaigns {
		assert.Nil(t, c.Files)
		assert.Nil(t, c.Geometry)
	}

	rich := svc.List(Query{IncludeTiles: true, IncludeGeometry: true})
	for _, c := range rich.Campaigns {
		assert.Len(t, c.Files, c.FileCount)
		assert.NotNil(t, c.Geometry)
	}
}

func TestGet(t *testing.T) {
	svc := New(coverageIndex(t))

	view, ok := svc.Get("brisbane2019", true, true)
	require.True(t, ok)
	assert.Equal(t, "AU", view.Country)
	assert.Len(t, view.Files, 2)
	require.NotNil(t, view.Geometry)

	_, ok = svc.Get("missing", false, false)
	assert.False(t, ok)
}

func TestFootprint(t *testing.T) {
	idx := coverageIndex(t)

	t.Run("single tile is a polygon", func(t *testing.T) {
		c := idx.CampaignByID("sydney2015").Campaign
		g := Footprint(c)
		data, err := json.Marshal(&g)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"Polygon"`)
	})

	t.Run("multiple tiles form a multipolygon", func(t *testing.T) {
		c := idx.CampaignByID("brisbane2019").Campaign
		g := Footprint(c)
		data, err := json.Marshal(&g)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"MultiPolygon"`)
	})

	t.Run("no tiles falls back to campaign rectangle", func(t *testing.T) {
		c := &index.Campaign{
			ID:     "empty",
			Bounds: geo.Bounds{MinLat: -28, MaxLat: -27, MinLon: 152, MaxLon: 153},
		}
		g := Footprint(c)
		data, err := json.Marshal(&g)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"Polygon"`)
	})
}

func TestInBoundsAndClusters(t *testing.T) {
	svc := New(coverageIndex(t))
	viewport := geo.Bounds{MinLat: -45, MaxLat: -10, MinLon: 140, MaxLon: 180}

	views := svc.InBounds(viewport)
	assert.Len(t, views, 3)

	clusters := svc.Clusters(viewport, 12)
	assert.Len(t, clusters, 3)

	low := svc.Clusters(viewport, 4)
	total := 0
	for _, c := range low {
		total += c.Count
	}
	assert.Equal(t, 3, total)
}
