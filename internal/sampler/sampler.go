// Package sampler reads single elevation pixels from DEM rasters in
// object storage. Datasets stay open in a bounded LRU so repeated
// queries against the same tile avoid re-opening remote files;
// singleflight collapses concurrent loads of one tile.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/airbusgeo/godal"
	"golang.org/x/sync/singleflight"

	"github.com/road-engineering/dem-elevation/internal/extractor"
	"github.com/road-engineering/dem-elevation/internal/index"
	"github.com/road-engineering/dem-elevation/internal/storage"
)

// DefaultCacheTiles bounds the number of simultaneously open datasets.
const DefaultCacheTiles = 200

// gdalMu serializes GDAL calls; GDAL and libtiff keep global state that
// is not thread-safe.
var gdalMu sync.Mutex

// Sampler reads pixels from tiles of one object store.
type Sampler struct {
	store   storage.ObjectStore
	cache   *tileCache
	sfGroup singleflight.Group
}

func New(store storage.ObjectStore) *Sampler {
	return NewWithCacheSize(store, DefaultCacheTiles)
}

func NewWithCacheSize(store storage.ObjectStore, cacheTiles int) *Sampler {
	extractor.RegisterDrivers()
	return &Sampler{store: store, cache: newTileCache(cacheTiles)}
}

// Close releases all cached datasets.
func (s *Sampler) Close() { s.cache.closeAll() }

// Sample reads the pixel containing (lat, lon) from the tile's raster.
// The second return is false when the pixel holds the nodata sentinel.
// I/O failures return an error; callers treat both cases as retryable.
func (s *Sampler) Sample(ctx context.Context, tile *index.TileEntry, lat, lon float64) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	ot, err := s.openTile(ctx, tile)
	if err != nil {
		return 0, false, err
	}

	x, y := lon, lat
	if ot.transform != nil {
		xs, ys := []float64{lon}, []float64{lat}
		gdalMu.Lock()
		err = ot.transform.TransformEx(xs, ys, nil, nil)
		gdalMu.Unlock()
		if err != nil {
			return 0, false, fmt.Errorf("reproject query point into %s: %w", tile.NativeCRS, err)
		}
		x, y = xs[0], ys[0]
	}

	px, py := pixelIndex(ot.gt, x, y, ot.sizeX, ot.sizeY)

	ot.mu.Lock()
	buf := make([]float64, 1)
	err = ot.band.Read(px, py, buf, 1, 1)
	ot.mu.Unlock()
	if err != nil {
		return 0, false, fmt.Errorf("read pixel (%d,%d) of %s: %w", px, py, tile.Key, err)
	}

	value := buf[0]
	if ot.hasNodata && value == ot.nodata {
		slog.Debug("nodata pixel", "key", tile.Key, "lat", lat, "lon", lon)
		return 0, false, nil
	}
	return value, true, nil
}

// pixelIndex maps a native-CRS coordinate to a clamped pixel index via
// the inverse geotransform. Clamping keeps points exactly on a tile edge
// inside the raster.
func pixelIndex(gt [6]float64, x, y float64, sizeX, sizeY int) (int, int) {
	px := int((x - gt[0]) / gt[1])
	py := int((y - gt[3]) / gt[5])

	if px < 0 {
		px = 0
	} else if px >= sizeX {
		px = sizeX - 1
	}
	if py < 0 {
		py = 0
	} else if py >= sizeY {
		py = sizeY - 1
	}
	return px, py
}

// openTile returns the cached dataset for a tile, loading it under
// singleflight so concurrent queries share one open.
func (s *Sampler) openTile(ctx context.Context, tile *index.TileEntry) (*openTile, error) {
	if ot, valid, found := s.cache.get(tile.Key); found {
		if !valid {
			return nil, fmt.Errorf("tile %s previously unreadable", tile.Key)
		}
		return ot, nil
	}

	result, err, _ := s.sfGroup.Do(tile.Key, func() (interface{}, error) {
		if ot, valid, found := s.cache.get(tile.Key); found {
			if !valid {
				return nil, fmt.Errorf("tile %s previously unreadable", tile.Key)
			}
			return ot, nil
		}
		ot, err := s.loadTile(tile)
		if err != nil {
			s.cache.put(tile.Key, nil, false)
			return nil, err
		}
		s.cache.put(tile.Key, ot, true)
		return ot, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*openTile), nil
}

func (s *Sampler) loadTile(tile *index.TileEntry) (*openTile, error) {
	rasterPath := s.store.RasterPath(tile.Key)

	gdalMu.Lock()
	defer gdalMu.Unlock()

	ds, err := godal.Open(rasterPath)
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", rasterPath, err)
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("geotransform %s: %w", rasterPath, err)
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		ds.Close()
		return nil, fmt.Errorf("no bands in %s", rasterPath)
	}
	structure := ds.Structure()

	ot := &openTile{
		ds:    ds,
		gt:    gt,
		band:  bands[0],
		sizeX: structure.SizeX,
		sizeY: structure.SizeY,
	}
	if nodata, ok := bands[0].NoData(); ok {
		ot.nodata = nodata
		ot.hasNodata = true
	}

	// Projected rasters need the query point reprojected into the
	// native CRS before the inverse geotransform applies.
	if srs := ds.SpatialRef(); srs != nil && !srs.Geographic() {
		wgs84, err := godal.NewSpatialRefFromEPSG(4326)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("wgs84 spatial ref: %w", err)
		}
		tr, err := godal.NewTransform(wgs84, srs)
		wgs84.Close()
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("transform into %s: %w", tile.NativeCRS, err)
		}
		ot.transform = tr
	}

	slog.Debug("tile opened", "key", tile.Key, "cached", s.cache.len())
	return ot, nil
}
