package extractor

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/road-engineering/dem-elevation/internal/geo"
	"github.com/road-engineering/dem-elevation/internal/index"
	"github.com/road-engineering/dem-elevation/internal/storage"
)

// gdalMu protects all GDAL operations. GDAL/libtiff have internal global
// state that is not thread-safe, so all GDAL calls are serialized.
var gdalMu sync.Mutex

var registerOnce sync.Once

// RegisterDrivers initializes GDAL drivers. Safe to call from every
// binary; only the first call does work.
func RegisterDrivers() {
	registerOnce.Do(godal.RegisterAll)
}

// extractHeader reads the raster's geotransform, size and CRS from its
// header and derives WGS84 bounds, reprojecting the corners when the
// native CRS is projected.
func (e *Extractor) extractHeader(ctx context.Context, obj storage.ObjectRef) (index.TileEntry, error) {
	if err := ctx.Err(); err != nil {
		return index.TileEntry{}, err
	}
	RegisterDrivers()

	rasterPath := e.store.RasterPath(obj.Key)

	gdalMu.Lock()
	defer gdalMu.Unlock()

	ds, err := godal.Open(rasterPath)
	if err != nil {
		return index.TileEntry{}, fmt.Errorf("%w: open %s: %v", ErrHeaderUnreadable, rasterPath, err)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return index.TileEntry{}, fmt.Errorf("%w: geotransform %s: %v", ErrHeaderUnreadable, rasterPath, err)
	}
	structure := ds.Structure()
	if structure.SizeX <= 0 || structure.SizeY <= 0 {
		return index.TileEntry{}, fmt.Errorf("%w: empty raster %s", ErrHeaderUnreadable, rasterPath)
	}

	// Native envelope from the geotransform. gt[5] is negative for
	// north-up rasters, so minY comes from the bottom edge.
	minX := gt[0]
	maxX := gt[0] + gt[1]*float64(structure.SizeX)
	maxY := gt[3]
	minY := gt[3] + gt[5]*float64(structure.SizeY)
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	srs := ds.SpatialRef()
	crsName := crsLabel(srs)

	var bounds geo.Bounds
	if srs != nil && !srs.Geographic() {
		bounds, err = reprojectEnvelope(srs, minX, minY, maxX, maxY)
		if err != nil {
			return index.TileEntry{}, err
		}
	} else {
		// Geographic raster: x is longitude, y is latitude.
		bounds = geo.Bounds{MinLat: minY, MaxLat: maxY, MinLon: minX, MaxLon: maxX}
	}

	if fam := geo.DetectCRSFamily(bounds); fam != geo.CRSWGS84 {
		return index.TileEntry{}, fmt.Errorf("%w: %s resolved to %s bounds %s",
			ErrOutsideExpectedRegion, obj.Key, fam, bounds)
	}

	return index.TileEntry{
		Key:          obj.Key,
		Filename:     path.Base(obj.Key),
		Bounds:       bounds,
		NativeCRS:    crsName,
		PixelSizeX:   gt[1],
		PixelSizeY:   gt[5],
		Width:        structure.SizeX,
		Height:       structure.SizeY,
		Precision:    index.ClassifyPrecision(bounds.Area()),
		Method:       index.MethodRasterHeader,
		SizeBytes:    obj.SizeBytes,
		LastModified: obj.LastModified,
	}, nil
}

// reprojectEnvelope transforms the four corners of a native envelope to
// WGS84 and returns their axis-aligned box. Callers hold gdalMu.
func reprojectEnvelope(src *godal.SpatialRef, minX, minY, maxX, maxY float64) (geo.Bounds, error) {
	dst, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return geo.Bounds{}, fmt.Errorf("%w: wgs84 ref: %v", ErrReprojectionUnavailable, err)
	}
	defer dst.Close()

	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return geo.Bounds{}, fmt.Errorf("%w: %v", ErrReprojectionUnavailable, err)
	}
	defer tr.Close()

	xs := []float64{minX, maxX, maxX, minX}
	ys := []float64{minY, minY, maxY, maxY}
	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return geo.Bounds{}, fmt.Errorf("%w: transform corners: %v", ErrReprojectionUnavailable, err)
	}
	// TransformEx yields lon in x, lat in y for a 4326 target.
	return geo.FromCorners(ys, xs), nil
}

// crsLabel names a spatial reference as "AUTH:CODE". Without a usable
// identifier it falls back to EPSG:4326 for a missing or geographic
// reference and to "unknown" for a projected one.
func crsLabel(srs *godal.SpatialRef) string {
	if srs == nil {
		return "EPSG:4326"
	}
	name, code := srs.AuthorityName(""), srs.AuthorityCode("")
	if name != "" && code != "" {
		return name + ":" + code
	}
	if srs.Geographic() {
		return "EPSG:4326"
	}
	return "unknown"
}
