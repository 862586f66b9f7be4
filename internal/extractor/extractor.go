// Package extractor turns object-storage rasters into TileEntry metadata
// without transferring pixel data. Strategies are tried in order: raster
// header read, filename grid decoding, regional path fallback.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/road-engineering/dem-elevation/internal/geo"
	"github.com/road-engineering/dem-elevation/internal/index"
	"github.com/road-engineering/dem-elevation/internal/storage"
)

var (
	ErrHeaderUnreadable        = errors.New("raster header unreadable")
	ErrUnrecognizedPattern     = errors.New("filename pattern not recognized")
	ErrReprojectionUnavailable = errors.New("no transformer for CRS pair")
	ErrOutsideExpectedRegion   = errors.New("bounds outside expected region")
)

// Extractor extracts tile metadata from one object store.
type Extractor struct {
	store storage.ObjectStore
}

func New(store storage.ObjectStore) *Extractor {
	return &Extractor{store: store}
}

// Extract produces a TileEntry for the object. The header strategy is
// retried once; persistent failure falls through to filename decoding,
// then to the regional box. Only the regional strategy cannot fail.
func (e *Extractor) Extract(ctx context.Context, obj storage.ObjectRef) (index.TileEntry, error) {
	entry, err := e.extractHeader(ctx, obj)
	if err == nil {
		return entry, nil
	}
	if ctx.Err() != nil {
		return index.TileEntry{}, ctx.Err()
	}
	if errors.Is(err, ErrHeaderUnreadable) || errors.Is(err, ErrReprojectionUnavailable) {
		// One retry covers transient object-storage failures.
		if entry, err2 := e.extractHeader(ctx, obj); err2 == nil {
			return entry, nil
		}
	} else if errors.Is(err, ErrOutsideExpectedRegion) {
		return index.TileEntry{}, err
	}
	slog.Debug("header extraction failed, trying filename", "key", obj.Key, "error", err)

	entry, err = e.extractFilename(obj)
	if err == nil {
		return entry, nil
	}
	slog.Debug("filename extraction failed, using regional fallback", "key", obj.Key, "error", err)

	return e.extractRegional(obj), nil
}

// extractFilename builds a TileEntry from a recognized filename grid
// pattern: a 1 km UTM tile reprojected to WGS84.
func (e *Extractor) extractFilename(obj storage.ObjectRef) (index.TileEntry, error) {
	filename := path.Base(obj.Key)
	cell, ok := parseUTMFromFilename(filename)
	if !ok {
		return index.TileEntry{}, fmt.Errorf("%w: %s", ErrUnrecognizedPattern, filename)
	}
	bounds := geo.TileBounds(cell.Easting, cell.Northing, cell.Zone, gridTileSize)
	if geo.DetectCRSFamily(bounds) != geo.CRSWGS84 {
		return index.TileEntry{}, fmt.Errorf("%w: %s decodes outside the region", ErrOutsideExpectedRegion, filename)
	}
	return index.TileEntry{
		Key:          obj.Key,
		Filename:     filename,
		Bounds:       bounds,
		NativeCRS:    utmEPSG(cell.Zone),
		PixelSizeX:   1,
		PixelSizeY:   1,
		Width:        1000,
		Height:       1000,
		Precision:    index.ClassifyPrecision(bounds.Area()),
		Method:       index.MethodFilenameGrid,
		SizeBytes:    obj.SizeBytes,
		LastModified: obj.LastModified,
	}, nil
}

func (e *Extractor) extractRegional(obj storage.ObjectRef) index.TileEntry {
	bounds, reason := regionalBounds(obj.Key)
	slog.Debug("regional fallback", "key", obj.Key, "reason", reason)
	return index.TileEntry{
		Key:          obj.Key,
		Filename:     path.Base(obj.Key),
		Bounds:       bounds,
		NativeCRS:    "EPSG:4326",
		Precision:    index.PrecisionRegional,
		Method:       index.MethodRegionalFallback,
		SizeBytes:    obj.SizeBytes,
		LastModified: obj.LastModified,
	}
}

// utmEPSG names the GDA94 MGA CRS for an Australian zone.
func utmEPSG(zone int) string {
	return "EPSG:283" + twoDigits(zone)
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10%10), byte('0' + n%10)})
}
