// Package storage abstracts the object stores that hold DEM rasters
// behind a small capability set: enumerate keys and produce a
// GDAL-openable path for a key. The AU bucket, the NZ public bucket and
// a local directory (tests, development) all implement it.
package storage

import (
	"context"
	"strings"
	"time"
)

// ObjectRef identifies one raster object and the listing metadata the
// builder needs for incremental updates.
type ObjectRef struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// ObjectStore is the capability set the extractor and builder consume.
type ObjectStore interface {
	// Bucket returns the store's bucket or root identifier.
	Bucket() string
	// List walks every raster object, invoking fn per object. fn
	// returning an error stops the walk.
	List(ctx context.Context, fn func(ObjectRef) error) error
	// ListSince walks only objects modified strictly after since.
	ListSince(ctx context.Context, since time.Time, fn func(ObjectRef) error) error
	// RasterPath returns a path GDAL can open for the key.
	RasterPath(key string) string
}

// IsRasterKey reports whether a key names a GeoTIFF.
func IsRasterKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, ".tif") || strings.HasSuffix(lower, ".tiff")
}
