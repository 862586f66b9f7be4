package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Load reads and validates an index document. A schema mismatch or a
// structural failure is returned as-is so callers can map it to the
// critical exit code.
func Load(path string) (*SpatialIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	var idx SpatialIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}
	// Campaign ids live in the map keys; restore them onto the values.
	for _, col := range idx.Collections {
		for id, c := range col.Campaigns {
			c.ID = id
		}
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	slog.Info("spatial index loaded",
		"path", path,
		"collections", len(idx.Collections),
		"total_tiles", idx.TotalTileCount,
		"generated_at", idx.GeneratedAt,
	)
	return &idx, nil
}

// Save writes the index atomically: serialize to a temp file in the
// target directory, then rename over the destination. Readers keep the
// old document until the rename lands.
func Save(idx *SpatialIndex, path string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}
