package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/road-engineering/dem-elevation/internal/index"
)

// Checkpoint files sit beside the index, their names encoding the tile
// count so the newest is recognizable without parsing:
// <index>.checkpoint.000120000.json

func checkpointPath(indexPath string, tiles int) string {
	return fmt.Sprintf("%s.checkpoint.%09d.json", indexPath, tiles)
}

func checkpointGlob(indexPath string) string {
	return indexPath + ".checkpoint.*.json"
}

func writeCheckpoint(indexPath string, idx *index.SpatialIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	path := checkpointPath(indexPath, idx.TotalTileCount)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

// loadLatestCheckpoint returns the highest-count checkpoint and its key
// set, or nils when none exist.
func loadLatestCheckpoint(indexPath string) (*index.SpatialIndex, map[string]bool, error) {
	matches, err := filepath.Glob(checkpointGlob(indexPath))
	if err != nil || len(matches) == 0 {
		return nil, nil, err
	}
	sort.Slice(matches, func(i, j int) bool {
		return checkpointCount(matches[i]) > checkpointCount(matches[j])
	})

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read checkpoint %s: %w", matches[0], err)
	}
	var idx index.SpatialIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, nil, fmt.Errorf("parse checkpoint %s: %w", matches[0], err)
	}
	keys := make(map[string]bool)
	for _, col := range idx.Collections {
		for id, c := range col.Campaigns {
			c.ID = id
			for i := range c.Files {
				keys[c.Files[i].Key] = true
			}
		}
	}
	return &idx, keys, nil
}

func checkpointCount(path string) int {
	base := filepath.Base(path)
	parts := strings.Split(base, ".")
	if len(parts) < 3 {
		return 0
	}
	n, _ := strconv.Atoi(parts[len(parts)-2])
	return n
}

// removeCheckpoints clears side files after a successful build.
func removeCheckpoints(indexPath string) {
	matches, _ := filepath.Glob(checkpointGlob(indexPath))
	for _, m := range matches {
		os.Remove(m)
	}
}
