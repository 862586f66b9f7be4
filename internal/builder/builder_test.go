package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/road-engineering/dem-elevation/internal/geo"
	"github.com/road-engineering/dem-elevation/internal/index"
	"github.com/road-engineering/dem-elevation/internal/storage"
)

// writeTile creates a fake raster whose header is unreadable, so
// extraction exercises the filename-grid path deterministically.
func writeTile(t *testing.T, root, key string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not a real geotiff"), 0o644))
	if !modTime.IsZero() {
		require.NoError(t, os.Chtimes(path, modTime, modTime))
	}
}

// swKey builds an object key whose filename encodes the 1km UTM tile
// containing (lat, lon) in zone 56.
func swKey(t *testing.T, campaign string, lat, lon float64) string {
	t.Helper()
	e, n := geo.LatLonToUTM(lat, lon, 56)
	east := (int(e) / 1000) * 1000
	north := (int(n) / 1000) * 1000
	return fmt.Sprintf("qld-elvis/elevation/1m-dem/z56/%s/%s_SW_%d_%d_1k_DEM_1m.tif",
		campaign, campaign, east, north)
}

func seedStore(t *testing.T) (string, *storage.LocalStore) {
	t.Helper()
	root := t.TempDir()
	past := time.Now().Add(-24 * time.Hour)

	writeTile(t, root, swKey(t, "Brisbane_2019_Prj", -27.4698, 153.0251), past)
	writeTile(t, root, swKey(t, "Brisbane_2019_Prj", -27.4798, 153.0351), past)
	writeTile(t, root, swKey(t, "GoldCoast_2020_Prj", -28.0023, 153.4145), past)
	return root, storage.NewLocalStore(root)
}

func TestBuild_FullIndex(t *testing.T) {
	_, store := seedStore(t)
	indexPath := filepath.Join(t.TempDir(), "spatial_index.json")
	b := New(store, indexPath)

	idx, stats, err := b.Build(context.Background(), Options{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, 3, idx.TotalTileCount)
	assert.Equal(t, 3, stats.Extracted)
	assert.Equal(t, 0, stats.FailedExtractions)
	require.NoError(t, idx.Validate())

	// Tiles landed in their campaign buckets.
	bris := idx.CampaignByID("Brisbane_2019_Prj_z56")
	require.NotNil(t, bris)
	assert.Equal(t, 2, bris.Campaign.FileCount)
	assert.True(t, bris.Campaign.Bounds.Contains(-27.4698, 153.0251))

	gc := idx.CampaignByID("GoldCoast_2020_Prj_z56")
	require.NotNil(t, gc)
	assert.Equal(t, 1, gc.Campaign.FileCount)

	// Every entry came from the filename grid with a native UTM CRS.
	for i := range bris.Campaign.Files {
		f := bris.Campaign.Files[i]
		assert.Equal(t, index.MethodFilenameGrid, f.Method)
		assert.Equal(t, "EPSG:28356", f.NativeCRS)
		assert.Equal(t, index.PrecisionPrecise, f.Precision)
	}

	// The persisted document loads back and validates.
	loaded, err := index.Load(indexPath)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.TotalTileCount)

	// Checkpoints are cleaned up after a successful build.
	leftover, _ := filepath.Glob(indexPath + ".checkpoint.*.json")
	assert.Empty(t, leftover)
}

func TestUpdate_NoNewObjectsIsIdempotent(t *testing.T) {
	_, store := seedStore(t)
	indexPath := filepath.Join(t.TempDir(), "spatial_index.json")
	b := New(store, indexPath)

	built, _, err := b.Build(context.Background(), Options{Workers: 2})
	require.NoError(t, err)

	updated, stats, err := b.Update(context.Background(), built, Options{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Extracted, "nothing newer than generated_at")
	assert.Equal(t, built.TotalTileCount, updated.TotalTileCount)
	assert.NotNil(t, updated.LastIncrementalUpdate)

	// Per-campaign file lists are byte-equal after the no-op update.
	for _, col := range built.Collections {
		for id, campaign := range col.Campaigns {
			after := updated.CampaignByID(id)
			require.NotNil(t, after, "campaign %s survived", id)
			before, err := json.Marshal(campaign.Files)
			require.NoError(t, err)
			got, err := json.Marshal(after.Campaign.Files)
			require.NoError(t, err)
			assert.JSONEq(t, string(before), string(got), "campaign %s files", id)
		}
	}
}

func TestUpdate_NewObjectJoinsItsCampaign(t *testing.T) {
	root, store := seedStore(t)
	indexPath := filepath.Join(t.TempDir(), "spatial_index.json")
	b := New(store, indexPath)

	built, _, err := b.Build(context.Background(), Options{Workers: 2})
	require.NoError(t, err)
	require.Equal(t, 3, built.TotalTileCount)

	// One new tile modified after the build, in an existing campaign,
	// and one opening a brand-new campaign.
	future := time.Now().Add(time.Hour)
	newKey := swKey(t, "Brisbane_2019_Prj", -27.4598, 153.0151)
	writeTile(t, root, newKey, future)
	freshKey := swKey(t, "Logan_2021_Prj", -27.6392, 153.1094)
	writeTile(t, root, freshKey, future)

	updated, stats, err := b.Update(context.Background(), built, Options{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Extracted)
	assert.Equal(t, built.TotalTileCount+2, updated.TotalTileCount)

	bris := updated.CampaignByID("Brisbane_2019_Prj_z56")
	require.NotNil(t, bris)
	assert.Equal(t, 3, bris.Campaign.FileCount)
	assert.True(t, bris.Campaign.Bounds.Contains(-27.4598, 153.0151),
		"campaign bounds re-unioned over the new tile")

	fresh := updated.CampaignByID("Logan_2021_Prj_z56")
	require.NotNil(t, fresh, "new grouping key creates a new campaign")
	assert.Equal(t, 1, fresh.Campaign.FileCount)

	require.NoError(t, updated.Validate())
}

func TestBuild_SamplePerRegion(t *testing.T) {
	root := t.TempDir()
	past := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		lat := -27.40 - float64(i)*0.01
		writeTile(t, root, swKey(t, "Brisbane_2019_Prj", lat, 153.02), past)
	}
	store := storage.NewLocalStore(root)
	indexPath := filepath.Join(t.TempDir(), "sample.json")

	idx, stats, err := New(store, indexPath).Build(context.Background(), Options{Workers: 2, SamplePerRegion: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.TotalTileCount, "quota caps the qld stratum")
	assert.Equal(t, 3, stats.Skipped)
}

func TestCheckpointRoundTrip(t *testing.T) {
	_, store := seedStore(t)
	tmp := t.TempDir()
	indexPath := filepath.Join(tmp, "spatial_index.json")

	built, _, err := New(store, indexPath).Build(context.Background(), Options{Workers: 2})
	require.NoError(t, err)

	require.NoError(t, writeCheckpoint(indexPath, built))
	cp, keys, err := loadLatestCheckpoint(indexPath)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, built.TotalTileCount, cp.TotalTileCount)
	assert.Len(t, keys, built.TotalTileCount)

	removeCheckpoints(indexPath)
	cp, _, err = loadLatestCheckpoint(indexPath)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestBuild_ResumeSkipsCheckpointKeys(t *testing.T) {
	_, store := seedStore(t)
	indexPath := filepath.Join(t.TempDir(), "spatial_index.json")
	b := New(store, indexPath)

	// Simulate an interrupted run: a checkpoint holding the full result.
	full, _, err := b.Build(context.Background(), Options{Workers: 2})
	require.NoError(t, err)
	require.NoError(t, writeCheckpoint(indexPath, full))

	idx, stats, err := b.Build(context.Background(), Options{Workers: 2, Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Extracted, "all keys already in the checkpoint")
	assert.Equal(t, full.TotalTileCount, idx.TotalTileCount)
}
