// Package builder constructs and incrementally updates the spatial index
// from object storage. A bounded worker pool extracts tile metadata in
// parallel; a single consumer owns every mutation of the in-progress
// index and flushes periodic checkpoints so interrupted runs resume.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/road-engineering/dem-elevation/internal/extractor"
	"github.com/road-engineering/dem-elevation/internal/index"
	"github.com/road-engineering/dem-elevation/internal/storage"
)

// Defaults; both are overridable from the environment.
const (
	DefaultWorkers            = 32
	DefaultCheckpointInterval = 10_000
)

// maxStratumFailureRate aborts a run when any sampled region bucket
// fails this share of its extractions.
const maxStratumFailureRate = 0.10

// Exit classification for the builder binary.
var (
	// ErrValidationFailed maps to exit code 1.
	ErrValidationFailed = errors.New("index validation failed")
	// ErrCritical maps to exit code 2.
	ErrCritical = errors.New("critical builder failure")
)

// Builder drives a build or update against one object store.
type Builder struct {
	store              storage.ObjectStore
	extractor          *extractor.Extractor
	workers            int
	checkpointInterval int
	indexPath          string
}

// Options configure one run.
type Options struct {
	// Workers sets pool size; zero selects the default.
	Workers int
	// CheckpointInterval sets tiles between checkpoint flushes; zero
	// selects the default.
	CheckpointInterval int
	// SamplePerRegion limits extraction to N keys per detected region,
	// for validating recognition rules before a full rebuild.
	SamplePerRegion int
	// Resume loads the most recent checkpoint and skips its keys.
	Resume bool
}

// Stats summarizes a completed run.
type Stats struct {
	Enumerated        int
	Extracted         int
	FailedExtractions int
	Skipped           int
	Elapsed           time.Duration
}

func New(store storage.ObjectStore, indexPath string) *Builder {
	return &Builder{
		store:              store,
		extractor:          extractor.New(store),
		workers:            DefaultWorkers,
		checkpointInterval: DefaultCheckpointInterval,
		indexPath:          indexPath,
	}
}

type extractResult struct {
	entry index.TileEntry
	key   string
	err   error
}

// Build runs a full build and atomically replaces the index file. The
// previous index keeps serving until the new one validates; a failed
// validation leaves the output under a .rejected suffix.
func (b *Builder) Build(ctx context.Context, opts Options) (*index.SpatialIndex, Stats, error) {
	return b.run(ctx, opts, nil)
}

// Update applies an incremental update: only objects modified after the
// existing index's generated_at are extracted and merged.
func (b *Builder) Update(ctx context.Context, existing *index.SpatialIndex, opts Options) (*index.SpatialIndex, Stats, error) {
	if existing == nil {
		return nil, Stats{}, fmt.Errorf("%w: update requires an existing index", ErrCritical)
	}
	return b.run(ctx, opts, existing)
}

func (b *Builder) run(ctx context.Context, opts Options, existing *index.SpatialIndex) (*index.SpatialIndex, Stats, error) {
	start := time.Now()
	workers := opts.Workers
	if workers <= 0 {
		workers = b.workers
	}
	checkpointEvery := opts.CheckpointInterval
	if checkpointEvery <= 0 {
		checkpointEvery = b.checkpointInterval
	}

	merger := newMerger(b.store.Bucket(), existing)

	// Resume: seed the merger from the newest checkpoint and skip its
	// keys during enumeration.
	doneKeys := make(map[string]bool)
	if opts.Resume {
		cp, keys, err := loadLatestCheckpoint(b.indexPath)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("%w: load checkpoint: %v", ErrCritical, err)
		}
		if cp != nil {
			merger.adopt(cp)
			doneKeys = keys
			slog.Info("resuming from checkpoint", "tiles", len(keys))
		}
	}

	// Enumerate up front; the sampler and the failure-rate policy both
	// need the stratified key sets.
	refs, stats, err := b.enumerate(ctx, existing, doneKeys, opts.SamplePerRegion)
	if err != nil {
		return nil, stats, err
	}
	slog.Info("enumeration complete",
		"keys", humanize.Comma(int64(stats.Enumerated)),
		"to_extract", humanize.Comma(int64(len(refs))),
		"skipped", humanize.Comma(int64(stats.Skipped)),
	)

	jobs := make(chan storage.ObjectRef, workers*4)
	results := make(chan extractResult, workers*4)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				entry, err := b.extractor.Extract(ctx, ref)
				results <- extractResult{entry: entry, key: ref.Key, err: err}
			}
		}()
	}

	// Producer. The bounded jobs channel applies back-pressure; on
	// cancellation in-flight workers finish their current object.
	go func() {
		defer close(jobs)
		for _, ref := range refs {
			select {
			case jobs <- ref:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single consumer: owns all index mutation and checkpointing.
	failuresByRegion := make(map[string]int)
	totalByRegion := make(map[string]int)
	sinceCheckpoint := 0
	for res := range results {
		region := extractor.DetectRegion(res.key)
		totalByRegion[region]++
		if res.err != nil {
			stats.FailedExtractions++
			failuresByRegion[region]++
			slog.Warn("extraction failed", "key", res.key, "error", res.err)
			continue
		}
		merger.add(res.entry)
		stats.Extracted++
		sinceCheckpoint++

		if sinceCheckpoint >= checkpointEvery {
			sinceCheckpoint = 0
			if err := writeCheckpoint(b.indexPath, merger.snapshot()); err != nil {
				slog.Error("checkpoint write failed", "error", err)
			} else {
				slog.Info("checkpoint written",
					"tiles", humanize.Comma(int64(merger.tileCount())))
			}
		}
	}

	if err := ctx.Err(); err != nil {
		// Interrupted: flush a final checkpoint for resume, then stop.
		if cpErr := writeCheckpoint(b.indexPath, merger.snapshot()); cpErr != nil {
			slog.Error("final checkpoint write failed", "error", cpErr)
		}
		stats.Elapsed = time.Since(start)
		return nil, stats, err
	}

	for region, failed := range failuresByRegion {
		total := totalByRegion[region]
		if total >= 10 && float64(failed)/float64(total) > maxStratumFailureRate {
			return nil, stats, fmt.Errorf("%w: region %s failed %d/%d extractions",
				ErrCritical, region, failed, total)
		}
	}

	idx := merger.finalize()
	stats.Elapsed = time.Since(start)

	if err := idx.Validate(); err != nil {
		rejected := b.indexPath + ".rejected"
		if saveErr := index.Save(idx, rejected); saveErr != nil {
			slog.Error("could not save rejected index", "error", saveErr)
		}
		return nil, stats, fmt.Errorf("%w: %v (output kept at %s)", ErrValidationFailed, err, rejected)
	}

	if err := index.Save(idx, b.indexPath); err != nil {
		return nil, stats, fmt.Errorf("%w: save index: %v", ErrCritical, err)
	}
	removeCheckpoints(b.indexPath)

	slog.Info("index build complete",
		"tiles", humanize.Comma(int64(idx.TotalTileCount)),
		"extracted", humanize.Comma(int64(stats.Extracted)),
		"failed", stats.FailedExtractions,
		"elapsed", stats.Elapsed.Round(time.Second),
	)
	return idx, stats, nil
}

// enumerate lists candidate keys, applying the incremental filter, the
// done-key subtraction and the optional per-region sampling quota.
func (b *Builder) enumerate(ctx context.Context, existing *index.SpatialIndex, doneKeys map[string]bool, samplePerRegion int) ([]storage.ObjectRef, Stats, error) {
	var stats Stats
	var refs []storage.ObjectRef
	perRegion := make(map[string]int)

	collect := func(ref storage.ObjectRef) error {
		stats.Enumerated++
		if doneKeys[ref.Key] {
			stats.Skipped++
			return nil
		}
		if samplePerRegion > 0 {
			region := extractor.DetectRegion(ref.Key)
			if perRegion[region] >= samplePerRegion {
				stats.Skipped++
				return nil
			}
			perRegion[region]++
		}
		refs = append(refs, ref)
		return nil
	}

	var err error
	if existing != nil {
		err = b.store.ListSince(ctx, existing.GeneratedAt, collect)
	} else {
		err = b.store.List(ctx, collect)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("%w: enumerate bucket: %v", ErrCritical, err)
	}
	return refs, stats, nil
}
