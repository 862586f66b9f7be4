// index-builder builds, updates and validates the DEM spatial index.
//
// Usage:
//
//	index-builder build    --bucket my-bucket --index config/spatial_index.json
//	index-builder update   --bucket my-bucket --index config/spatial_index.json
//	index-builder validate --index config/spatial_index.json
//	index-builder sample   --bucket my-bucket --per-region 50
//
// Exit codes: 0 success, 1 structural problems, 2 critical failures,
// 3 usage errors or interrupt.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/road-engineering/dem-elevation/internal/builder"
	"github.com/road-engineering/dem-elevation/internal/config"
	"github.com/road-engineering/dem-elevation/internal/index"
	"github.com/road-engineering/dem-elevation/internal/storage"
)

const (
	exitOK         = 0
	exitStructural = 1
	exitCritical   = 2
	exitUsage      = 3
)

var (
	flagBucket    string
	flagRegion    string
	flagAnonymous bool
	flagLocalDir  string
	flagIndex     string
	flagWorkers   int
	flagInterval  int
	flagPerRegion int
	flagResume    bool
)

func main() {
	root := &cobra.Command{
		Use:           "index-builder",
		Short:         "Build and maintain the DEM spatial index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagBucket, "bucket", "", "object storage bucket")
	root.PersistentFlags().StringVar(&flagRegion, "region", "ap-southeast-2", "bucket region")
	root.PersistentFlags().BoolVar(&flagAnonymous, "anonymous", false, "unsigned bucket access")
	root.PersistentFlags().StringVar(&flagLocalDir, "local-dir", "", "use a local directory instead of S3")
	root.PersistentFlags().StringVar(&flagIndex, "index", "config/spatial_index.json", "index file path")
	root.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "extraction worker pool size")
	root.PersistentFlags().IntVar(&flagInterval, "checkpoint-interval", 0, "tiles between checkpoints")

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Full rebuild from object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), false)
		},
	}
	buildCmd.Flags().BoolVar(&flagResume, "resume", false, "resume from the latest checkpoint")

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Incremental update from object last-modified timestamps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), true)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the index file structure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}

	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Extract a stratified per-region sample for rule validation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(cmd.Context())
		},
	}
	sampleCmd.Flags().IntVar(&flagPerRegion, "per-region", 50, "keys per region bucket")

	root.AddCommand(buildCmd, updateCmd, validateCmd, sampleCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(ctx, err))
	}
}

func exitCode(ctx context.Context, err error) int {
	switch {
	case ctx.Err() != nil:
		return exitUsage
	case errors.Is(err, builder.ErrValidationFailed):
		return exitStructural
	case errors.Is(err, builder.ErrCritical),
		errors.Is(err, index.ErrSchemaMismatch),
		errors.Is(err, index.ErrStructural):
		return exitCritical
	default:
		return exitUsage
	}
}

func newStore(ctx context.Context) (storage.ObjectStore, error) {
	if flagLocalDir != "" {
		return storage.NewLocalStore(flagLocalDir), nil
	}
	if flagBucket == "" {
		return nil, fmt.Errorf("--bucket or --local-dir is required")
	}
	return storage.NewS3Store(ctx, flagBucket, flagRegion, flagAnonymous)
}

func buildOptions() builder.Options {
	cfg, err := config.Load()
	opts := builder.Options{Workers: flagWorkers, CheckpointInterval: flagInterval, Resume: flagResume}
	if err == nil {
		if opts.Workers == 0 {
			opts.Workers = cfg.Builder.Workers
		}
		if opts.CheckpointInterval == 0 {
			opts.CheckpointInterval = cfg.Builder.CheckpointInterval
		}
	}
	return opts
}

func runBuild(ctx context.Context, incremental bool) error {
	store, err := newStore(ctx)
	if err != nil {
		return err
	}
	b := builder.New(store, flagIndex)
	opts := buildOptions()

	var idx *index.SpatialIndex
	var stats builder.Stats
	if incremental {
		existing, err := index.Load(flagIndex)
		if err != nil {
			return err
		}
		idx, stats, err = b.Update(ctx, existing, opts)
		if err != nil {
			return err
		}
	} else {
		idx, stats, err = b.Build(ctx, opts)
		if err != nil {
			return err
		}
	}

	fmt.Printf("Index written: %s\n", flagIndex)
	fmt.Printf("  Tiles:      %s\n", humanize.Comma(int64(idx.TotalTileCount)))
	fmt.Printf("  Extracted:  %s\n", humanize.Comma(int64(stats.Extracted)))
	fmt.Printf("  Failed:     %d\n", stats.FailedExtractions)
	fmt.Printf("  Elapsed:    %s\n", stats.Elapsed.Round(time.Second))
	return nil
}

func runValidate() error {
	idx, err := index.Load(flagIndex)
	if err != nil {
		return err
	}
	fmt.Printf("Index OK: %s tiles across %d collections\n",
		humanize.Comma(int64(idx.TotalTileCount)), len(idx.Collections))
	return nil
}

// runSample extracts a stratified cross-section without touching the
// serving index: output goes beside it under a .sample suffix.
func runSample(ctx context.Context) error {
	store, err := newStore(ctx)
	if err != nil {
		return err
	}
	samplePath := flagIndex + ".sample"
	b := builder.New(store, samplePath)
	opts := buildOptions()
	opts.SamplePerRegion = flagPerRegion

	idx, stats, err := b.Build(ctx, opts)
	if err != nil {
		return err
	}

	slog.Info("sample build complete", "path", samplePath)
	fmt.Printf("Sample written: %s (%s tiles, %d failures)\n",
		samplePath, humanize.Comma(int64(idx.TotalTileCount)), stats.FailedExtractions)
	return nil
}
