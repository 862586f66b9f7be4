package storage

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"
)

// LocalStore serves rasters from a directory tree. Development and test
// use only; keys are slash-separated paths relative to the root.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (l *LocalStore) Bucket() string { return l.root }

func (l *LocalStore) List(ctx context.Context, fn func(ObjectRef) error) error {
	return l.list(ctx, time.Time{}, fn)
}

func (l *LocalStore) ListSince(ctx context.Context, since time.Time, fn func(ObjectRef) error) error {
	return l.list(ctx, since, fn)
}

func (l *LocalStore) list(ctx context.Context, since time.Time, fn func(ObjectRef) error) error {
	return filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !IsRasterKey(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !since.IsZero() && !info.ModTime().After(since) {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		return fn(ObjectRef{
			Key:          filepath.ToSlash(rel),
			SizeBytes:    info.Size(),
			LastModified: info.ModTime(),
		})
	})
}

func (l *LocalStore) RasterPath(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}
