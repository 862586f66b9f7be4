package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store lists rasters from an S3 bucket and exposes them to GDAL via
// /vsis3/ virtual paths, so header reads never transfer pixel data.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a store over the given bucket. anonymous selects
// unsigned requests for public buckets (the NZ open-data bucket).
func NewS3Store(ctx context.Context, bucket, region string, anonymous bool) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if anonymous {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (s *S3Store) Bucket() string { return s.bucket }

func (s *S3Store) List(ctx context.Context, fn func(ObjectRef) error) error {
	return s.list(ctx, time.Time{}, fn)
}

func (s *S3Store) ListSince(ctx context.Context, since time.Time, fn func(ObjectRef) error) error {
	return s.list(ctx, since, fn)
}

func (s *S3Store) list(ctx context.Context, since time.Time, fn func(ObjectRef) error) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})

	var pages, objects int
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list s3://%s page %d: %w", s.bucket, pages+1, err)
		}
		pages++
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !IsRasterKey(key) {
				continue
			}
			modified := aws.ToTime(obj.LastModified)
			if !since.IsZero() && !modified.After(since) {
				continue
			}
			objects++
			ref := ObjectRef{
				Key:          key,
				SizeBytes:    aws.ToInt64(obj.Size),
				LastModified: modified,
			}
			if err := fn(ref); err != nil {
				return err
			}
		}
	}
	slog.Info("s3 listing complete", "bucket", s.bucket, "pages", pages, "rasters", objects)
	return nil
}

// RasterPath returns the GDAL /vsis3/ virtual path for a key.
func (s *S3Store) RasterPath(key string) string {
	return "/vsis3/" + s.bucket + "/" + key
}
