// internal/adapters/storage/s3.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ammerola/stockflow/internal/core/ports"
)

// deleteBatch is the DeleteObjects per-call key limit
const deleteBatch = 1000

// Pruner removes stored objects under a prefix that are older than a cutoff
type Pruner interface {
	DeleteOlderThan(ctx context.Context, prefix string, before time.Time) (int, error)
}

var (
	_ ports.ObjectStorage = (*S3Storage)(nil)
	_ Pruner              = (*S3Storage)(nil)
)

// s3API is the part of the S3 client the storage uses
type s3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Storage stores report exports in a bucket
type S3Storage struct {
	api      s3API
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
	region   string
	logger   *slog.Logger
}

// S3Config holds S3 configuration. Endpoint and UsePathStyle target MinIO
// or LocalStack.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
}

// NewS3Storage connects to the bucket, creating it when missing
func NewS3Storage(ctx context.Context, cfg *S3Config, logger *slog.Logger) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.EndpointResolver = s3.EndpointResolverFromURL(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	s := newS3Storage(client, cfg.Bucket, cfg.Region, logger)
	s.presign = s3.NewPresignClient(client)

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	s.logger.Info("s3 storage ready", slog.String("bucket", cfg.Bucket), slog.String("region", cfg.Region))
	return s, nil
}

func newS3Storage(api s3API, bucket, region string, logger *slog.Logger) *S3Storage {
	return &S3Storage{
		api:      api,
		uploader: manager.NewUploader(api),
		bucket:   bucket,
		region:   region,
		logger:   logger.With(slog.String("storage", "s3"), slog.String("bucket", bucket)),
	}
}

func (s *S3Storage) ensureBucket(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	// us-east-1 rejects an explicit location constraint
	if s.region != "" && s.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.api.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("bucket %s is missing and could not be created: %w", s.bucket, err)
	}
	s.logger.Info("bucket created")
	return nil
}

// Upload streams data to key, detecting the content type from the key's
// extension when none is given
func (s *S3Storage) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"uploaded-at": time.Now().UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "object uploaded", slog.String("key", key))
	return nil
}

// GetPresignedURL returns a download link valid for ttl
func (s *S3Storage) GetPresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.presign == nil {
		return "", errors.New("presigning is not configured")
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// DeleteOlderThan removes objects under prefix last modified before the cutoff
func (s *S3Storage) DeleteOlderThan(ctx context.Context, prefix string, before time.Time) (int, error) {
	stale, err := s.staleKeys(ctx, prefix, before)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for len(stale) > 0 {
		n := min(deleteBatch, len(stale))
		_, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: stale[:n], Quiet: true},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete objects: %w", err)
		}
		deleted += n
		stale = stale[n:]
	}

	if deleted > 0 {
		s.logger.InfoContext(ctx, "stale objects deleted", slog.String("prefix", prefix), slog.Int("count", deleted))
	}
	return deleted, nil
}

func (s *S3Storage) staleKeys(ctx context.Context, prefix string, before time.Time) ([]types.ObjectIdentifier, error) {
	var stale []types.ObjectIdentifier
	pages := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(before) {
				stale = append(stale, types.ObjectIdentifier{Key: obj.Key})
			}
		}
	}
	return stale, nil
}

func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
