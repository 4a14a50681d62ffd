package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves listings from pages and records writes; methods the tests
// never reach fall through to the nil embedded interface.
type fakeS3 struct {
	s3API
	pages   [][]types.Object
	headErr error
	created []string
	deleted [][]types.ObjectIdentifier
	puts    map[string]string
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, aws.ToString(in.Bucket))
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if in.ContinuationToken != nil {
		page, _ = strconv.Atoi(*in.ContinuationToken)
	}
	out := &s3.ListObjectsV2Output{Contents: f.pages[page]}
	if page+1 < len(f.pages) {
		out.IsTruncated = true
		out.NextContinuationToken = aws.String(strconv.Itoa(page + 1))
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deleted = append(f.deleted, in.Delete.Objects)
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	if _, err := io.Copy(io.Discard, in.Body); err != nil {
		return nil, err
	}
	f.puts[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func objectsAt(prefix string, n int, modified time.Time) []types.Object {
	out := make([]types.Object, n)
	for i := range out {
		out[i] = types.Object{Key: aws.String(fmt.Sprintf("%s%04d.xlsx", prefix, i)), LastModified: aws.Time(modified)}
	}
	return out
}

func TestS3Storage_DeleteOlderThan(t *testing.T) {
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	fake := &fakeS3{pages: [][]types.Object{
		objectsAt("exports/a", 800, old),
		append(objectsAt("exports/b", 700, old), objectsAt("exports/c", 5, now)...),
	}}
	s := newS3Storage(fake, "bucket", "us-east-1", discardLogger())

	n, err := s.DeleteOlderThan(context.Background(), "exports/", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1500, n)

	require.Len(t, fake.deleted, 2)
	assert.Len(t, fake.deleted[0], deleteBatch)
	assert.Len(t, fake.deleted[1], 500)
	for _, id := range fake.deleted[1] {
		assert.False(t, strings.HasPrefix(aws.ToString(id.Key), "exports/c"))
	}
}

func TestS3Storage_EnsureBucket(t *testing.T) {
	fake := &fakeS3{}
	require.NoError(t, newS3Storage(fake, "bucket", "eu-west-1", discardLogger()).ensureBucket(context.Background()))
	assert.Empty(t, fake.created)

	fake.headErr = errors.New("not found")
	require.NoError(t, newS3Storage(fake, "bucket", "eu-west-1", discardLogger()).ensureBucket(context.Background()))
	assert.Equal(t, []string{"bucket"}, fake.created)
}

func TestS3Storage_UploadDetectsContentType(t *testing.T) {
	fake := &fakeS3{}
	s := newS3Storage(fake, "bucket", "us-east-1", discardLogger())
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "imports/delivery.pdf", strings.NewReader("x"), ""))
	require.NoError(t, s.Upload(ctx, "exports/raw", strings.NewReader("x"), ""))
	require.NoError(t, s.Upload(ctx, "exports/data.json", strings.NewReader("{}"), "application/json"))

	assert.Equal(t, "application/pdf", fake.puts["imports/delivery.pdf"])
	assert.Equal(t, "application/octet-stream", fake.puts["exports/raw"])
	assert.Equal(t, "application/json", fake.puts["exports/data.json"])

	_, err := s.GetPresignedURL(ctx, "exports/raw", time.Minute)
	assert.Error(t, err)
}
