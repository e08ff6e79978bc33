package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const archiveTimeLayout = "20060102T150405Z"

// Archive stores raw feed bodies in an S3-compatible bucket.
type Archive struct {
	client *minio.Client
	bucket string
	region string
	now    func() time.Time
}

// NewArchive creates an Archive for the given S3 endpoint and bucket.
func NewArchive(endpoint, accessKey, secretKey, bucket, region string, useSSL bool) (*Archive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Archive{
		client: client,
		bucket: bucket,
		region: region,
		now:    time.Now,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Store uploads the body of feed and returns its object key.
func (a *Archive) Store(ctx context.Context, supplier string, feed *Feed) (string, error) {
	key := ArchiveKey(supplier, a.now(), feed.Extension())
	contentType := feed.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(feed.Body), int64(len(feed.Body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload feed: %w", err)
	}
	return key, nil
}

// ArchiveKey returns the object key of a feed snapshot: <supplier>/<UTC timestamp>.<ext>.
func ArchiveKey(supplier string, t time.Time, ext string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(strings.TrimSpace(supplier))
	return fmt.Sprintf("%s/%s.%s", name, t.UTC().Format(archiveTimeLayout), ext)
}
