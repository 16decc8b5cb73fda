package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig configures a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string // Optional: path to a service account JSON file
	Endpoint        string // Optional: emulator endpoint
}

// GCSBucket reads objects from a GCS bucket.
type GCSBucket struct {
	client *gcs.Client
	bucket string
}

// NewGCSBucket creates a GCS bucket from configuration.
func NewGCSBucket(ctx context.Context, cfg GCSConfig) (*GCSBucket, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSBucket{client: client, bucket: cfg.Bucket}, nil
}

// Name implements Bucket.
func (b *GCSBucket) Name() string {
	return "gs://" + b.bucket
}

// Close releases the client.
func (b *GCSBucket) Close() error {
	return b.client.Close()
}

// List implements Bucket.
func (b *GCSBucket) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
}

// Read implements Bucket.
func (b *GCSBucket) Read(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

var _ Bucket = (*GCSBucket)(nil)
