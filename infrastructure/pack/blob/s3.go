package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Bucket.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures an S3 bucket.
type S3Config struct {
	Bucket          string
	Region          string // AWS region (default: us-east-1)
	AccessKeyID     string // Optional: uses the default credential chain if empty
	SecretAccessKey string
	Endpoint        string // Optional: custom endpoint for S3-compatible storage
}

// S3Bucket reads objects from an S3 bucket.
type S3Bucket struct {
	client S3API
	bucket string
}

// NewS3Bucket creates an S3 bucket from configuration.
func NewS3Bucket(ctx context.Context, cfg S3Config) (*S3Bucket, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewS3BucketWithAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket), nil
}

// NewS3BucketWithAPI creates an S3 bucket on any S3API implementation.
func NewS3BucketWithAPI(client S3API, bucket string) *S3Bucket {
	return &S3Bucket{client: client, bucket: bucket}
}

// Name implements Bucket.
func (b *S3Bucket) Name() string {
	return "s3://" + b.bucket
}

// List implements Bucket.
func (b *S3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Read implements Bucket.
func (b *S3Bucket) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

var _ Bucket = (*S3Bucket)(nil)
