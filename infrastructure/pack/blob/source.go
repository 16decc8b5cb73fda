// Package blob reads prebuilt rule packages from object storage buckets:
// Amazon S3, Google Cloud Storage and Azure Blob Storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	domainpack "github.com/felixgeelhaar/ruleup/domain/pack"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack"
)

// ErrObjectNotFound is returned by a Bucket for a missing object.
var ErrObjectNotFound = errors.New("object not found")

// Bucket is the minimal object storage surface a package source needs.
type Bucket interface {
	// Name identifies the bucket, e.g. "s3://rules".
	Name() string

	// List returns the keys of every object under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Read returns the content of an object.
	Read(ctx context.Context, key string) ([]byte, error)
}

// Source reads a package from a bucket. The prefix is either a single
// package object such as "packages/endpoint.ndjson" or a key prefix whose
// asset objects make up the package.
type Source struct {
	bucket Bucket
	prefix string
}

// New creates a bucket source.
func New(bucket Bucket, prefix string) *Source {
	return &Source{bucket: bucket, prefix: strings.TrimPrefix(prefix, "/")}
}

// Name implements pack.Source.
func (s *Source) Name() string {
	return s.bucket.Name() + "/" + s.prefix
}

// Fetch implements pack.Source.
func (s *Source) Fetch(ctx context.Context) (*domainpack.Pack, error) {
	if pack.IsAssetFile(s.prefix) {
		data, err := s.bucket.Read(ctx, s.prefix)
		if errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", domainpack.ErrPackNotFound, s.Name())
		}
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(path.Base(s.prefix), path.Ext(s.prefix))
		return pack.Build(name, []pack.File{{Name: path.Base(s.prefix), Data: data}})
	}

	keys, err := s.bucket.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	var files []pack.File
	for _, key := range keys {
		if !pack.IsAssetFile(key) {
			continue
		}
		data, err := s.bucket.Read(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
		files = append(files, pack.File{Name: rel, Data: data})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no asset objects under %s", domainpack.ErrPackNotFound, s.Name())
	}
	return pack.Build(s.defaultName(), files)
}

func (s *Source) defaultName() string {
	name := path.Base(strings.TrimSuffix(s.prefix, "/"))
	if name == "." || name == "" {
		return strings.TrimPrefix(s.bucket.Name(), "s3://")
	}
	return name
}

var _ domainpack.Source = (*Source)(nil)
