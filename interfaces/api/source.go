package api

import (
	"context"
	"fmt"

	domainconfig "github.com/felixgeelhaar/ruleup/domain/config"
	"github.com/felixgeelhaar/ruleup/domain/pack"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack/blob"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack/filesystem"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack/gitrepo"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack/kubernetes"
	"github.com/felixgeelhaar/ruleup/infrastructure/resilience"
)

// newSource builds the configured package source. Remote sources are
// wrapped in the resilience executor; the local directory is read as is.
func newSource(ctx context.Context, cfg domainconfig.PackageConfig, rc domainconfig.ResilienceConfig) (pack.Source, closeFunc, error) {
	var (
		src    pack.Source
		closer closeFunc
	)

	switch cfg.Source {
	case "", domainconfig.SourceFilesystem:
		return filesystem.New(cfg.Filesystem.Dir), nil, nil

	case domainconfig.SourceGit:
		s, err := gitrepo.New(gitrepo.Config{
			URL:      cfg.Git.URL,
			Ref:      cfg.Git.Ref,
			Path:     cfg.Git.Path,
			CloneDir: cfg.Git.CloneDir,
		})
		if err != nil {
			return nil, nil, err
		}
		src = s

	case domainconfig.SourceS3:
		b, err := blob.NewS3Bucket(ctx, blob.S3Config{
			Bucket:          cfg.Blob.Bucket,
			Region:          cfg.Blob.Region,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretAccessKey,
			Endpoint:        cfg.Blob.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		src = blob.New(b, cfg.Blob.Prefix)

	case domainconfig.SourceGCS:
		b, err := blob.NewGCSBucket(ctx, blob.GCSConfig{
			Bucket:          cfg.Blob.Bucket,
			CredentialsFile: cfg.Blob.CredentialsFile,
			Endpoint:        cfg.Blob.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		src = blob.New(b, cfg.Blob.Prefix)
		closer = func(context.Context) error { return b.Close() }

	case domainconfig.SourceAzure:
		b, err := blob.NewAzureBucket(blob.AzureConfig{
			Container:        cfg.Blob.Bucket,
			AccountName:      cfg.Blob.AccountName,
			AccountKey:       cfg.Blob.AccountKey,
			ConnectionString: cfg.Blob.ConnectionString,
		})
		if err != nil {
			return nil, nil, err
		}
		src = blob.New(b, cfg.Blob.Prefix)

	case domainconfig.SourceKubernetes:
		s, err := kubernetes.NewFromConfig(kubernetes.Config{
			Namespace:     cfg.Kubernetes.Namespace,
			LabelSelector: cfg.Kubernetes.LabelSelector,
			Kubeconfig:    cfg.Kubernetes.Kubeconfig,
		})
		if err != nil {
			return nil, nil, err
		}
		src = s

	default:
		return nil, nil, fmt.Errorf("%w: package source %q", domainconfig.ErrValidationFailed, cfg.Source)
	}

	return resilience.NewSource(src, resilience.FromConfig(rc)), closer, nil
}
