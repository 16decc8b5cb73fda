package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureConfig configures an Azure Blob Storage container.
type AzureConfig struct {
	Container        string
	AccountName      string // Azure Storage account name
	AccountKey       string // Optional: storage account key
	ConnectionString string // Optional: full connection string
}

// AzureBucket reads blobs from an Azure container.
type AzureBucket struct {
	client    *azblob.Client
	container string
}

// NewAzureBucket creates an Azure container bucket. Credentials are taken
// from the connection string, then the account key, then the default Azure
// credential chain.
func NewAzureBucket(cfg AzureConfig) (*AzureBucket, error) {
	if cfg.Container == "" {
		return nil, errors.New("azure: container is required")
	}
	if cfg.AccountName == "" && cfg.ConnectionString == "" {
		return nil, errors.New("azure: account name or connection string is required")
	}

	var client *azblob.Client
	var err error
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)

	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		}
	default:
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err == nil {
			client, err = azblob.NewClient(serviceURL, cred, nil)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}
	return &AzureBucket{client: client, container: cfg.Container}, nil
}

// Name implements Bucket.
func (b *AzureBucket) Name() string {
	return "azblob://" + b.container
}

// List implements Bucket.
func (b *AzureBucket) List(ctx context.Context, prefix string) ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}

	var keys []string
	pager := b.client.NewListBlobsFlatPager(b.container, opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blobs: %w", err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	return keys, nil
}

// Read implements Bucket.
func (b *AzureBucket) Read(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("download blob: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

var _ Bucket = (*AzureBucket)(nil)
