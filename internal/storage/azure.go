package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureConfig holds Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Endpoint    string `mapstructure:"endpoint"` // defaults to https://<account>.blob.core.windows.net/
}

// AzureStore reads blobs from one container
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore creates a store for container
func NewAzureStore(cfg AzureConfig, container string) (*AzureStore, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("account name is required")
	}

	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	}

	var client *azblob.Client
	var err error
	if cfg.AccountKey == "" {
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	} else {
		credential, credErr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &AzureStore{client: client, container: container}, nil
}

func (s *AzureStore) Name() string { return "az://" + s.container }

// Read downloads a blob
func (s *AzureStore) Read(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob data: %w", err)
	}
	return data, nil
}

// List pages through a flat blob listing
func (s *AzureStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	listPrefix := dirPrefix(prefix)
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &listPrefix,
	})

	objects := make([]ObjectInfo, 0)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := ObjectInfo{Key: *item.Name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					info.ModTime = *item.Properties.LastModified
				}
			}
			objects = append(objects, info)
		}
	}

	sortObjects(objects)
	return objects, nil
}

// Exists fetches blob properties
func (s *AzureStore) Exists(ctx context.Context, key string) (bool, error) {
	blob := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)
	_, err := blob.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to get blob properties: %w", err)
}
