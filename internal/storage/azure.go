package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"shoplake/internal/config"
)

var _ ObjectStore = (*AzureStore)(nil)

// AzureStore uploads lake files to an Azure Blob Storage container using
// shared-key credentials.
type AzureStore struct {
	client    *azblob.Client
	container string
}

func NewAzureStore(cfg *config.Config) (*AzureStore, error) {
	if !cfg.HasAzureConfig() {
		return nil, fmt.Errorf("Azure config is incomplete")
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AzureAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}

	return &AzureStore{client: client, container: cfg.AzureContainer}, nil
}

func (s *AzureStore) Put(ctx context.Context, key string, body io.Reader) error {
	if _, err := s.client.UploadStream(ctx, s.container, key, body, nil); err != nil {
		return fmt.Errorf("upload blob %s/%s: %w", s.container, key, err)
	}
	return nil
}

func (s *AzureStore) Name() string { return "az://" + s.container }
