package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"shoplake/internal/config"
)

var _ ObjectStore = (*GCSStore)(nil)

// GCSStore uploads lake files to a Google Cloud Storage bucket using a
// service account key file.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

func NewGCSStore(ctx context.Context, cfg *config.Config) (*GCSStore, error) {
	if !cfg.HasGCSConfig() {
		return nil, fmt.Errorf("GCS config is incomplete")
	}

	client, err := gcs.NewClient(ctx, option.WithCredentialsFile(cfg.GCSKeyFile))
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSStore{client: client, bucket: cfg.GCSBucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, body io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit gs://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *GCSStore) Name() string { return "gs://" + s.bucket }

// Close releases the underlying client.
func (s *GCSStore) Close() error { return s.client.Close() }
