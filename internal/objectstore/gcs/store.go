package gcs

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/domain"
	"google.golang.org/api/option"
)

// Store uploads objects to one Cloud Storage bucket
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a client from a service account key file, or from
// application default credentials when no file is configured.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required for the gcs backend")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Put streams body to the object named key
func (s *Store) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}

	if _, err := io.Copy(writer, body); err != nil {
		_ = writer.Close()
		return fmt.Errorf("%w: copy to gs://%s/%s: %v", domain.ErrStorage, s.bucket, key, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: close gs://%s/%s: %v", domain.ErrStorage, s.bucket, key, err)
	}
	return nil
}

// Close releases the client
func (s *Store) Close() error {
	return s.client.Close()
}
