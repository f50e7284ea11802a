//go:build gcp

package catalog

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSSource reads a catalog object from Google Cloud Storage.
type GCSSource struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCSSource builds a source using application default credentials.
func NewGCSSource(ctx context.Context, bucket, object string) (*GCSSource, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSSource{client: client, bucket: bucket, object: object}, nil
}

func (s *GCSSource) Fetch(ctx context.Context) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs read failed: %w", err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (s *GCSSource) String() string { return "gs://" + s.bucket + "/" + s.object }

func newGCSSource(ctx context.Context, bucket, object string) (Source, error) {
	return NewGCSSource(ctx, bucket, object)
}
