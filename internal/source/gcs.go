package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS reads objects through a shared storage client.
type GCS struct {
	client *storage.Client
}

// NewGCS creates a client using application default credentials.
func NewGCS(ctx context.Context) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client}, nil
}

func (g *GCS) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	return r, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

// NeedsGCS reports whether any location is a Cloud Storage object.
func NeedsGCS(locations ...string) bool {
	for _, l := range locations {
		if strings.HasPrefix(strings.TrimSpace(l), "gs://") {
			return true
		}
	}
	return false
}
