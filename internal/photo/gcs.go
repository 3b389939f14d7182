package photo

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS uploads photos to a Google Cloud Storage bucket that serves objects
// publicly.
type GCS struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCS opens a storage client.  credentialsFile may be empty to use
// Application Default Credentials.  baseURL defaults to
// https://storage.googleapis.com.
func NewGCS(ctx context.Context, bucket, credentialsFile, baseURL string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com"
	}
	return &GCS{client: c, bucket: bucket, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Upload implements Uploader.
func (g *GCS) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	w := g.client.Bucket(g.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", objectPath, err)
	}
	return g.baseURL + "/" + g.bucket + "/" + objectPath, nil
}

// Close releases the storage client.
func (g *GCS) Close() error { return g.client.Close() }
