// pkg/storage/gcs.go
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

// GCS is an ObjectStore backed by Google Cloud Storage
type GCS struct {
	service *gcs.Service
	logger  *zap.Logger
}

// NewGCS creates a Cloud Storage client. Without options the default
// application credentials are used.
func NewGCS(ctx context.Context, opts ...option.ClientOption) (*GCS, error) {
	service, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return &GCS{
		service: service,
		logger:  zap.L().Named("gcs"),
	}, nil
}

// Exists reports whether an object is present
func (g *GCS) Exists(ctx context.Context, bucket, name string) (bool, error) {
	_, err := g.service.Objects.Get(bucket, name).Context(ctx).Do()
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat gs://%s/%s: %w", bucket, name, err)
}

// Read downloads the object media
func (g *GCS) Read(ctx context.Context, bucket, name string) ([]byte, error) {
	resp, err := g.service.Objects.Get(bucket, name).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download gs://%s/%s: %w", bucket, name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, name, err)
	}

	g.logger.Debug("Downloaded object",
		zap.String("bucket", bucket),
		zap.String("name", name),
		zap.Int("bytes", len(data)))
	return data, nil
}

// Write uploads the object, replacing any previous content
func (g *GCS) Write(ctx context.Context, bucket, name, contentType string, data []byte) error {
	obj := &gcs.Object{Name: name, ContentType: contentType}
	_, err := g.service.Objects.Insert(bucket, obj).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload gs://%s/%s: %w", bucket, name, err)
	}

	g.logger.Info("Uploaded object",
		zap.String("bucket", bucket),
		zap.String("name", name),
		zap.Int("bytes", len(data)))
	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
