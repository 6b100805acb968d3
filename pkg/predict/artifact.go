// pkg/predict/artifact.go
package predict

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
)

// SaveArtifact uploads v as a JSON object
func SaveArtifact(ctx context.Context, store storage.ObjectStore, bucket, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact %s: %w", name, err)
	}
	if err := store.Write(ctx, bucket, name, storage.ContentTypeJSON, data); err != nil {
		return fmt.Errorf("failed to upload artifact %s: %w", name, err)
	}
	return nil
}

func loadArtifact(ctx context.Context, store storage.ObjectStore, bucket, name string, v interface{}) error {
	data, err := store.Read(ctx, bucket, name)
	if err != nil {
		return fmt.Errorf("failed to download artifact gs://%s/%s: %w", bucket, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidModel, name, err)
	}
	return nil
}

// LoadClusterModel downloads and validates a cluster model artifact
func LoadClusterModel(ctx context.Context, store storage.ObjectStore, bucket, name string) (*ClusterModel, error) {
	m := &ClusterModel{}
	if err := loadArtifact(ctx, store, bucket, name, m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// LoadDemandModel downloads and validates a demand model artifact
func LoadDemandModel(ctx context.Context, store storage.ObjectStore, bucket, name string) (*DemandModel, error) {
	m := &DemandModel{}
	if err := loadArtifact(ctx, store, bucket, name, m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}
