// pkg/storage/factory.go
package storage

import (
	"context"
	"fmt"

	"google.golang.org/api/option"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/config"
)

// New creates the object store selected by the configuration
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case config.StorageGCS:
		var opts []option.ClientOption
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		}
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		return NewGCS(ctx, opts...)
	case config.StorageLocal:
		return NewLocal(cfg.LocalRoot)
	case config.StorageMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
