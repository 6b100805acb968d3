// pkg/warehouse/factory.go
package warehouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/config"
)

// New creates the warehouse selected by the configuration
func New(ctx context.Context, cfg *config.Config) (Warehouse, error) {
	logger := zap.L().Named("warehouse")
	logger.Info("Creating warehouse connection", zap.String("driver", cfg.Warehouse.Driver))

	switch cfg.Warehouse.Driver {
	case config.WarehouseBigQuery:
		w, err := NewBigQuery(ctx, &cfg.BigQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to create BigQuery warehouse: %w", err)
		}
		return w, nil
	case config.WarehousePostgres:
		w, err := NewPostgres(ctx, &cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL warehouse: %w", err)
		}
		return w, nil
	case config.WarehouseSnowflake:
		w, err := NewSnowflake(ctx, &cfg.Snowflake)
		if err != nil {
			return nil, fmt.Errorf("failed to create Snowflake warehouse: %w", err)
		}
		return w, nil
	case config.WarehouseMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported warehouse driver: %s", cfg.Warehouse.Driver)
	}
}
