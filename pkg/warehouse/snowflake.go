// pkg/warehouse/snowflake.go
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/config"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/converter"
)

// Snowflake implements Warehouse on Snowflake. Datasets map to schemas of the
// configured database.
type Snowflake struct {
	sqlBackend
	cfg *config.SnowflakeConfig
}

// NewSnowflake creates a new Snowflake warehouse connection
func NewSnowflake(ctx context.Context, cfg *config.SnowflakeConfig) (*Snowflake, error) {
	logger := zap.L().Named("snowflake-warehouse")

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := cfg.ConnectionString()
	if err != nil {
		return nil, err
	}

	db, err := openSQL(ctx, "snowflake", dsn, Pool{
		MaxOpen:     cfg.MaxOpenConns,
		MaxIdle:     cfg.MaxIdleConns,
		MaxLifetime: cfg.ConnMaxLifetime,
		MaxIdleTime: cfg.ConnMaxIdleTime,
	}, 10*time.Second, logger)
	if err != nil {
		return nil, err
	}

	w := newSnowflake(db, cfg, logger)
	return w, nil
}

func newSnowflake(db *sqlx.DB, cfg *config.SnowflakeConfig, logger *zap.Logger) *Snowflake {
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Snowflake{
		sqlBackend: sqlBackend{
			db:        db,
			conv:      converter.NewTypeConverter(converter.DialectSnowflake),
			logger:    logger,
			database:  cfg.Database,
			timeout:   timeout,
			batchSize: defaultBatchSize,
		},
		cfg: cfg,
	}
}

// Validate verifies the Snowflake session points at the configured database
func (s *Snowflake) Validate(ctx context.Context) error {
	var role, database, warehouse sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	s.logger.Info("Connected to Snowflake",
		zap.String("role", role.String),
		zap.String("database", database.String),
		zap.String("warehouse", warehouse.String))

	if database.String != s.cfg.Database {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database.String, s.cfg.Database)
	}
	return nil
}
