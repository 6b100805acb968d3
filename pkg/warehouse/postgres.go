// pkg/warehouse/postgres.go
package warehouse

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/config"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/converter"
)

// postgresColumnsQuery also reads the element type of array columns
const postgresColumnsQuery = `
	SELECT column_name AS "column_name",
	       data_type AS "data_type",
	       is_nullable AS "is_nullable",
	       numeric_scale AS "numeric_scale",
	       udt_name AS "udt_name"
	FROM information_schema.columns
	WHERE table_schema = ? AND table_name = ?
	ORDER BY ordinal_position
`

// Postgres implements Warehouse on PostgreSQL. Datasets map to schemas.
type Postgres struct {
	sqlBackend
	cfg *config.PostgresConfig
}

// NewPostgres creates and initializes a PostgreSQL warehouse
func NewPostgres(ctx context.Context, cfg *config.PostgresConfig) (*Postgres, error) {
	logger := zap.L().Named("postgres-warehouse")

	// Log connection attempt
	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := openSQL(ctx, "pgx", cfg.ConnectionString(), Pool{
		MaxOpen:     cfg.MaxOpenConns,
		MaxIdle:     cfg.MaxIdleConns,
		MaxLifetime: cfg.ConnMaxLifetime,
		MaxIdleTime: cfg.ConnMaxIdleTime,
	}, 5*time.Second, logger)
	if err != nil {
		return nil, err
	}

	w := newPostgres(db, cfg, logger)
	return w, nil
}

func newPostgres(db *sqlx.DB, cfg *config.PostgresConfig, logger *zap.Logger) *Postgres {
	timeout := cfg.StatementTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Postgres{
		sqlBackend: sqlBackend{
			db:           db,
			conv:         converter.NewTypeConverter(converter.DialectPostgres),
			logger:       logger,
			database:     cfg.Database,
			timeout:      timeout,
			batchSize:    defaultBatchSize,
			columnsQuery: postgresColumnsQuery,
		},
		cfg: cfg,
	}
}

// Validate verifies the PostgreSQL connection and the permission to create tables
func (p *Postgres) Validate(ctx context.Context) error {
	var version string
	if err := p.db.GetContext(ctx, &version, "SELECT version()"); err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	p.logger.Info("Connected to PostgreSQL", zap.String("version", version))

	_, err := p.db.ExecContext(ctx, `
		DO $$
		BEGIN
			CREATE TEMP TABLE _permission_check (id serial, test text);
			INSERT INTO _permission_check (test) VALUES ('test');
			DROP TABLE _permission_check;
		EXCEPTION WHEN OTHERS THEN
			RAISE EXCEPTION 'Permission check failed: %', SQLERRM;
		END $$;
	`)
	if err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}

	p.logger.Info("PostgreSQL connection validated",
		zap.String("database", p.cfg.Database),
		zap.String("host", p.cfg.Host),
		zap.Int("port", p.cfg.Port))
	return nil
}
