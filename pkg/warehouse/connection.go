// pkg/warehouse/connection.go
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Pool holds the connection pool limits of a SQL warehouse. Zero values keep
// the database/sql defaults.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// openSQL opens a pooled connection and pings it within pingTimeout
func openSQL(ctx context.Context, driver, dsn string, pool Pool, pingTimeout time.Duration, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s connection: %w", driver, err)
	}

	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.MaxLifetime)
	}
	if pool.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.MaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s within %v: %w", driver, pingTimeout, err)
	}

	logPoolStats(logger, db)
	return db, nil
}

func logPoolStats(logger *zap.Logger, db *sqlx.DB) {
	s := db.Stats()
	logger.Debug("Connection pool stats",
		zap.Int("open_connections", s.OpenConnections),
		zap.Int("in_use", s.InUse),
		zap.Int("idle", s.Idle),
		zap.Int("max_open", s.MaxOpenConnections),
		zap.Int64("wait_count", s.WaitCount),
		zap.Duration("wait_duration", s.WaitDuration))
}
