// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// BigQueryConfig holds BigQuery connection parameters
type BigQueryConfig struct {
	Project         string `envconfig:"PROJECT" default:"tfm-edem"`
	Location        string `envconfig:"LOCATION" default:"US"`
	Endpoint        string `envconfig:"ENDPOINT"`
	CredentialsFile string `envconfig:"CREDENTIALS_FILE"`

	// How often load jobs are polled for completion
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
}

// SnowflakeConfig holds Snowflake connection parameters
type SnowflakeConfig struct {
	User          string `envconfig:"USER"`
	Password      string `envconfig:"PASSWORD"`
	Account       string `envconfig:"ACCOUNT"`
	Warehouse     string `envconfig:"WAREHOUSE"`
	Database      string `envconfig:"DATABASE" default:"TFM_EDEM"`
	Role          string `envconfig:"ROLE"`
	Authenticator string `envconfig:"AUTHENTICATOR" default:"snowflake"`

	// Connection pool settings
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"10m"`
	ConnMaxIdleTime time.Duration `envconfig:"CONN_MAX_IDLE_TIME" default:"5m"`

	// Query timeout
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" default:"5m"`
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"5432"`
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	Database string `envconfig:"DB"`
	SSLMode  string `envconfig:"SSLMODE" default:"disable"`

	// Connection pool settings
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `envconfig:"CONN_MAX_IDLE_TIME" default:"10m"`

	// Statement timeout
	StatementTimeout time.Duration `envconfig:"STATEMENT_TIMEOUT" default:"5m"`
}

// Validate checks the BigQuery settings
func (c *BigQueryConfig) Validate() error {
	if c.Project == "" {
		return errors.New("BIGQUERY_PROJECT environment variable is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("BIGQUERY_POLL_INTERVAL must be positive")
	}
	return nil
}

// Validate checks the Snowflake settings
func (c *SnowflakeConfig) Validate() error {
	if c.User == "" {
		return errors.New("SNOWFLAKE_USER environment variable is required")
	}

	if c.Password == "" && c.AuthType() == gosnowflake.AuthTypeSnowflake {
		return errors.New("SNOWFLAKE_PASSWORD environment variable is required")
	}

	if c.Account == "" {
		return errors.New("SNOWFLAKE_ACCOUNT environment variable is required")
	}

	if c.Warehouse == "" {
		return errors.New("SNOWFLAKE_WAREHOUSE environment variable is required")
	}

	return nil
}

// Validate checks the PostgreSQL settings
func (c *PostgresConfig) Validate() error {
	if c.User == "" {
		return errors.New("POSTGRES_USER environment variable is required")
	}

	if c.Password == "" {
		return errors.New("POSTGRES_PASSWORD environment variable is required")
	}

	if c.Database == "" {
		return errors.New("POSTGRES_DB environment variable is required")
	}

	return nil
}

// AuthType converts the configured authenticator to the driver type
func (c *SnowflakeConfig) AuthType() gosnowflake.AuthType {
	switch c.Authenticator {
	case "oauth":
		return gosnowflake.AuthTypeOAuth
	case "externalbrowser":
		return gosnowflake.AuthTypeExternalBrowser
	case "username_password_mfa":
		return gosnowflake.AuthTypeUsernamePasswordMFA
	case "jwt":
		return gosnowflake.AuthTypeJwt
	case "token":
		return gosnowflake.AuthTypeTokenAccessor
	case "okta":
		return gosnowflake.AuthTypeOkta
	default:
		return gosnowflake.AuthTypeSnowflake
	}
}

// ConnectionString returns a formatted Snowflake DSN
func (c *SnowflakeConfig) ConnectionString() (string, error) {
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:       c.Account,
		User:          c.User,
		Password:      c.Password,
		Database:      c.Database,
		Warehouse:     c.Warehouse,
		Role:          c.Role,
		Authenticator: c.AuthType(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build snowflake DSN: %w", err)
	}
	return dsn, nil
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
