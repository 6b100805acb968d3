// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage drivers
const (
	StorageGCS    = "gcs"
	StorageLocal  = "local"
	StorageMemory = "memory"
)

// Warehouse drivers
const (
	WarehouseBigQuery  = "bigquery"
	WarehousePostgres  = "postgres"
	WarehouseSnowflake = "snowflake"
	WarehouseMemory    = "memory"
)

// Config represents the application configuration
type Config struct {
	Storage   StorageConfig   `envconfig:"STORAGE"`
	Warehouse WarehouseConfig `envconfig:"WAREHOUSE"`

	// Backend connections, only the selected driver is validated
	BigQuery  BigQueryConfig  `envconfig:"BIGQUERY"`
	Postgres  PostgresConfig  `envconfig:"POSTGRES"`
	Snowflake SnowflakeConfig `envconfig:"SNOWFLAKE"`

	Pipeline PipelineConfig `envconfig:"PIPELINE"`
	Models   ModelsConfig   `envconfig:"MODELS"`
	Server   ServerConfig   `envconfig:"SERVER"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// StorageConfig selects the object store backend
type StorageConfig struct {
	Driver          string `envconfig:"DRIVER" default:"gcs"`
	LocalRoot       string `envconfig:"LOCAL_ROOT" default:"./data"`
	Endpoint        string `envconfig:"ENDPOINT"`
	CredentialsFile string `envconfig:"CREDENTIALS_FILE"`
}

// WarehouseConfig selects the warehouse backend
type WarehouseConfig struct {
	Driver     string        `envconfig:"DRIVER" default:"bigquery"`
	JobTimeout time.Duration `envconfig:"JOB_TIMEOUT" default:"10m"`
}

// PipelineConfig holds the ingestion and feature job settings
type PipelineConfig struct {
	SourceBucket    string   `envconfig:"SOURCE_BUCKET" default:"cargacsv2ml"`
	SourceFiles     []string `envconfig:"SOURCE_FILES" default:"orders.csv,order_items.csv,order_payments.csv,reviews.csv,customers.csv"`
	ProcessedPrefix string   `envconfig:"PROCESSED_PREFIX" default:"processed_"`
	Dataset         string   `envconfig:"DATASET" default:"tablas"`
	FeatureDataset  string   `envconfig:"FEATURE_DATASET" default:"tablas_ml"`
	FeatureTable    string   `envconfig:"FEATURE_TABLE" default:"customer_features"`
	MaxBadRecords   int      `envconfig:"MAX_BAD_RECORDS" default:"10"`
	SchemaFile      string   `envconfig:"SCHEMA_FILE"`
	AuditTable      string   `envconfig:"AUDIT_TABLE" default:"cleaned_on_ingress"`
	StrictColumns   bool     `envconfig:"STRICT_COLUMNS" default:"false"`
}

// ModelsConfig locates model artifacts and prediction tables
type ModelsConfig struct {
	Bucket            string `envconfig:"BUCKET" default:"bucket_for_model_tfm"`
	ClusterArtifact   string `envconfig:"CLUSTER_ARTIFACT" default:"clusterizacion_clientes_model.json"`
	DemandArtifact    string `envconfig:"DEMAND_ARTIFACT" default:"demand_prediction_model.json"`
	DemandHistory     string `envconfig:"DEMAND_HISTORY" default:"daily_orders.csv"`
	PredictionDataset string `envconfig:"PREDICTION_DATASET" default:"tabla_pred_clust"`
	ClusterTable      string `envconfig:"CLUSTER_TABLE" default:"pred_clust"`
	DemandTable       string `envconfig:"DEMAND_TABLE" default:"demand_predictions"`
	AssignmentTable   string `envconfig:"ASSIGNMENT_TABLE" default:"ml_clusterizacion_bi"`
	Clusters          int    `envconfig:"CLUSTERS" default:"9"`
	Seed              int64  `envconfig:"SEED" default:"42"`
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Port            int           `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	APIURL          string        `envconfig:"API_URL" default:"http://localhost:8080"`
}

// LoadConfig loads configuration from the environment, reading a .env file first
// when one is present
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	cfg.Pipeline.SourceFiles = trimList(cfg.Pipeline.SourceFiles)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageGCS, StorageMemory:
	case StorageLocal:
		if c.Storage.LocalRoot == "" {
			return errors.New("STORAGE_LOCAL_ROOT is required for the local storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Warehouse.Driver {
	case WarehouseBigQuery:
		if err := c.BigQuery.Validate(); err != nil {
			return err
		}
	case WarehousePostgres:
		if err := c.Postgres.Validate(); err != nil {
			return err
		}
	case WarehouseSnowflake:
		if err := c.Snowflake.Validate(); err != nil {
			return err
		}
	case WarehouseMemory:
	default:
		return fmt.Errorf("unknown warehouse driver %q", c.Warehouse.Driver)
	}

	if c.Pipeline.SourceBucket == "" {
		return errors.New("PIPELINE_SOURCE_BUCKET is required")
	}

	if len(c.Pipeline.SourceFiles) == 0 {
		return errors.New("PIPELINE_SOURCE_FILES must name at least one file")
	}

	if c.Pipeline.ProcessedPrefix == "" {
		return errors.New("PIPELINE_PROCESSED_PREFIX cannot be empty")
	}

	if c.Pipeline.MaxBadRecords < 0 {
		return errors.New("max bad records cannot be negative")
	}

	if c.Models.Clusters <= 0 {
		return errors.New("cluster count must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	return nil
}

func trimList(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
