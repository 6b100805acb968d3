// pkg/converter/converter.go
package converter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

// Dialect selects the SQL flavour of the destination
type Dialect string

// Supported SQL dialects
const (
	DialectPostgres  Dialect = "postgres"
	DialectSnowflake Dialect = "snowflake"
)

// ErrRequiredNull is returned when a REQUIRED column receives no value
var ErrRequiredNull = errors.New("null value in required column")

// TypeConverter maps declared column kinds to SQL types and CSV text to
// driver values
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	Dialect Dialect
	// Whether to treat empty strings as NULL
	EmptyStringAsNull bool
	// Whether REPEATED scalar columns become native arrays (Postgres only)
	NativeArrays bool
}

// DefaultConfig returns the default configuration for a dialect
func DefaultConfig(dialect Dialect) TypeConverterConfig {
	return TypeConverterConfig{
		Dialect:           dialect,
		EmptyStringAsNull: true,
		NativeArrays:      dialect == DialectPostgres,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(dialect Dialect) *TypeConverter {
	return NewTypeConverterWithConfig(DefaultConfig(dialect))
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(config TypeConverterConfig) *TypeConverter {
	return &TypeConverter{
		logger: zap.L().Named("converter"),
		config: config,
	}
}

// Dialect returns the configured dialect
func (c *TypeConverter) Dialect() Dialect {
	return c.config.Dialect
}

// GenerateColumnDefinitions creates column definitions for CREATE TABLE
func (c *TypeConverter) GenerateColumnDefinitions(s schema.TableSchema) ([]string, error) {
	definitions := make([]string, 0, len(s))

	for _, f := range s {
		sqlType, err := c.ColumnType(f)
		if err != nil {
			return nil, err
		}

		def := fmt.Sprintf("%s %s", QuoteIdentifier(f.Name), sqlType)
		if f.Mode == schema.ModeRequired {
			def += " NOT NULL"
		}
		definitions = append(definitions, def)
	}

	return definitions, nil
}

// CreateTableStatement renders the CREATE TABLE statement for a schema
func (c *TypeConverter) CreateTableStatement(namespace, table string, s schema.TableSchema) (string, error) {
	defs, err := c.GenerateColumnDefinitions(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		QualifiedName(namespace, table),
		strings.Join(defs, ",\n\t")), nil
}

// QuoteIdentifier quotes and escapes a SQL identifier
func QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// QualifiedName returns namespace.table with both parts quoted
func QualifiedName(namespace, table string) string {
	if namespace == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(namespace) + "." + QuoteIdentifier(table)
}
