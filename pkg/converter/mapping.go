// pkg/converter/mapping.go
package converter

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

var postgresTypes = map[schema.FieldType]string{
	schema.TypeString:    "TEXT",
	schema.TypeInteger:   "BIGINT",
	schema.TypeFloat:     "DOUBLE PRECISION",
	schema.TypeBoolean:   "BOOLEAN",
	schema.TypeDate:      "DATE",
	schema.TypeTimestamp: "TIMESTAMP",
	schema.TypeRecord:    "JSONB",
}

var snowflakeTypes = map[schema.FieldType]string{
	schema.TypeString:    "VARCHAR",
	schema.TypeInteger:   "NUMBER(38,0)",
	schema.TypeFloat:     "FLOAT",
	schema.TypeBoolean:   "BOOLEAN",
	schema.TypeDate:      "DATE",
	schema.TypeTimestamp: "TIMESTAMP_NTZ",
	schema.TypeRecord:    "OBJECT",
}

// ColumnType returns the SQL type for a declared field
func (c *TypeConverter) ColumnType(f schema.Field) (string, error) {
	types := postgresTypes
	if c.config.Dialect == DialectSnowflake {
		types = snowflakeTypes
	}

	base, ok := types[f.Type]
	if !ok {
		return "", fmt.Errorf("%w: %s for column %s", schema.ErrUnknownType, f.Type, f.Name)
	}

	if f.Mode != schema.ModeRepeated {
		return base, nil
	}

	switch {
	case c.config.Dialect == DialectSnowflake:
		return "ARRAY", nil
	case f.Type == schema.TypeRecord || !c.config.NativeArrays:
		return "JSONB", nil
	default:
		return base + "[]", nil
	}
}

// IsDocument reports whether values of the field are stored as JSON documents
func (c *TypeConverter) IsDocument(f schema.Field) bool {
	if f.Type == schema.TypeRecord {
		return true
	}
	if f.Mode != schema.ModeRepeated {
		return false
	}
	return c.config.Dialect == DialectSnowflake || !c.config.NativeArrays
}

// ReverseType maps an information_schema data type back to a declared kind.
// scale is the numeric scale, or -1 when the column reports none.
func (c *TypeConverter) ReverseType(dataType string, scale int) (schema.FieldType, schema.Mode) {
	t := strings.ToUpper(strings.TrimSpace(dataType))
	mode := schema.ModeNullable

	if t == "ARRAY" || strings.HasSuffix(t, "[]") {
		return schema.TypeString, schema.ModeRepeated
	}

	switch t {
	case "TEXT", "VARCHAR", "CHARACTER VARYING", "CHARACTER", "CHAR", "STRING":
		return schema.TypeString, mode
	case "BIGINT", "INTEGER", "SMALLINT", "INT", "INT8", "INT4":
		return schema.TypeInteger, mode
	case "NUMBER", "NUMERIC", "DECIMAL":
		if scale == 0 {
			return schema.TypeInteger, mode
		}
		return schema.TypeFloat, mode
	case "DOUBLE PRECISION", "REAL", "FLOAT", "FLOAT8", "DOUBLE":
		return schema.TypeFloat, mode
	case "BOOLEAN", "BOOL":
		return schema.TypeBoolean, mode
	case "DATE":
		return schema.TypeDate, mode
	case "TIMESTAMP", "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP WITH TIME ZONE",
		"TIMESTAMP_NTZ", "TIMESTAMP_TZ", "TIMESTAMP_LTZ", "DATETIME":
		return schema.TypeTimestamp, mode
	case "JSONB", "JSON", "OBJECT", "VARIANT":
		return schema.TypeRecord, mode
	default:
		c.logger.Warn("Unknown column type encountered",
			zap.String("dataType", dataType))
		return schema.TypeString, mode
	}
}
