// pkg/converter/values.go
package converter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

// ConvertValue converts a CSV cell or decoded JSON value to a driver value for
// the declared field. A nil result stores NULL.
func (c *TypeConverter) ConvertValue(value interface{}, f schema.Field) (interface{}, error) {
	if c.isNull(value) {
		if f.Mode == schema.ModeRequired {
			return nil, fmt.Errorf("%w: %s", ErrRequiredNull, f.Name)
		}
		return nil, nil
	}

	if c.IsDocument(f) {
		return c.convertToJSON(value)
	}
	if f.Mode == schema.ModeRepeated {
		return c.convertToArray(value, f)
	}

	converted, err := c.convertScalar(value, f.Type)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", f.Name, err)
	}
	return converted, nil
}

func (c *TypeConverter) convertScalar(value interface{}, t schema.FieldType) (interface{}, error) {
	switch t {
	case schema.TypeString:
		return convertToText(value), nil
	case schema.TypeInteger:
		return convertToInteger(value)
	case schema.TypeFloat:
		return convertToFloat(value)
	case schema.TypeBoolean:
		return convertToBoolean(value)
	case schema.TypeDate:
		ts, err := convertToTimestamp(value)
		if err != nil {
			return nil, err
		}
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case schema.TypeTimestamp:
		return convertToTimestamp(value)
	default:
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownType, t)
	}
}

// isNull determines if a value should be treated as NULL
func (c *TypeConverter) isNull(value interface{}) bool {
	if value == nil {
		return true
	}
	if strVal, ok := value.(string); ok {
		return strVal == "" && c.config.EmptyStringAsNull
	}
	return false
}

// convertToText converts a value to text
func convertToText(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// convertToInteger accepts integral text, including a zero fraction ("3.0")
func convertToInteger(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("cannot convert %v to integer", v)
		}
		return int64(v), nil
	case string:
		cleaned := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("cannot convert string '%s' to integer", v)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", value)
	}
}

// convertToFloat converts a value to float64
func convertToFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0, fmt.Errorf("cannot convert string '%s' to float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", value)
	}
}

// convertToBoolean converts a value to boolean
func convertToBoolean(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		default:
			return false, fmt.Errorf("cannot convert string '%s' to boolean", v)
		}
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// convertToTimestamp converts a value to a UTC timestamp
func convertToTimestamp(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		cleaned := strings.TrimSpace(v)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, cleaned); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse '%s' as timestamp", v)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", value)
	}
}
