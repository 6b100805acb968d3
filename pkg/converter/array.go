// pkg/converter/array.go
package converter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

// convertToJSON renders RECORD and document-stored REPEATED values as JSON text
func (c *TypeConverter) convertToJSON(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("value is not valid JSON: %.40q", v)
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("value is not valid JSON: %.40q", string(v))
		}
		return string(v), nil
	default:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
		}
		return string(jsonBytes), nil
	}
}

// convertToArray builds a native array for a REPEATED scalar column. Text
// input must be a JSON array.
func (c *TypeConverter) convertToArray(value interface{}, f schema.Field) (interface{}, error) {
	var items []interface{}
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("column %s: expected a JSON array: %w", f.Name, err)
		}
	case []interface{}:
		items = v
	default:
		return nil, fmt.Errorf("column %s: cannot convert %T to array", f.Name, value)
	}

	switch f.Type {
	case schema.TypeInteger:
		out := make([]int64, len(items))
		for i, item := range items {
			n, err := convertToInteger(item)
			if err != nil {
				return nil, fmt.Errorf("column %s[%d]: %w", f.Name, i, err)
			}
			out[i] = n
		}
		return pq.Array(out), nil
	case schema.TypeFloat:
		out := make([]float64, len(items))
		for i, item := range items {
			n, err := convertToFloat(item)
			if err != nil {
				return nil, fmt.Errorf("column %s[%d]: %w", f.Name, i, err)
			}
			out[i] = n
		}
		return pq.Array(out), nil
	case schema.TypeBoolean:
		out := make([]bool, len(items))
		for i, item := range items {
			b, err := convertToBoolean(item)
			if err != nil {
				return nil, fmt.Errorf("column %s[%d]: %w", f.Name, i, err)
			}
			out[i] = b
		}
		return pq.Array(out), nil
	default:
		out := make([]string, len(items))
		for i, item := range items {
			out[i] = convertToText(item)
		}
		return pq.Array(out), nil
	}
}
