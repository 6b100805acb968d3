// pkg/schema/schema.go
package schema

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownType is returned for a field type tag outside the supported set
	ErrUnknownType = errors.New("unknown field type")
	// ErrUnknownMode is returned for a field mode tag outside the supported set
	ErrUnknownMode = errors.New("unknown field mode")
	// ErrInvalidSchema is returned for structurally invalid schemas
	ErrInvalidSchema = errors.New("invalid schema")
)

// FieldType is the declared kind of a column
type FieldType string

// Supported column kinds
const (
	TypeString    FieldType = "STRING"
	TypeInteger   FieldType = "INTEGER"
	TypeFloat     FieldType = "FLOAT"
	TypeBoolean   FieldType = "BOOLEAN"
	TypeDate      FieldType = "DATE"
	TypeTimestamp FieldType = "TIMESTAMP"
	TypeRecord    FieldType = "RECORD"
)

var typeAliases = map[string]FieldType{
	"STRING":    TypeString,
	"INTEGER":   TypeInteger,
	"INT64":     TypeInteger,
	"FLOAT":     TypeFloat,
	"FLOAT64":   TypeFloat,
	"NUMERIC":   TypeFloat,
	"BOOLEAN":   TypeBoolean,
	"BOOL":      TypeBoolean,
	"DATE":      TypeDate,
	"TIMESTAMP": TypeTimestamp,
	"DATETIME":  TypeTimestamp,
	"RECORD":    TypeRecord,
	"STRUCT":    TypeRecord,
}

// ParseFieldType resolves a type tag, accepting the usual warehouse aliases
func ParseFieldType(tag string) (FieldType, error) {
	t, ok := typeAliases[strings.ToUpper(strings.TrimSpace(tag))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	return t, nil
}

// UnmarshalYAML validates the tag while decoding
func (t *FieldType) UnmarshalYAML(node *yaml.Node) error {
	var tag string
	if err := node.Decode(&tag); err != nil {
		return err
	}
	parsed, err := ParseFieldType(tag)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = parsed
	return nil
}

// IsDate reports whether values of this type are calendar dates or instants
func (t FieldType) IsDate() bool {
	return t == TypeDate || t == TypeTimestamp
}

// Mode is the nullability or repetition of a column
type Mode string

// Supported modes
const (
	ModeNullable Mode = "NULLABLE"
	ModeRequired Mode = "REQUIRED"
	ModeRepeated Mode = "REPEATED"
)

// ParseMode resolves a mode tag; empty means NULLABLE
func ParseMode(tag string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(tag))) {
	case "", ModeNullable:
		return ModeNullable, nil
	case ModeRequired:
		return ModeRequired, nil
	case ModeRepeated:
		return ModeRepeated, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, tag)
}

// UnmarshalYAML validates the tag while decoding
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	var tag string
	if err := node.Decode(&tag); err != nil {
		return err
	}
	parsed, err := ParseMode(tag)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*m = parsed
	return nil
}

// Field is one column of a table schema. Fields is only set for RECORD columns.
type Field struct {
	Name        string    `yaml:"name"`
	Type        FieldType `yaml:"type"`
	Mode        Mode      `yaml:"mode,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Fields      []Field   `yaml:"fields,omitempty"`
}

// TableSchema is the ordered list of columns of a table
type TableSchema []Field

// Validate checks names, tags and nesting, and fills default modes
func (s TableSchema) Validate() error {
	return validateFields(s, "")
}

func validateFields(fields []Field, path string) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: %sno fields declared", ErrInvalidSchema, path)
	}

	seen := make(map[string]struct{}, len(fields))
	for i := range fields {
		f := &fields[i]
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("%w: %sfield %d has no name", ErrInvalidSchema, path, i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %sduplicate field %q", ErrInvalidSchema, path, name)
		}
		seen[key] = struct{}{}

		if f.Type == "" {
			return fmt.Errorf("%w: %sfield %q has no type", ErrInvalidSchema, path, name)
		}
		if _, err := ParseFieldType(string(f.Type)); err != nil {
			return fmt.Errorf("%sfield %q: %w", path, name, err)
		}
		mode, err := ParseMode(string(f.Mode))
		if err != nil {
			return fmt.Errorf("%sfield %q: %w", path, name, err)
		}
		f.Mode = mode

		if f.Type == TypeRecord {
			if err := validateFields(f.Fields, path+name+"."); err != nil {
				return err
			}
		} else if len(f.Fields) > 0 {
			return fmt.Errorf("%w: %sfield %q of type %s cannot have nested fields",
				ErrInvalidSchema, path, name, f.Type)
		}
	}
	return nil
}

// Names returns the top-level field names in order
func (s TableSchema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Field returns the top-level field with the given name
func (s TableSchema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Buckets splits the top-level columns by the cleaning policy that applies to them
type Buckets struct {
	Integer   []string
	Float     []string
	Date      []string
	Timestamp []string
}

// Buckets derives the integer, float and date column buckets
func (s TableSchema) Buckets() Buckets {
	var b Buckets
	for _, f := range s {
		if f.Mode == ModeRepeated {
			continue
		}
		switch f.Type {
		case TypeInteger:
			b.Integer = append(b.Integer, f.Name)
		case TypeFloat:
			b.Float = append(b.Float, f.Name)
		case TypeDate:
			b.Date = append(b.Date, f.Name)
		case TypeTimestamp:
			b.Timestamp = append(b.Timestamp, f.Name)
		}
	}
	return b
}

// Diff lists the differences between the declared schema and an actual one.
// An empty result means both declare the same fields with the same kinds.
func (s TableSchema) Diff(actual TableSchema) []string {
	return diffFields(s, actual, "")
}

func diffFields(want, got []Field, path string) []string {
	var diffs []string
	gotByName := make(map[string]Field, len(got))
	for _, f := range got {
		gotByName[strings.ToLower(f.Name)] = f
	}

	wantNames := make(map[string]struct{}, len(want))
	for _, w := range want {
		key := strings.ToLower(w.Name)
		wantNames[key] = struct{}{}
		g, ok := gotByName[key]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("missing field %s%s", path, w.Name))
			continue
		}
		if g.Type != w.Type {
			diffs = append(diffs, fmt.Sprintf("field %s%s declared %s, found %s", path, w.Name, w.Type, g.Type))
		}
		if normalMode(g.Mode) != normalMode(w.Mode) {
			diffs = append(diffs, fmt.Sprintf("field %s%s declared %s, found %s", path, w.Name,
				normalMode(w.Mode), normalMode(g.Mode)))
		}
		// Backends that store records as documents report no nested fields
		if w.Type == TypeRecord && g.Type == TypeRecord && len(g.Fields) > 0 {
			diffs = append(diffs, diffFields(w.Fields, g.Fields, path+w.Name+".")...)
		}
	}

	for _, g := range got {
		if _, ok := wantNames[strings.ToLower(g.Name)]; !ok {
			diffs = append(diffs, fmt.Sprintf("unexpected field %s%s", path, g.Name))
		}
	}
	return diffs
}

func normalMode(m Mode) Mode {
	if m == "" {
		return ModeNullable
	}
	return m
}
