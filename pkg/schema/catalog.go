// pkg/schema/catalog.go
package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// FormatCSV is the only source format the ingestion pipeline loads
const FormatCSV = "CSV"

// Entry declares one destination table
type Entry struct {
	Name    string      `yaml:"name"`
	Format  string      `yaml:"format,omitempty"`
	Dataset string      `yaml:"dataset,omitempty"`
	Schema  TableSchema `yaml:"schema"`
}

// Catalog is the validated set of table declarations
type Catalog struct {
	entries []Entry
	byName  map[string]int
}

// Default returns the catalog compiled into the binary
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, or the compiled-in catalog when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes and validates a YAML catalog. Unknown keys are rejected.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var entries []Entry
	if err := dec.Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty catalog", ErrInvalidSchema)
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	cat := &Catalog{byName: make(map[string]int, len(entries))}
	for i := range entries {
		e := &entries[i]
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidSchema, i)
		}
		if _, dup := cat.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate table %q", ErrInvalidSchema, e.Name)
		}
		e.Format = strings.ToUpper(e.Format)
		if err := e.Schema.Validate(); err != nil {
			return nil, fmt.Errorf("table %q: %w", e.Name, err)
		}
		cat.byName[e.Name] = i
	}
	cat.entries = entries
	return cat, nil
}

// Entries returns the declarations in file order
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup returns the declaration of a table by name
func (c *Catalog) Lookup(name string) (Entry, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Match finds the table an uploaded object belongs to. An entry matches when
// the object name contains the table name, or the table name with underscores
// written as dashes. Only entries with a source format take part. The longest
// matching name wins.
func (c *Catalog) Match(objectName string) (Entry, bool) {
	base := objectName
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}

	best := -1
	for i, e := range c.entries {
		if e.Format != FormatCSV {
			continue
		}
		if !strings.Contains(base, e.Name) && !strings.Contains(base, strings.ReplaceAll(e.Name, "_", "-")) {
			continue
		}
		if best < 0 || len(e.Name) > len(c.entries[best].Name) {
			best = i
		}
	}
	if best < 0 {
		return Entry{}, false
	}
	return c.entries[best], true
}
