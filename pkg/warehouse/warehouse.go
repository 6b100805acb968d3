// pkg/warehouse/warehouse.go
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

var (
	// ErrNoData is returned when a backend needs inline data and got only a URI
	ErrNoData = errors.New("load source carries no data")
	// ErrTableNotFound is returned by operations that need an existing table
	ErrTableNotFound = errors.New("table not found")
)

// Disposition selects how a load treats existing rows
type Disposition string

// Supported write dispositions
const (
	WriteAppend   Disposition = "WRITE_APPEND"
	WriteTruncate Disposition = "WRITE_TRUNCATE"
)

// TableRef names a destination table inside a dataset (schema)
type TableRef struct {
	Dataset string
	Table   string
}

func (r TableRef) String() string {
	return r.Dataset + "." + r.Table
}

// Lookup is the result of a table lookup. A missing table is not an error.
type Lookup struct {
	Exists  bool
	Schema  schema.TableSchema
	NumRows int64
}

// LoadSource is the content of a load job: a CSV document with a header row,
// given inline or as a gs:// URI. Backends without object storage access
// require Data.
type LoadSource struct {
	URI  string
	Data []byte
}

// LoadOptions controls a load job
type LoadOptions struct {
	Disposition   Disposition
	MaxBadRecords int
}

// LoadResult reports a finished load job
type LoadResult struct {
	JobID      string
	OutputRows int64
	BadRecords int64
}

// Row is one streamed record keyed by column name
type Row map[string]interface{}

// LoadError carries the error payload of a failed load job
type LoadError struct {
	Table   TableRef
	JobID   string
	Reason  string
	Message string
	// Individual row or field errors reported by the backend
	Errors []string
}

func (e *LoadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "load into %s failed", e.Table)
	if e.JobID != "" {
		fmt.Fprintf(&b, " (job %s)", e.JobID)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Errors) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Errors, "; "))
	}
	return b.String()
}

// Warehouse defines the interface for analytical destinations
type Warehouse interface {
	// EnsureDataset creates the dataset (schema) if it does not exist
	EnsureDataset(ctx context.Context, dataset string) error

	// GetTable looks a table up and returns its actual schema when present
	GetTable(ctx context.Context, ref TableRef) (Lookup, error)

	// CreateTable creates a table with exactly the given schema
	CreateTable(ctx context.Context, ref TableRef, s schema.TableSchema) error

	// Load runs a load job and blocks until it completes
	Load(ctx context.Context, ref TableRef, s schema.TableSchema, src LoadSource, opts LoadOptions) (LoadResult, error)

	// InsertRows streams a few rows into an existing table
	InsertRows(ctx context.Context, ref TableRef, s schema.TableSchema, rows []Row) error

	// CountRows returns the number of rows stored in a table
	CountRows(ctx context.Context, ref TableRef) (int64, error)

	// Close releases resources
	Close() error
}

// Name returns the backend name of a warehouse for logs and metrics
func Name(w Warehouse) string {
	switch w.(type) {
	case *BigQuery:
		return "bigquery"
	case *Postgres:
		return "postgres"
	case *Snowflake:
		return "snowflake"
	case *Memory:
		return "memory"
	default:
		return fmt.Sprintf("%T", w)
	}
}
