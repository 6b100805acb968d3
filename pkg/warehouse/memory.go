// pkg/warehouse/memory.go
package warehouse

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/converter"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

type memoryTable struct {
	schema schema.TableSchema
	rows   []Row
}

// Memory is an in-process Warehouse used by tests and local runs. Values are
// converted with the Postgres rules so bad records behave like a SQL load.
type Memory struct {
	mu       sync.Mutex
	datasets map[string]struct{}
	tables   map[TableRef]*memoryTable
	conv     *converter.TypeConverter
	loads    int
	// Err is returned by every Load when set
	Err error
}

// NewMemory creates an empty in-memory warehouse
func NewMemory() *Memory {
	return &Memory{
		datasets: make(map[string]struct{}),
		tables:   make(map[TableRef]*memoryTable),
		conv:     converter.NewTypeConverter(converter.DialectPostgres),
	}
}

func (m *Memory) EnsureDataset(_ context.Context, dataset string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[dataset] = struct{}{}
	return nil
}

// HasDataset reports whether a dataset was created
func (m *Memory) HasDataset(dataset string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.datasets[dataset]
	return ok
}

func (m *Memory) GetTable(_ context.Context, ref TableRef) (Lookup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[ref]
	if !ok {
		return Lookup{Exists: false}, nil
	}
	return Lookup{Exists: true, Schema: t.schema, NumRows: int64(len(t.rows))}, nil
}

func (m *Memory) CreateTable(_ context.Context, ref TableRef, s schema.TableSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[ref]; ok {
		return nil
	}
	m.tables[ref] = &memoryTable{schema: append(schema.TableSchema(nil), s...)}
	return nil
}

func (m *Memory) Load(
	_ context.Context,
	ref TableRef,
	s schema.TableSchema,
	src LoadSource,
	opts LoadOptions,
) (LoadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++

	if m.Err != nil {
		return LoadResult{}, m.Err
	}
	t, ok := m.tables[ref]
	if !ok {
		return LoadResult{}, &LoadError{Table: ref, Reason: "notFound", Message: ErrTableNotFound.Error()}
	}
	if len(src.Data) == 0 {
		return LoadResult{}, fmt.Errorf("load into %s from %q: %w", ref, src.URI, ErrNoData)
	}

	jobID := uuid.NewString()
	prepared, err := prepareRows(m.conv, ref, s, src.Data)
	if err != nil {
		return LoadResult{}, err
	}
	if err := checkBadRecords(ref, jobID, prepared, opts.MaxBadRecords); err != nil {
		return LoadResult{}, err
	}

	if opts.Disposition == WriteTruncate {
		t.rows = nil
	}
	for _, values := range prepared.Values {
		row := make(Row, len(s))
		for i, f := range s {
			row[f.Name] = values[i]
		}
		t.rows = append(t.rows, row)
	}

	return LoadResult{
		JobID:      jobID,
		OutputRows: int64(len(prepared.Values)),
		BadRecords: int64(len(prepared.Bad)),
	}, nil
}

func (m *Memory) InsertRows(_ context.Context, ref TableRef, s schema.TableSchema, rows []Row) error {
	values, err := rowValues(m.conv, s, rows)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", ref, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[ref]
	if !ok {
		return fmt.Errorf("insert into %s: %w", ref, ErrTableNotFound)
	}
	for _, v := range values {
		row := make(Row, len(s))
		for i, f := range s {
			row[f.Name] = v[i]
		}
		t.rows = append(t.rows, row)
	}
	return nil
}

func (m *Memory) CountRows(_ context.Context, ref TableRef) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[ref]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, ref)
	}
	return int64(len(t.rows)), nil
}

// Rows returns the stored rows of a table
func (m *Memory) Rows(ref TableRef) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[ref]
	if !ok {
		return nil
	}
	return append([]Row(nil), t.rows...)
}

// Loads returns the number of load jobs received
func (m *Memory) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func (m *Memory) Close() error {
	return nil
}
