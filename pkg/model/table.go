// pkg/model/table.go
package model

import (
	"math"
	"strconv"
	"strings"
)

// Value is a single nullable cell of a delimited-text table
type Value struct {
	Str   string
	Valid bool
}

// Null is the absent value
var Null = Value{}

// String wraps s as a present value
func String(s string) Value {
	return Value{Str: s, Valid: true}
}

// IsNull reports whether the cell holds no value
func (v Value) IsNull() bool {
	return !v.Valid
}

// Float coerces the cell to a number. Null and non-numeric text report false.
func (v Value) Float() (float64, bool) {
	if !v.Valid {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// FormatFloat renders a number with the shortest exact representation
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Table is an in-memory tabular structure parsed from a delimited text file.
// Every row has exactly len(Columns) cells.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]Value
}

// NewTable creates an empty table with the given columns
func NewTable(name string, columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Name: name, Columns: cols}
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, or -1 when absent
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table carries a column
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Column returns a copy of the cells of a column, or nil when absent
func (t *Table) Column(name string) []Value {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// SetColumn replaces the cells of an existing column
func (t *Table) SetColumn(name string, values []Value) bool {
	idx := t.ColumnIndex(name)
	if idx < 0 || len(values) != len(t.Rows) {
		return false
	}
	for i := range t.Rows {
		t.Rows[i][idx] = values[i]
	}
	return true
}

// AddColumn appends a null-filled column if it does not exist yet
func (t *Table) AddColumn(name string) {
	if t.HasColumn(name) {
		return
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], Null)
	}
}

// AppendRow adds a row, padding or truncating it to the column count
func (t *Table) AppendRow(values ...Value) {
	row := make([]Value, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

// Get returns the cell at row i of a column
func (t *Table) Get(i int, column string) Value {
	idx := t.ColumnIndex(column)
	if idx < 0 || i < 0 || i >= len(t.Rows) {
		return Null
	}
	return t.Rows[i][idx]
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	out := NewTable(t.Name, t.Columns...)
	out.Rows = make([][]Value, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]Value, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}

// Concat unions tables row-wise. Columns are ordered by first appearance and
// cells of columns a source table does not carry are null.
func Concat(name string, tables ...*Table) *Table {
	out := NewTable(name)
	for _, t := range tables {
		for _, col := range t.Columns {
			if !out.HasColumn(col) {
				out.Columns = append(out.Columns, col)
			}
		}
	}

	for _, t := range tables {
		positions := make([]int, len(t.Columns))
		for i, col := range t.Columns {
			positions[i] = out.ColumnIndex(col)
		}
		for _, row := range t.Rows {
			r := make([]Value, len(out.Columns))
			for i, cell := range row {
				r[positions[i]] = cell
			}
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// naTokens are the textual markers read as missing values
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
	"NaT": {},
}

// ParseCell converts raw CSV text into a cell, mapping NA markers to null
func ParseCell(raw string) Value {
	if _, ok := naTokens[strings.TrimSpace(raw)]; ok {
		return Null
	}
	return String(raw)
}
