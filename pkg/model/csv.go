// pkg/model/csv.go
package model

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyFile is returned when a delimited file has no header row
var ErrEmptyFile = errors.New("delimited file has no header row")

// ReadCSV parses comma-delimited text with a header row into a table
func ReadCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	// Strip a UTF-8 byte order mark left by spreadsheet exports
	if len(header) > 0 {
		header[0] = string(bytes.TrimPrefix([]byte(header[0]), []byte("\ufeff")))
	}

	table := NewTable(name, header...)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("failed to parse %s: line %d has %d fields, header has %d",
				name, line, len(record), len(header))
		}

		row := make([]Value, len(header))
		for i, raw := range record {
			row[i] = ParseCell(raw)
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// WriteCSV writes the table with a header row. Null cells are written empty.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, cell := range row {
			record[i] = cell.Str
			if !cell.Valid {
				record[i] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// EncodeCSV renders the table as CSV bytes
func (t *Table) EncodeCSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
