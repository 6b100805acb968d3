// pkg/warehouse/rows.go
package warehouse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/converter"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

// maxReportedErrors bounds the row errors kept on a LoadError
const maxReportedErrors = 5

// preparedRows holds converted values in schema order
type preparedRows struct {
	Values [][]interface{}
	Bad    []string
}

// prepareRows parses a CSV load source and converts every row to driver
// values in schema field order. CSV columns are matched to fields by name,
// case-insensitively; declared fields absent from the file are NULL. Rows
// that fail conversion are collected as bad records.
func prepareRows(conv *converter.TypeConverter, ref TableRef, s schema.TableSchema, data []byte) (*preparedRows, error) {
	table, err := model.ReadCSV(ref.Table, bytes.NewReader(data))
	if err != nil {
		return nil, &LoadError{Table: ref, Reason: "invalid", Message: err.Error()}
	}

	positions := make([]int, len(s))
	for i, f := range s {
		positions[i] = -1
		for j, col := range table.Columns {
			if strings.EqualFold(col, f.Name) {
				positions[i] = j
				break
			}
		}
	}

	out := &preparedRows{Values: make([][]interface{}, 0, table.Len())}
	for r, cells := range table.Rows {
		row := make([]interface{}, len(s))
		var rowErr error
		for i, f := range s {
			var raw interface{}
			if positions[i] >= 0 && !cells[positions[i]].IsNull() {
				raw = cells[positions[i]].Str
			}
			row[i], rowErr = conv.ConvertValue(raw, f)
			if rowErr != nil {
				break
			}
		}
		if rowErr != nil {
			// +2 accounts for the header line
			out.Bad = append(out.Bad, fmt.Sprintf("line %d: %v", r+2, rowErr))
			continue
		}
		out.Values = append(out.Values, row)
	}
	return out, nil
}

// checkBadRecords fails the load when the bad-record budget is exceeded
func checkBadRecords(ref TableRef, jobID string, prepared *preparedRows, maxBad int) error {
	if len(prepared.Bad) <= maxBad {
		return nil
	}
	return &LoadError{
		Table:   ref,
		JobID:   jobID,
		Reason:  "invalid",
		Message: fmt.Sprintf("too many bad records: %d exceeds the limit of %d", len(prepared.Bad), maxBad),
		Errors:  firstErrors(prepared.Bad),
	}
}

func firstErrors(errs []string) []string {
	if len(errs) > maxReportedErrors {
		return errs[:maxReportedErrors]
	}
	return errs
}

// rowValues orders streamed row values by schema field and converts them
func rowValues(conv *converter.TypeConverter, s schema.TableSchema, rows []Row) ([][]interface{}, error) {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		values := make([]interface{}, len(s))
		for j, f := range s {
			v, err := conv.ConvertValue(r[f.Name], f)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			values[j] = v
		}
		for name := range r {
			if _, ok := s.Field(name); !ok {
				return nil, fmt.Errorf("row %d: no such field: %s", i, name)
			}
		}
		out[i] = values
	}
	return out, nil
}
