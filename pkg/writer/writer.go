// pkg/writer/writer.go
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/warehouse"
)

// ErrRowCountMismatch is returned when a destination does not hold the rows written
var ErrRowCountMismatch = errors.New("row count mismatch")

// Writer creates destination tables from declared schemas and loads data into them
type Writer struct {
	wh            warehouse.Warehouse
	maxBadRecords int
	logger        *zap.Logger
}

// EnsureResult reports what EnsureTable did
type EnsureResult struct {
	Created bool
	// Differences between declared and actual schema of an existing table
	Drift []string
}

// VerificationReport contains the result of a row count verification
type VerificationReport struct {
	Table            warehouse.TableRef
	VerificationTime time.Time
	ExpectedRows     int64
	ActualRows       int64
	RowCountMatches  bool
}

// New creates a writer over a warehouse
func New(wh warehouse.Warehouse, maxBadRecords int) *Writer {
	return &Writer{
		wh:            wh,
		maxBadRecords: maxBadRecords,
		logger:        zap.L().Named("writer"),
	}
}

// Warehouse returns the underlying warehouse
func (w *Writer) Warehouse() warehouse.Warehouse {
	return w.wh
}

// EnsureDataset creates the destination dataset if it is missing
func (w *Writer) EnsureDataset(ctx context.Context, dataset string) error {
	if err := w.wh.EnsureDataset(ctx, dataset); err != nil {
		return fmt.Errorf("ensure dataset %s: %w", dataset, err)
	}
	return nil
}

// EnsureTable creates the table with exactly the declared schema when it does
// not exist. An existing table is never altered; a diverging layout is
// reported as drift.
func (w *Writer) EnsureTable(ctx context.Context, ref warehouse.TableRef, s schema.TableSchema) (EnsureResult, error) {
	lookup, err := w.wh.GetTable(ctx, ref)
	if err != nil {
		return EnsureResult{}, fmt.Errorf("lookup %s: %w", ref, err)
	}

	if lookup.Exists {
		drift := s.Diff(lookup.Schema)
		if len(drift) > 0 {
			w.logger.Warn("Destination table differs from declared schema",
				zap.String("table", ref.String()),
				zap.Strings("differences", drift))
		} else {
			w.logger.Debug("Table already exists", zap.String("table", ref.String()))
		}
		return EnsureResult{Drift: drift}, nil
	}

	if err := w.wh.CreateTable(ctx, ref, s); err != nil {
		return EnsureResult{}, fmt.Errorf("create %s: %w", ref, err)
	}
	w.logger.Info("Created table",
		zap.String("table", ref.String()),
		zap.Strings("fields", s.Names()))
	return EnsureResult{Created: true}, nil
}

// Load runs a load job into an existing table
func (w *Writer) Load(
	ctx context.Context,
	ref warehouse.TableRef,
	s schema.TableSchema,
	src warehouse.LoadSource,
	disposition warehouse.Disposition,
) (warehouse.LoadResult, error) {
	start := time.Now()
	res, err := w.wh.Load(ctx, ref, s, src, warehouse.LoadOptions{
		Disposition:   disposition,
		MaxBadRecords: w.maxBadRecords,
	})
	if err != nil {
		w.logger.Error("Load failed",
			zap.String("table", ref.String()),
			zap.String("disposition", string(disposition)),
			zap.Error(err))
		return warehouse.LoadResult{}, err
	}

	w.logger.Info("Loaded table",
		zap.String("table", ref.String()),
		zap.String("job_id", res.JobID),
		zap.String("disposition", string(disposition)),
		zap.Int64("output_rows", res.OutputRows),
		zap.Int64("bad_records", res.BadRecords),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// Write ensures the table and loads an in-memory table into it. Columns are
// projected onto the schema field order first.
func (w *Writer) Write(
	ctx context.Context,
	ref warehouse.TableRef,
	s schema.TableSchema,
	table *model.Table,
	disposition warehouse.Disposition,
) (warehouse.LoadResult, error) {
	if _, err := w.EnsureTable(ctx, ref, s); err != nil {
		return warehouse.LoadResult{}, err
	}

	data, err := Project(table, s).EncodeCSV()
	if err != nil {
		return warehouse.LoadResult{}, fmt.Errorf("encode %s: %w", ref, err)
	}
	return w.Load(ctx, ref, s, warehouse.LoadSource{Data: data}, disposition)
}

// Append ensures the table and streams rows into it
func (w *Writer) Append(ctx context.Context, ref warehouse.TableRef, s schema.TableSchema, rows []warehouse.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := w.EnsureTable(ctx, ref, s); err != nil {
		return err
	}
	if err := w.wh.InsertRows(ctx, ref, s, rows); err != nil {
		return fmt.Errorf("append to %s: %w", ref, err)
	}
	w.logger.Debug("Appended rows", zap.String("table", ref.String()), zap.Int("rows", len(rows)))
	return nil
}

// VerifyRowCount compares the number of rows in the destination with the
// number of rows written by a full replace
func (w *Writer) VerifyRowCount(ctx context.Context, ref warehouse.TableRef, expected int64) (*VerificationReport, error) {
	actual, err := w.wh.CountRows(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", ref, err)
	}

	report := &VerificationReport{
		Table:            ref,
		VerificationTime: time.Now().UTC(),
		ExpectedRows:     expected,
		ActualRows:       actual,
		RowCountMatches:  actual == expected,
	}
	if !report.RowCountMatches {
		w.logger.Warn("Row count mismatch",
			zap.String("table", ref.String()),
			zap.Int64("expected", expected),
			zap.Int64("actual", actual))
		return report, fmt.Errorf("%w: %s has %d rows, expected %d", ErrRowCountMismatch, ref, actual, expected)
	}
	return report, nil
}

// Project returns a copy of the table with exactly the schema's columns in
// schema order. Columns are matched case-insensitively; missing ones are null.
func Project(t *model.Table, s schema.TableSchema) *model.Table {
	out := model.NewTable(t.Name, s.Names()...)
	positions := make([]int, len(s))
	for i, f := range s {
		positions[i] = -1
		for j, col := range t.Columns {
			if strings.EqualFold(col, f.Name) {
				positions[i] = j
				break
			}
		}
	}

	out.Rows = make([][]model.Value, len(t.Rows))
	for r, row := range t.Rows {
		projected := make([]model.Value, len(s))
		for i, pos := range positions {
			if pos >= 0 {
				projected[i] = row[pos]
			}
		}
		out.Rows[r] = projected
	}
	return out
}
