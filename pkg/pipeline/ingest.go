// pkg/pipeline/ingest.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/cleaner"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/metrics"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/warehouse"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/writer"
)

// IngestOptions configures an Ingestor
type IngestOptions struct {
	// Dataset used for catalog entries that declare none
	Dataset string
	// Catalog entry receiving cleaning audit rows, empty disables auditing
	AuditTable string
}

// Ingestor cleans one uploaded object and appends it to its warehouse table
type Ingestor struct {
	cleaner *cleaner.DataCleaner
	writer  *writer.Writer
	catalog *schema.Catalog
	dataset string
	audit   *schema.Entry
	logger  *zap.Logger
}

// NewIngestor creates an ingestor
func NewIngestor(c *cleaner.DataCleaner, w *writer.Writer, catalog *schema.Catalog, opts IngestOptions) (*Ingestor, error) {
	if c == nil || w == nil || catalog == nil {
		return nil, errors.New("cleaner, writer and catalog are required")
	}

	ing := &Ingestor{
		cleaner: c,
		writer:  w,
		catalog: catalog,
		dataset: opts.Dataset,
		logger:  zap.L().Named("ingest"),
	}

	if opts.AuditTable != "" {
		entry, ok := catalog.Lookup(opts.AuditTable)
		if !ok {
			return nil, fmt.Errorf("%w: audit table %q", ErrNoSchema, opts.AuditTable)
		}
		ing.audit = &entry
	}
	return ing, nil
}

func (i *Ingestor) ref(entry schema.Entry) warehouse.TableRef {
	dataset := entry.Dataset
	if dataset == "" {
		dataset = i.dataset
	}
	return warehouse.TableRef{Dataset: dataset, Table: entry.Name}
}

// Ingest runs the ingestion state machine for bucket/name. The returned result
// describes the run in every case; the error is non-nil only for failed runs.
func (i *Ingestor) Ingest(ctx context.Context, bucket, name string) (*IngestResult, error) {
	obj := storage.Object{Bucket: bucket, Name: name}
	res := NewIngestResult(obj.URI())
	logger := i.logger.With(zap.String("run_id", res.RunID), zap.String("object", res.Object))
	logger.Info("Received object")

	if i.cleaner.IsProcessed(name) {
		res.Skip("object is a processed output")
		logger.Info("Ignoring processed output")
		i.finish(res)
		return res, nil
	}

	entry, ok := i.catalog.Match(name)
	if !ok {
		return i.fail(res, logger, StateReceived, fmt.Errorf("%w: %s", ErrNoSchema, name))
	}
	res.Table = entry.Name
	ref := i.ref(entry)
	logger = logger.With(zap.String("table", ref.String()))

	res.enter(StateCleaning)
	cleaned, err := i.cleaner.CleanObject(ctx, bucket, name, entry.Schema.Buckets(), model.CleaningContext{
		RunID:     res.RunID,
		TableName: entry.Name,
	})
	if err != nil {
		return i.fail(res, logger, StateCleaning, err)
	}
	if cleaned.AlreadyProcessed {
		res.Skip("object already processed")
		i.finish(res)
		return res, nil
	}
	res.Rows = cleaned.Rows
	res.Operations = cleaned.Operations
	for _, op := range cleaned.Operations {
		metrics.RecordCleaning(entry.Name, op.Operation, op.AffectedRows)
		if op.Operation == model.OperationCoercedToNull || op.Operation == model.OperationUnparseableDate {
			metrics.RecordError(CategoryCoercion.String())
		}
	}

	res.enter(StateEnsuringTable)
	if err := i.writer.EnsureDataset(ctx, ref.Dataset); err != nil {
		return i.fail(res, logger, StateEnsuringTable, err)
	}
	ensured, err := i.writer.EnsureTable(ctx, ref, entry.Schema)
	if err != nil {
		return i.fail(res, logger, StateEnsuringTable, err)
	}
	res.Drift = ensured.Drift
	if len(ensured.Drift) > 0 {
		res.AddWarning("destination schema differs: " + strings.Join(ensured.Drift, "; "))
	}

	res.enter(StateLoading)
	data, err := writer.Project(cleaned.Table, entry.Schema).EncodeCSV()
	if err != nil {
		return i.fail(res, logger, StateLoading, err)
	}
	loaded, err := i.writer.Load(ctx, ref, entry.Schema, warehouse.LoadSource{
		URI:  cleaned.Processed.URI(),
		Data: data,
	}, warehouse.WriteAppend)
	if err != nil {
		return i.fail(res, logger, StateLoading, err)
	}
	res.JobID = loaded.JobID
	res.LoadedRows = loaded.OutputRows
	res.BadRecords = loaded.BadRecords
	metrics.RecordLoad(entry.Name, string(warehouse.WriteAppend), loaded.OutputRows, loaded.BadRecords)

	i.recordAudit(ctx, logger, cleaned.Operations)

	res.Done()
	logger.Info("Ingestion complete",
		zap.Int("rows", res.Rows),
		zap.Int64("loaded_rows", res.LoadedRows),
		zap.Int64("bad_records", res.BadRecords),
		zap.Int("operations", len(res.Operations)))
	i.finish(res)
	return res, nil
}

func (i *Ingestor) fail(res *IngestResult, logger *zap.Logger, stage State, err error) (*IngestResult, error) {
	perr := NewError(stage, res.Object, err)
	res.Fail(perr)
	metrics.RecordError(perr.Category.String())
	logger.Error("Ingestion failed",
		zap.String("stage", string(stage)),
		zap.String("category", perr.Category.String()),
		zap.Error(err))
	i.finish(res)
	return res, perr
}

func (i *Ingestor) finish(res *IngestResult) {
	table := res.Table
	if table == "" {
		table = "unmatched"
	}
	metrics.RecordIngestRun(table, string(res.State), res.Duration)
}

// recordAudit appends the cleaning operations to the audit table. Failures are
// logged only.
func (i *Ingestor) recordAudit(ctx context.Context, logger *zap.Logger, ops []model.CleaningOperation) {
	if i.audit == nil || len(ops) == 0 {
		return
	}

	rows := make([]warehouse.Row, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, auditRow(op))
	}

	ref := i.ref(*i.audit)
	if err := i.writer.Append(ctx, ref, i.audit.Schema, rows); err != nil {
		metrics.RecordRecordingFailure(i.audit.Name)
		logger.Warn("Failed to record cleaning audit",
			zap.String("audit_table", ref.String()),
			zap.Error(err))
	}
}

func auditRow(op model.CleaningOperation) warehouse.Row {
	row := warehouse.Row{
		"run_id":        op.RunID,
		"source_object": op.SourceObject,
		"table_name":    op.TableName,
		"column_name":   op.ColumnName,
		"operation":     op.Operation,
		"reason":        op.Reason,
		"affected_rows": op.AffectedRows,
		"cleaned_at":    op.CleanedAt,
	}
	if op.FillValue != "" {
		row["fill_value"] = op.FillValue
	}
	return row
}
