// pkg/pipeline/features.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/features"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/metrics"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/reader"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/warehouse"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/writer"
)

// FeatureOptions configures a FeatureJob
type FeatureOptions struct {
	Bucket  string
	Sources []string
	Dataset string
	Table   string
	Strict  bool
}

// FeatureJob rebuilds the per-customer feature table from the raw sources
type FeatureJob struct {
	reader     *reader.Reader
	aggregator *features.Aggregator
	writer     *writer.Writer
	schema     schema.TableSchema
	opts       FeatureOptions
	logger     *zap.Logger
}

// Computed is the output of the read and aggregate steps
type Computed struct {
	Table   *model.Table
	Report  features.Report
	Inputs  []string
	Missing []string
}

// NewFeatureJob creates a feature job. The destination schema is looked up in
// the catalog under the table name.
func NewFeatureJob(r *reader.Reader, w *writer.Writer, catalog *schema.Catalog, opts FeatureOptions) (*FeatureJob, error) {
	if r == nil {
		return nil, errors.New("reader is required")
	}
	if len(opts.Sources) == 0 {
		opts.Sources = reader.DefaultSources
	}

	job := &FeatureJob{
		reader:     r,
		aggregator: features.NewAggregator(features.CustomerFeatures, opts.Strict),
		writer:     w,
		opts:       opts,
		logger:     zap.L().Named("feature_job"),
	}

	if w != nil {
		if catalog == nil {
			return nil, errors.New("catalog is required with a writer")
		}
		entry, ok := catalog.Lookup(opts.Table)
		if !ok {
			return nil, fmt.Errorf("%w: feature table %q", ErrNoSchema, opts.Table)
		}
		job.schema = entry.Schema
		if opts.Dataset == "" {
			job.opts.Dataset = entry.Dataset
		}
	}
	return job, nil
}

// Compute reads the sources and aggregates them without writing anything
func (j *FeatureJob) Compute(ctx context.Context) (*Computed, error) {
	read, err := j.reader.Read(ctx, j.opts.Bucket, j.opts.Sources)
	if err != nil {
		return nil, NewError(StateReading, j.opts.Bucket, err)
	}
	for _, name := range read.Missing {
		metrics.RecordError(CategoryMissingSource.String())
		j.logger.Debug("Source missing", zap.String("file", name))
	}

	table, report, err := j.aggregator.Aggregate(read.Tables...)
	if err != nil {
		return nil, NewError(StateAggregating, j.opts.Bucket, err)
	}

	out := &Computed{Table: table, Report: report, Missing: read.Missing}
	for _, t := range read.Tables {
		out.Inputs = append(out.Inputs, t.Name)
	}
	return out, nil
}

// Features returns the aggregated feature table
func (j *FeatureJob) Features(ctx context.Context) (*model.Table, error) {
	computed, err := j.Compute(ctx)
	if err != nil {
		return nil, err
	}
	return computed.Table, nil
}

// Run computes the features and replaces the destination table with them
func (j *FeatureJob) Run(ctx context.Context) (*FeatureResult, error) {
	if j.writer == nil {
		return nil, errors.New("feature job has no writer")
	}

	ref := warehouse.TableRef{Dataset: j.opts.Dataset, Table: j.opts.Table}
	res := &FeatureResult{RunID: uuid.New().String(), Table: ref.String(), StartTime: time.Now().UTC()}
	logger := j.logger.With(zap.String("run_id", res.RunID), zap.String("table", ref.String()))
	defer res.Complete()

	computed, err := j.Compute(ctx)
	if err != nil {
		logger.Error("Feature computation failed", zap.Error(err))
		metrics.RecordError(Categorize(err).String())
		return res, err
	}
	res.Inputs = computed.Inputs
	res.Missing = computed.Missing
	res.UnionRows = computed.Report.UnionRows
	res.NullKeyRows = computed.Report.NullKeyRows
	res.Customers = computed.Report.Customers
	res.MissingColumns = computed.Report.MissingColumns
	for _, col := range computed.Report.MissingColumns {
		res.AddWarning("aggregation source column missing: " + col)
	}

	if err := j.writer.EnsureDataset(ctx, ref.Dataset); err != nil {
		perr := NewError(StateEnsuringTable, ref.String(), err)
		metrics.RecordError(perr.Category.String())
		return res, perr
	}

	loaded, err := j.writer.Write(ctx, ref, j.schema, computed.Table, warehouse.WriteTruncate)
	if err != nil {
		perr := NewError(StateLoading, ref.String(), err)
		metrics.RecordError(perr.Category.String())
		logger.Error("Feature load failed", zap.Error(err))
		return res, perr
	}
	res.JobID = loaded.JobID
	res.LoadedRows = loaded.OutputRows
	metrics.RecordLoad(ref.Table, string(warehouse.WriteTruncate), loaded.OutputRows, loaded.BadRecords)
	metrics.FeatureCustomers.Set(float64(computed.Report.Customers))

	report, err := j.writer.VerifyRowCount(ctx, ref, int64(computed.Table.Len()))
	switch {
	case errors.Is(err, writer.ErrRowCountMismatch):
		res.AddWarning(err.Error())
	case err != nil:
		res.AddWarning("row count verification failed: " + err.Error())
	default:
		res.Verified = report.RowCountMatches
	}

	logger.Info("Feature table replaced",
		zap.Strings("inputs", res.Inputs),
		zap.Int("customers", res.Customers),
		zap.Int64("loaded_rows", res.LoadedRows),
		zap.Bool("verified", res.Verified))
	return res, nil
}
