// pkg/train/clusters.go
package train

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/metrics"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/warehouse"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/writer"
)

// featureColumns maps model inputs to feature table columns where the names differ
var featureColumns = map[string]string{
	"days_since_last_purchase": "days_since_purchase",
}

// FeatureComputer produces the per-customer feature table
type FeatureComputer interface {
	Features(ctx context.Context) (*model.Table, error)
}

// ClusterOptions configures a ClusterTrainer
type ClusterOptions struct {
	Bucket   string
	Artifact string
	Dataset  string
	Table    string
	Clusters int
	Seed     int64
}

// ClusterTrainer fits the customer segmentation model
type ClusterTrainer struct {
	features FeatureComputer
	store    storage.ObjectStore
	writer   *writer.Writer
	schema   schema.TableSchema
	opts     ClusterOptions
	now      func() time.Time
	logger   *zap.Logger
}

// ClusterReport describes a training run
type ClusterReport struct {
	RunID      string        `json:"run_id"`
	Customers  int           `json:"customers"`
	Clusters   int           `json:"clusters"`
	Sizes      []int         `json:"sizes"`
	Inertia    float64       `json:"inertia"`
	Iterations int           `json:"iterations"`
	Imputed    []string      `json:"imputed,omitempty"`
	Artifact   string        `json:"artifact"`
	Table      string        `json:"table,omitempty"`
	LoadedRows int64         `json:"loaded_rows"`
	Duration   time.Duration `json:"duration"`
}

// NewClusterTrainer creates a trainer. When w is nil the assignments are not
// written to the warehouse.
func NewClusterTrainer(
	fc FeatureComputer,
	store storage.ObjectStore,
	w *writer.Writer,
	catalog *schema.Catalog,
	opts ClusterOptions,
) (*ClusterTrainer, error) {
	if fc == nil || store == nil {
		return nil, errors.New("feature source and object store are required")
	}
	if opts.Clusters <= 0 {
		return nil, fmt.Errorf("cluster count must be positive, got %d", opts.Clusters)
	}

	t := &ClusterTrainer{
		features: fc,
		store:    store,
		writer:   w,
		opts:     opts,
		now:      time.Now,
		logger:   zap.L().Named("cluster_trainer"),
	}
	if w != nil {
		if catalog == nil {
			return nil, errors.New("catalog is required with a writer")
		}
		entry, ok := catalog.Lookup(opts.Table)
		if !ok {
			return nil, fmt.Errorf("no schema declared for assignment table %q", opts.Table)
		}
		t.schema = entry.Schema
		if t.opts.Dataset == "" {
			t.opts.Dataset = entry.Dataset
		}
	}
	return t, nil
}

// Run trains the model, uploads the artifact and replaces the assignment table
func (t *ClusterTrainer) Run(ctx context.Context) (*ClusterReport, error) {
	start := time.Now()
	report := &ClusterReport{
		RunID:    uuid.New().String(),
		Clusters: t.opts.Clusters,
		Artifact: storage.Object{Bucket: t.opts.Bucket, Name: t.opts.Artifact}.URI(),
	}
	logger := t.logger.With(zap.String("run_id", report.RunID))
	defer func() { report.Duration = time.Since(start) }()

	table, err := t.features.Features(ctx)
	if err != nil {
		return report, fmt.Errorf("compute features: %w", err)
	}

	ids, data, imputed, err := FeatureMatrix(table)
	if err != nil {
		return report, err
	}
	report.Customers = len(ids)
	report.Imputed = imputed

	scaler := FitScaler(data)
	scaled := make([][]float64, len(data))
	for i, x := range data {
		if scaled[i], err = scaler.Transform(x); err != nil {
			return report, err
		}
	}

	fit, err := NewKMeans(t.opts.Clusters, t.opts.Seed).Fit(scaled)
	if err != nil {
		return report, err
	}
	report.Inertia = fit.Inertia
	report.Iterations = fit.Iterations
	report.Sizes = make([]int, t.opts.Clusters)
	for _, l := range fit.Labels {
		report.Sizes[l]++
	}

	m := &predict.ClusterModel{
		Features:  append([]string(nil), predict.ClusterFeatures...),
		Scaler:    scaler,
		Centroids: fit.Centroids,
		Seed:      t.opts.Seed,
		Inertia:   fit.Inertia,
		TrainedAt: t.now().UTC(),
	}
	if err := m.Validate(); err != nil {
		return report, err
	}
	if err := predict.SaveArtifact(ctx, t.store, t.opts.Bucket, t.opts.Artifact, m); err != nil {
		return report, err
	}
	logger.Info("Uploaded cluster model",
		zap.String("artifact", report.Artifact),
		zap.Int("customers", report.Customers),
		zap.Float64("inertia", fit.Inertia),
		zap.Int("iterations", fit.Iterations))

	if t.writer == nil {
		return report, nil
	}

	ref := warehouse.TableRef{Dataset: t.opts.Dataset, Table: t.opts.Table}
	report.Table = ref.String()
	if err := t.writer.EnsureDataset(ctx, ref.Dataset); err != nil {
		return report, err
	}
	loaded, err := t.writer.Write(ctx, ref, t.schema, Assignments(ids, fit.Labels), warehouse.WriteTruncate)
	if err != nil {
		return report, err
	}
	report.LoadedRows = loaded.OutputRows
	metrics.RecordLoad(ref.Table, string(warehouse.WriteTruncate), loaded.OutputRows, loaded.BadRecords)
	return report, nil
}

// FeatureMatrix extracts the model inputs from a feature table. Nulls are
// replaced with the column mean, or zero when the whole column is null; the
// names of imputed columns are returned.
func FeatureMatrix(table *model.Table) (ids []string, data [][]float64, imputed []string, err error) {
	keyIdx := table.ColumnIndex("customer_id")
	if keyIdx < 0 {
		return nil, nil, nil, fmt.Errorf("feature table %s has no customer_id column", table.Name)
	}

	cols := make([][]model.Value, len(predict.ClusterFeatures))
	for j, name := range predict.ClusterFeatures {
		col := name
		if alias, ok := featureColumns[name]; ok && !table.HasColumn(name) {
			col = alias
		}
		if !table.HasColumn(col) {
			return nil, nil, nil, fmt.Errorf("feature table %s has no %s column", table.Name, col)
		}
		cols[j] = table.Column(col)
	}

	n := table.Len()
	if n == 0 {
		return nil, nil, nil, fmt.Errorf("%w: feature table is empty", ErrNotEnoughData)
	}

	ids = make([]string, n)
	data = make([][]float64, n)
	for i := range data {
		ids[i] = table.Rows[i][keyIdx].Str
		data[i] = make([]float64, len(cols))
	}

	for j, col := range cols {
		var present []float64
		missing := false
		for _, v := range col {
			if f, ok := v.Float(); ok {
				present = append(present, f)
			} else {
				missing = true
			}
		}

		fill := 0.0
		if len(present) > 0 {
			fill = stat.Mean(present, nil)
		}
		if missing {
			imputed = append(imputed, predict.ClusterFeatures[j])
		}
		for i, v := range col {
			f, ok := v.Float()
			if !ok {
				f = fill
			}
			data[i][j] = f
		}
	}
	return ids, data, imputed, nil
}

// FitScaler returns the per-feature mean and population standard deviation.
// Constant features get a scale of one.
func FitScaler(data [][]float64) predict.Scaler {
	dim := len(data[0])
	s := predict.Scaler{Mean: make([]float64, dim), Scale: make([]float64, dim)}
	col := make([]float64, len(data))
	for j := 0; j < dim; j++ {
		for i, x := range data {
			col[i] = x[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s
}

// Assignments builds the (customer_id, cluster) table
func Assignments(ids []string, labels []int) *model.Table {
	out := model.NewTable("assignments", "customer_id", "cluster")
	for i, id := range ids {
		out.AppendRow(model.String(id), model.String(strconv.Itoa(labels[i])))
	}
	return out
}
