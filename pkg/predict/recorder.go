// pkg/predict/recorder.go
package predict

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/metrics"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/warehouse"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/writer"
)

type target struct {
	ref    warehouse.TableRef
	schema schema.TableSchema
}

// Recorder stores served predictions in the warehouse
type Recorder struct {
	writer  *writer.Writer
	cluster target
	demand  target
	now     func() time.Time
	logger  *zap.Logger
}

// RecorderOptions names the prediction tables
type RecorderOptions struct {
	Dataset      string
	ClusterTable string
	DemandTable  string
}

// NewRecorder creates a recorder. Table schemas come from the catalog.
func NewRecorder(w *writer.Writer, catalog *schema.Catalog, opts RecorderOptions) (*Recorder, error) {
	resolve := func(name string) (target, error) {
		entry, ok := catalog.Lookup(name)
		if !ok {
			return target{}, fmt.Errorf("no schema declared for prediction table %q", name)
		}
		dataset := opts.Dataset
		if dataset == "" {
			dataset = entry.Dataset
		}
		return target{ref: warehouse.TableRef{Dataset: dataset, Table: entry.Name}, schema: entry.Schema}, nil
	}

	cluster, err := resolve(opts.ClusterTable)
	if err != nil {
		return nil, err
	}
	demand, err := resolve(opts.DemandTable)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		writer:  w,
		cluster: cluster,
		demand:  demand,
		now:     time.Now,
		logger:  zap.L().Named("recorder"),
	}, nil
}

// ClusterTable returns the table cluster predictions are written to
func (r *Recorder) ClusterTable() warehouse.TableRef {
	return r.cluster.ref
}

// DemandTable returns the table forecasts are written to
func (r *Recorder) DemandTable() warehouse.TableRef {
	return r.demand.ref
}

// Ensure creates the datasets and tables predictions are written to
func (r *Recorder) Ensure(ctx context.Context) error {
	for _, t := range []target{r.cluster, r.demand} {
		if err := r.writer.EnsureDataset(ctx, t.ref.Dataset); err != nil {
			return err
		}
		if _, err := r.writer.EnsureTable(ctx, t.ref, t.schema); err != nil {
			return err
		}
	}
	return nil
}

// RecordCluster stores one cluster prediction with its input
func (r *Recorder) RecordCluster(ctx context.Context, in ClusterInput, prediction int) error {
	row := warehouse.Row{
		"total_spent":              in.TotalSpent,
		"purchase_frequency":       in.PurchaseFrequency,
		"average_order_value":      in.AverageOrderValue,
		"num_reviews":              in.NumReviews,
		"avg_review_score":         in.AvgReviewScore,
		"days_since_last_purchase": in.DaysSinceLastPurchase,
		"prediction_result":        strconv.Itoa(prediction),
		"timestamp":                r.now().UTC(),
	}
	return r.insert(ctx, r.cluster, []warehouse.Row{row})
}

// RecordForecast stores one row per forecast day
func (r *Recorder) RecordForecast(ctx context.Context, points []ForecastPoint) error {
	now := r.now().UTC()
	rows := make([]warehouse.Row, len(points))
	for i, p := range points {
		rows[i] = warehouse.Row{
			"ds":         p.DS,
			"yhat":       p.YHat,
			"yhat_lower": p.Lower,
			"yhat_upper": p.Upper,
			"timestamp":  now,
		}
	}
	return r.insert(ctx, r.demand, rows)
}

func (r *Recorder) insert(ctx context.Context, t target, rows []warehouse.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.writer.Warehouse().InsertRows(ctx, t.ref, t.schema, rows); err != nil {
		metrics.RecordRecordingFailure(t.ref.Table)
		return fmt.Errorf("record into %s: %w", t.ref, err)
	}
	r.logger.Debug("Recorded predictions", zap.String("table", t.ref.String()), zap.Int("rows", len(rows)))
	return nil
}
