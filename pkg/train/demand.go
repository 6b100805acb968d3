// pkg/train/demand.go
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/reader"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
)

// ridge penalises every term but the intercept so short histories stay solvable
const ridge = 1e-4

var dsLayouts = []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339}

// DemandFit configures the demand regression
type DemandFit struct {
	WeeklyOrder   int
	YearlyOrder   int
	IntervalWidth float64
}

// DefaultDemandFit returns the weekly order 3, yearly order 10, 80% interval fit
func DefaultDemandFit() DemandFit {
	return DemandFit{
		WeeklyOrder:   predict.DefaultWeeklyOrder,
		YearlyOrder:   predict.DefaultYearlyOrder,
		IntervalWidth: predict.DefaultIntervalWidth,
	}
}

// Fit regresses y on trend and seasonality terms by least squares
func (f DemandFit) Fit(ds []time.Time, y []float64) (*predict.DemandModel, error) {
	if len(ds) != len(y) {
		return nil, fmt.Errorf("%d timestamps for %d observations", len(ds), len(y))
	}
	if len(ds) < 2 {
		return nil, fmt.Errorf("%w: %d observations", ErrNotEnoughData, len(ds))
	}

	origin, _ := span(ds)
	n := len(ds)
	p := predict.Terms(f.WeeklyOrder, f.YearlyOrder)
	design := mat.NewDense(n+p-1, p, nil)
	target := mat.NewVecDense(n+p-1, nil)
	for i, ts := range ds {
		design.SetRow(i, predict.DesignRow(predict.DaysSince(origin, ts), f.WeeklyOrder, f.YearlyOrder))
		target.SetVec(i, y[i])
	}
	for j := 1; j < p; j++ {
		design.Set(n+j-1, j, math.Sqrt(ridge))
	}

	var beta mat.VecDense
	if err := beta.SolveVec(design, target); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("solve demand regression: %w", err)
		}
		zap.L().Named("demand_fit").Warn("Demand regression is ill-conditioned", zap.Float64("condition", float64(cond)))
	}

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j)
	}

	residuals := make([]float64, n)
	for i, ts := range ds {
		row := predict.DesignRow(predict.DaysSince(origin, ts), f.WeeklyOrder, f.YearlyOrder)
		residuals[i] = y[i] - floats.Dot(row, coef)
	}
	dof := n - p
	if dof < 1 {
		dof = n
	}
	sigma := math.Sqrt(floats.Dot(residuals, residuals) / float64(dof))

	m := &predict.DemandModel{
		Origin:        origin,
		Coefficients:  coef,
		WeeklyOrder:   f.WeeklyOrder,
		YearlyOrder:   f.YearlyOrder,
		Sigma:         sigma,
		IntervalWidth: f.IntervalWidth,
		Observations:  n,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// DemandOptions configures a DemandTrainer
type DemandOptions struct {
	Bucket   string
	History  string
	Artifact string
	Fit      DemandFit
}

// DemandTrainer fits the demand model from a ds,y history object
type DemandTrainer struct {
	reader *reader.Reader
	store  storage.ObjectStore
	opts   DemandOptions
	now    func() time.Time
	logger *zap.Logger
}

// DemandReport describes a training run
type DemandReport struct {
	RunID        string        `json:"run_id"`
	Observations int           `json:"observations"`
	Skipped      int           `json:"skipped"`
	From         time.Time     `json:"from"`
	To           time.Time     `json:"to"`
	Sigma        float64       `json:"sigma"`
	Artifact     string        `json:"artifact"`
	Duration     time.Duration `json:"duration"`
}

// NewDemandTrainer creates a demand trainer
func NewDemandTrainer(store storage.ObjectStore, opts DemandOptions) *DemandTrainer {
	if opts.Fit == (DemandFit{}) {
		opts.Fit = DefaultDemandFit()
	}
	return &DemandTrainer{
		reader: reader.New(store),
		store:  store,
		opts:   opts,
		now:    time.Now,
		logger: zap.L().Named("demand_trainer"),
	}
}

// Run fits the model and uploads the artifact
func (t *DemandTrainer) Run(ctx context.Context) (*DemandReport, error) {
	start := time.Now()
	report := &DemandReport{
		RunID:    uuid.New().String(),
		Artifact: storage.Object{Bucket: t.opts.Bucket, Name: t.opts.Artifact}.URI(),
	}
	defer func() { report.Duration = time.Since(start) }()

	table, err := t.reader.ReadObject(ctx, t.opts.Bucket, t.opts.History)
	if err != nil {
		return report, err
	}
	ds, y, skipped, err := History(table)
	if err != nil {
		return report, err
	}
	report.Skipped = skipped

	m, err := t.opts.Fit.Fit(ds, y)
	if err != nil {
		return report, err
	}
	m.TrainedAt = t.now().UTC()
	report.Observations = m.Observations
	report.Sigma = m.Sigma
	report.From, report.To = span(ds)

	if err := predict.SaveArtifact(ctx, t.store, t.opts.Bucket, t.opts.Artifact, m); err != nil {
		return report, err
	}
	t.logger.Info("Uploaded demand model",
		zap.String("run_id", report.RunID),
		zap.String("artifact", report.Artifact),
		zap.Int("observations", report.Observations),
		zap.Int("skipped", skipped),
		zap.Float64("sigma", m.Sigma))
	return report, nil
}

// History extracts the ds and y columns. Rows with an unparseable date or a
// non-numeric value are skipped and counted.
func History(table *model.Table) ([]time.Time, []float64, int, error) {
	if !table.HasColumn("ds") || !table.HasColumn("y") {
		return nil, nil, 0, fmt.Errorf("history %s needs ds and y columns", table.Name)
	}

	var (
		ds      []time.Time
		y       []float64
		skipped int
	)
	dsCol, yCol := table.Column("ds"), table.Column("y")
	for i := range dsCol {
		ts, ok := parseDS(dsCol[i])
		v, vok := yCol[i].Float()
		if !ok || !vok {
			skipped++
			continue
		}
		ds = append(ds, ts)
		y = append(y, v)
	}
	return ds, y, skipped, nil
}

func parseDS(v model.Value) (time.Time, bool) {
	if v.IsNull() {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(v.Str)
	for _, layout := range dsLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func span(ds []time.Time) (from, to time.Time) {
	from, to = ds[0], ds[0]
	for _, ts := range ds[1:] {
		if ts.Before(from) {
			from = ts
		}
		if ts.After(to) {
			to = ts
		}
	}
	return from, to
}
