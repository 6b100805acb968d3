package predict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/warehouse"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/writer"
)

func testClusterModel() *ClusterModel {
	return &ClusterModel{
		Features: ClusterFeatures,
		Scaler: Scaler{
			Mean:  []float64{100, 2, 50, 1, 4, 30},
			Scale: []float64{50, 1, 25, 1, 1, 15},
		},
		Centroids: [][]float64{
			{0, 0, 0, 0, 0, 0},
			{2, 2, 2, 2, 2, 2},
			{-2, -2, -2, -2, -2, -2},
		},
	}
}

func testDemandModel() *DemandModel {
	coef := make([]float64, Terms(DefaultWeeklyOrder, DefaultYearlyOrder))
	coef[0] = 10
	coef[1] = 0.5
	return &DemandModel{
		Origin:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Coefficients:  coef,
		WeeklyOrder:   DefaultWeeklyOrder,
		YearlyOrder:   DefaultYearlyOrder,
		Sigma:         2,
		IntervalWidth: DefaultIntervalWidth,
	}
}

func TestScalerTransform(t *testing.T) {
	s := Scaler{Mean: []float64{1, 2}, Scale: []float64{2, 4}}
	out, err := s.Transform([]float64{5, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0}, out)

	_, err = s.Transform([]float64{1})
	assert.Error(t, err)
}

func TestClusterPredict(t *testing.T) {
	m := testClusterModel()
	require.NoError(t, m.Validate())

	at := func(in ClusterInput) int {
		p, err := m.Predict(in.Vector())
		require.NoError(t, err)
		return p
	}

	assert.Equal(t, 0, at(ClusterInput{TotalSpent: 100, PurchaseFrequency: 2, AverageOrderValue: 50, NumReviews: 1, AvgReviewScore: 4, DaysSinceLastPurchase: 30}))
	assert.Equal(t, 1, at(ClusterInput{TotalSpent: 200, PurchaseFrequency: 4, AverageOrderValue: 100, NumReviews: 3, AvgReviewScore: 5, DaysSinceLastPurchase: 60}))
	assert.Equal(t, 2, at(ClusterInput{TotalSpent: 0, PurchaseFrequency: 0, AverageOrderValue: 0, NumReviews: 0, AvgReviewScore: 2, DaysSinceLastPurchase: 0}))
}

func TestNearestPrefersLowestIndexOnTies(t *testing.T) {
	assert.Equal(t, 0, Nearest([][]float64{{1}, {-1}}, []float64{0}))
}

func TestClusterModelValidate(t *testing.T) {
	m := testClusterModel()
	m.Scaler.Scale[2] = 0
	assert.ErrorIs(t, m.Validate(), ErrInvalidModel)

	m = testClusterModel()
	m.Centroids = append(m.Centroids, []float64{1})
	assert.ErrorIs(t, m.Validate(), ErrInvalidModel)

	m = testClusterModel()
	m.Centroids = nil
	assert.ErrorIs(t, m.Validate(), ErrInvalidModel)
}

func TestDesignRow(t *testing.T) {
	row := DesignRow(0, 3, 10)
	require.Len(t, row, Terms(3, 10))
	assert.Equal(t, 1.0, row[0])
	assert.Equal(t, 0.0, row[1])
	// sin terms vanish at t=0, cos terms are one
	assert.InDelta(t, 0, row[2], 1e-12)
	assert.InDelta(t, 1, row[3], 1e-12)

	// weekly terms repeat after a week
	a, b := DesignRow(3, 3, 0), DesignRow(10, 3, 0)
	for i := 2; i < len(a); i++ {
		assert.InDelta(t, a[i], b[i], 1e-9)
	}
}

func TestDemandForecast(t *testing.T) {
	m := testDemandModel()
	start := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	points, err := m.Forecast(start, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, start, points[0].DS)
	assert.Equal(t, start.AddDate(0, 0, 2), points[2].DS)
	assert.InDelta(t, 15, points[0].YHat, 1e-9)
	assert.InDelta(t, 16, points[2].YHat, 1e-9)

	// 80% interval of a normal with sigma 2
	half := 2 * 1.2815515655446004
	assert.InDelta(t, 15-half, points[0].Lower, 1e-6)
	assert.InDelta(t, 15+half, points[0].Upper, 1e-6)

	_, err = m.Forecast(start, 0)
	assert.ErrorIs(t, err, ErrInvalidHorizon)
}

func TestDemandModelValidate(t *testing.T) {
	m := testDemandModel()
	m.Coefficients = m.Coefficients[:3]
	assert.ErrorIs(t, m.Validate(), ErrInvalidModel)

	m = testDemandModel()
	m.IntervalWidth = 1
	assert.ErrorIs(t, m.Validate(), ErrInvalidModel)
}

func TestArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	require.NoError(t, SaveArtifact(ctx, store, "models", "cluster.json", testClusterModel()))
	assert.Equal(t, storage.ContentTypeJSON, store.ContentType("models", "cluster.json"))

	loaded, err := LoadClusterModel(ctx, store, "models", "cluster.json")
	require.NoError(t, err)
	assert.Equal(t, testClusterModel().Centroids, loaded.Centroids)

	require.NoError(t, SaveArtifact(ctx, store, "models", "demand.json", testDemandModel()))
	demand, err := LoadDemandModel(ctx, store, "models", "demand.json")
	require.NoError(t, err)
	assert.Equal(t, 2.0, demand.Sigma)

	_, err = LoadClusterModel(ctx, store, "models", "missing.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	store.Put("models", "broken.json", []byte("{"))
	_, err = LoadDemandModel(ctx, store, "models", "broken.json")
	assert.ErrorIs(t, err, ErrInvalidModel)

	// a demand artifact is not a usable cluster model
	_, err = LoadClusterModel(ctx, store, "models", "demand.json")
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func newRecorder(t *testing.T, wh warehouse.Warehouse) *Recorder {
	t.Helper()
	catalog, err := schema.Default()
	require.NoError(t, err)
	r, err := NewRecorder(writer.New(wh, 10), catalog, RecorderOptions{
		ClusterTable: "pred_clust",
		DemandTable:  "demand_predictions",
	})
	require.NoError(t, err)
	return r
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	wh := warehouse.NewMemory()
	r := newRecorder(t, wh)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Ensure(ctx))
	assert.True(t, wh.HasDataset("tabla_pred_clust"))

	require.NoError(t, r.RecordCluster(ctx, ClusterInput{TotalSpent: 10, NumReviews: 2}, 4))
	rows := wh.Rows(r.ClusterTable())
	require.Len(t, rows, 1)
	assert.Equal(t, "4", rows[0]["prediction_result"])
	assert.Equal(t, int64(2), rows[0]["num_reviews"])
	assert.Equal(t, now, rows[0]["timestamp"])

	points, err := testDemandModel().Forecast(time.Date(2024, 5, 2, 15, 30, 0, 0, time.UTC), 2)
	require.NoError(t, err)
	require.NoError(t, r.RecordForecast(ctx, points))
	rows = wh.Rows(r.DemandTable())
	require.Len(t, rows, 2)
	// ds is stored as a date
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), rows[0]["ds"])
}

func TestNewRecorderUnknownTable(t *testing.T) {
	catalog, err := schema.Default()
	require.NoError(t, err)
	_, err = NewRecorder(writer.New(warehouse.NewMemory(), 10), catalog, RecorderOptions{
		ClusterTable: "pred_clust",
		DemandTable:  "nope",
	})
	assert.Error(t, err)
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) RecordCluster(context.Context, ClusterInput, int) error {
	f.calls++
	return errors.New("insert failed")
}

func (f *failingRecorder) RecordForecast(context.Context, []ForecastPoint) error {
	f.calls++
	return errors.New("insert failed")
}

func TestServiceRecordingFailureDoesNotFailRequest(t *testing.T) {
	rec := &failingRecorder{}
	svc := NewService(testClusterModel(), testDemandModel(), rec)

	p, err := svc.PredictCluster(context.Background(), ClusterInput{TotalSpent: 100, PurchaseFrequency: 2, AverageOrderValue: 50, NumReviews: 1, AvgReviewScore: 4, DaysSinceLastPurchase: 30})
	require.NoError(t, err)
	assert.Equal(t, 0, p)

	points, err := svc.Forecast(context.Background(), 5, time.Time{})
	require.NoError(t, err)
	assert.Len(t, points, 5)
	assert.Equal(t, 2, rec.calls)
}

func TestServiceForecastDefaultsToNow(t *testing.T) {
	svc := NewService(nil, testDemandModel(), nil)
	now := time.Date(2024, 3, 1, 8, 15, 30, 500, time.UTC)
	svc.now = func() time.Time { return now }

	points, err := svc.Forecast(context.Background(), 1, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, now.Truncate(time.Second), points[0].DS)

	_, err = svc.PredictCluster(context.Background(), ClusterInput{})
	assert.ErrorIs(t, err, ErrModelUnavailable)

	cluster, demand := svc.Ready()
	assert.False(t, cluster)
	assert.True(t, demand)
}
