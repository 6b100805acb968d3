package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/pipeline"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
)

type fakePredictor struct {
	lastInput predict.ClusterInput
	lastDays  int
	lastStart time.Time
	err       error
}

func (f *fakePredictor) PredictCluster(_ context.Context, in predict.ClusterInput) (int, error) {
	f.lastInput = in
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func (f *fakePredictor) Forecast(_ context.Context, days int, start time.Time) ([]predict.ForecastPoint, error) {
	f.lastDays, f.lastStart = days, start
	if f.err != nil {
		return nil, f.err
	}
	if start.IsZero() {
		start = time.Date(2024, 6, 1, 13, 45, 10, 0, time.UTC)
	}
	points := make([]predict.ForecastPoint, days)
	for i := range points {
		points[i] = predict.ForecastPoint{DS: start.AddDate(0, 0, i), YHat: 10, Lower: 8, Upper: 12}
	}
	return points, nil
}

func (f *fakePredictor) Ready() (bool, bool) { return true, f.err == nil }

type fakeIngestor struct {
	bucket, name string
	err          error
}

func (f *fakeIngestor) Ingest(_ context.Context, bucket, name string) (*pipeline.IngestResult, error) {
	f.bucket, f.name = bucket, name
	res := pipeline.NewIngestResult("gs://" + bucket + "/" + name)
	if f.err != nil {
		perr := pipeline.NewError(pipeline.StateLoading, name, f.err)
		res.Fail(perr)
		return res, perr
	}
	res.Done()
	return res, nil
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Detail
}

const validCluster = `{"total_spent": 120.5, "purchase_frequency": 2, "average_order_value": 60.25,
	"num_reviews": 1, "avg_review_score": 4, "days_since_last_purchase": 0}`

func TestPredict(t *testing.T) {
	p := &fakePredictor{}
	h := NewServer(p, nil).Routes()

	rec := do(t, h, http.MethodPost, "/predict", validCluster, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"prediction": 3}`, rec.Body.String())
	assert.Equal(t, 120.5, p.lastInput.TotalSpent)
	assert.Equal(t, 1, p.lastInput.NumReviews)
	// zero is a valid value, not a missing one
	assert.Equal(t, 0.0, p.lastInput.DaysSinceLastPurchase)
}

func TestPredictValidation(t *testing.T) {
	h := NewServer(&fakePredictor{}, nil).Routes()

	rec := do(t, h, http.MethodPost, "/predict", `{"total_spent": 1}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, detail(t, rec), "purchase_frequency is required")

	rec = do(t, h, http.MethodPost, "/predict", strings.Replace(validCluster, `"avg_review_score": 4`, `"avg_review_score": 7`, 1), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, detail(t, rec), "avg_review_score must be at most 5")

	rec = do(t, h, http.MethodPost, "/predict", strings.Replace(validCluster, `"total_spent": 120.5`, `"total_spent": -1`, 1), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/predict", `{"total_spent": "lots"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, detail(t, rec), "invalid request body")
}

func TestPredictInferenceFailure(t *testing.T) {
	h := NewServer(&fakePredictor{err: predict.ErrModelUnavailable}, nil).Routes()
	rec := do(t, h, http.MethodPost, "/predict", validCluster, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, predict.ErrModelUnavailable.Error(), detail(t, rec))
}

func TestDemandPredict(t *testing.T) {
	p := &fakePredictor{}
	h := NewServer(p, nil).Routes()

	rec := do(t, h, http.MethodPost, "/demand_predict", `{"days": 2, "start_date": "2024-07-01"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), p.lastStart)

	var resp ForecastResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Forecast, 2)
	assert.Equal(t, "2024-07-01 00:00:00", resp.Forecast[0].DS)
	assert.Equal(t, "2024-07-02 00:00:00", resp.Forecast[1].DS)
	assert.Equal(t, ForecastPoint{DS: "2024-07-01 00:00:00", YHat: 10, Lower: 8, Upper: 12}, resp.Forecast[0])

	// without a start date the forecast starts now, keeping the time of day
	rec = do(t, h, http.MethodPost, "/demand_predict", `{"days": 1}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, p.lastStart.IsZero())
	assert.Contains(t, rec.Body.String(), `"2024-06-01 13:45:10"`)
}

func TestDemandPredictValidation(t *testing.T) {
	h := NewServer(&fakePredictor{}, nil).Routes()

	for _, body := range []string{`{"days": 0}`, `{}`, `{"days": 3, "start_date": "01/07/2024"}`, `[`} {
		rec := do(t, h, http.MethodPost, "/demand_predict", body, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		assert.NotEmpty(t, detail(t, rec), body)
	}
}

func TestHealth(t *testing.T) {
	h := NewServer(&fakePredictor{}, &fakeIngestor{}).Routes()
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","cluster_model":true,"demand_model":true,"ingestion":true}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewServer(&fakePredictor{}, nil).Routes()
	do(t, h, http.MethodPost, "/predict", validCluster, nil)

	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tfm_api_predictions_total")
}

func TestRoutesNotMountedWithoutBackends(t *testing.T) {
	h := NewServer(nil, nil).Routes()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/predict", validCluster, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/events/storage", `{}`, nil).Code)
}

func TestStorageEventBinaryMode(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewServer(nil, ing).Routes()

	rec := do(t, h, http.MethodPost, "/events/storage", `{"bucket": "cargacsv2ml", "name": "orders.csv"}`, map[string]string{
		"Ce-Id":   "1",
		"Ce-Type": FinalizedEvent,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cargacsv2ml", ing.bucket)
	assert.Equal(t, "orders.csv", ing.name)

	var res pipeline.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StateDone, res.State)
}

func TestStorageEventStructuredMode(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewServer(nil, ing).Routes()

	body := `{"specversion": "1.0", "id": "2", "type": "google.cloud.storage.object.v1.finalized",
		"source": "//storage.googleapis.com/projects/_/buckets/b", "data": {"bucket": "b", "name": "reviews.csv"}}`
	rec := do(t, h, http.MethodPost, "/events/storage", body, map[string]string{
		"Content-Type": ContentTypeCloudEvent + "; charset=utf-8",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reviews.csv", ing.name)
}

func TestStorageEventFailedRunIsAcknowledged(t *testing.T) {
	ing := &fakeIngestor{err: errors.New("warehouse down")}
	h := NewServer(nil, ing).Routes()

	rec := do(t, h, http.MethodPost, "/events/storage", `{"bucket": "b", "name": "orders.csv"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res pipeline.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StateFailed, res.State)
	assert.Contains(t, res.Error, "warehouse down")
}

func TestStorageEventRejected(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewServer(nil, ing).Routes()

	rec := do(t, h, http.MethodPost, "/events/storage", `{"bucket": "b"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, detail(t, rec), "bucket and name are required")

	rec = do(t, h, http.MethodPost, "/events/storage", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ing.name)
}

func TestStorageEventIgnoresOtherTypes(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewServer(nil, ing).Routes()

	rec := do(t, h, http.MethodPost, "/events/storage", `{"bucket": "b", "name": "orders.csv"}`, map[string]string{
		"Ce-Type": "google.cloud.storage.object.v1.deleted",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ing.name)
}

func TestServiceForecastOverHTTP(t *testing.T) {
	coef := make([]float64, predict.Terms(0, 0))
	coef[0] = 100
	svc := predict.NewService(nil, &predict.DemandModel{
		Origin:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Coefficients:  coef,
		Sigma:         1,
		IntervalWidth: predict.DefaultIntervalWidth,
	}, nil)
	h := NewServer(svc, nil).Routes()

	rec := do(t, h, http.MethodPost, "/demand_predict", `{"days": 3, "start_date": "2024-02-01"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ForecastResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Forecast, 3)
	assert.Equal(t, "2024-02-03 00:00:00", resp.Forecast[2].DS)
	assert.InDelta(t, 100, resp.Forecast[2].YHat, 1e-9)
	assert.Less(t, resp.Forecast[2].Lower, resp.Forecast[2].YHat)

	rec = do(t, h, http.MethodPost, "/predict", validCluster, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
