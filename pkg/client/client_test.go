package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/api"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
)

func TestPredict(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"prediction": 7}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	p, err := c.Predict(context.Background(), predict.ClusterInput{TotalSpent: 10, NumReviews: 2})
	require.NoError(t, err)
	assert.Equal(t, 7, p)
	assert.Equal(t, 10.0, got["total_spent"])
	assert.Equal(t, 2.0, got["num_reviews"])
	assert.Contains(t, got, "days_since_last_purchase")
}

func TestForecast(t *testing.T) {
	var got api.ForecastRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"forecast": [{"ds": "2024-07-01 00:00:00", "yhat": 5, "yhat_lower": 4, "yhat_upper": 6}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	points, err := c.Forecast(context.Background(), 1, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, api.ForecastRequest{Days: 1, StartDate: "2024-07-01"}, got)
	require.Len(t, points, 1)
	assert.Equal(t, 4.0, points[0].Lower)

	got = api.ForecastRequest{}
	_, err = c.Forecast(context.Background(), 3, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, got.StartDate)
}

func TestAPIErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail": "model not loaded"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Predict(context.Background(), predict.ClusterInput{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "model not loaded", apiErr.Detail)
}

func TestAPIErrorPlainBody(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Forecast(context.Background(), 2, time.Time{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream unavailable", apiErr.Detail)
	// no retry
	assert.Equal(t, 1, calls)
}

func TestAgainstServer(t *testing.T) {
	coef := make([]float64, predict.Terms(0, 0))
	coef[0] = 42
	svc := predict.NewService(nil, &predict.DemandModel{
		Coefficients:  coef,
		Sigma:         1,
		IntervalWidth: predict.DefaultIntervalWidth,
	}, nil)
	srv := httptest.NewServer(api.NewServer(svc, nil).Routes())
	defer srv.Close()

	c := New(srv.URL, time.Second)
	points, err := c.Forecast(context.Background(), 2, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 42, points[1].YHat, 1e-9)

	_, err = c.Predict(context.Background(), predict.ClusterInput{AvgReviewScore: 3})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, predict.ErrModelUnavailable.Error(), apiErr.Detail)
}
