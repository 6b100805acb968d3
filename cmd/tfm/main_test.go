package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"ingest"}, {"features"}, {"api"}, {"trigger"},
		{"train", "clusters"}, {"train", "demand"}, {"predict"}, {"forecast"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestForecastCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"forecast": [{"ds": "2024-07-01 00:00:00", "yhat": 5.5, "yhat_lower": 4, "yhat_upper": 7}]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"forecast", "--api-url", srv.URL, "--days", "1", "--start-date", "2024-07-01"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "2024-07-01 00:00:00")
	assert.Contains(t, out.String(), "5.50")
}

func TestPredictCommandShowsDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail": "model not loaded"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	root := newRootCmd()
	root.SetErr(&stderr)
	root.SetArgs([]string{"predict", "--api-url", srv.URL, "--total-spent", "10"})
	assert.Error(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, stderr.String(), "Error: model not loaded")
}

func TestForecastRejectsBadDate(t *testing.T) {
	root := newRootCmd()
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"forecast", "--start-date", "07/01/2024"})
	assert.Error(t, root.ExecuteContext(context.Background()))
}
