// pkg/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tfm"

var (
	// IngestRunsTotal tracks ingestion runs by final state
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Total number of ingestion runs by final state",
		},
		[]string{"table", "state"},
	)

	// IngestRunDuration tracks ingestion run duration
	IngestRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"table"},
	)

	// CleanedCellsTotal tracks cells touched by cleaning operations
	CleanedCellsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleaner",
			Name:      "cells_total",
			Help:      "Total number of cells repaired or nulled by cleaning",
		},
		[]string{"table", "operation"},
	)

	// RowsLoadedTotal tracks rows written to the warehouse
	RowsLoadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warehouse",
			Name:      "rows_loaded_total",
			Help:      "Total number of rows written by load jobs",
		},
		[]string{"table", "disposition"},
	)

	// BadRecordsTotal tracks rows skipped by load jobs
	BadRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warehouse",
			Name:      "bad_records_total",
			Help:      "Total number of rows rejected by load jobs",
		},
		[]string{"table"},
	)

	// ErrorsTotal tracks pipeline errors by category
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Total number of pipeline errors by category",
		},
		[]string{"category"},
	)

	// FeatureCustomers tracks the number of customers in the last feature table
	FeatureCustomers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "customers",
			Help:      "Number of customers in the last computed feature table",
		},
	)

	// PredictionsTotal tracks prediction requests by endpoint and outcome
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "predictions_total",
			Help:      "Total number of prediction requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	// PredictionDuration tracks inference latency
	PredictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "prediction_duration_seconds",
			Help:      "Duration of prediction requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"endpoint"},
	)

	// RecordingFailuresTotal tracks predictions that could not be stored
	RecordingFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "recording_failures_total",
			Help:      "Total number of predictions that could not be written to the warehouse",
		},
		[]string{"table"},
	)
)

// RecordIngestRun records the final state of an ingestion run
func RecordIngestRun(table, state string, duration time.Duration) {
	IngestRunsTotal.WithLabelValues(table, state).Inc()
	IngestRunDuration.WithLabelValues(table).Observe(duration.Seconds())
}

// RecordCleaning records the cells touched by a cleaning operation
func RecordCleaning(table, operation string, cells int) {
	CleanedCellsTotal.WithLabelValues(table, operation).Add(float64(cells))
}

// RecordLoad records a finished load job
func RecordLoad(table, disposition string, rows, badRecords int64) {
	RowsLoadedTotal.WithLabelValues(table, disposition).Add(float64(rows))
	if badRecords > 0 {
		BadRecordsTotal.WithLabelValues(table).Add(float64(badRecords))
	}
}

// RecordError records a categorized pipeline error
func RecordError(category string) {
	ErrorsTotal.WithLabelValues(category).Inc()
}

// RecordPrediction records a prediction request
func RecordPrediction(endpoint, status string, duration time.Duration) {
	PredictionsTotal.WithLabelValues(endpoint, status).Inc()
	PredictionDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRecordingFailure records a prediction that could not be stored
func RecordRecordingFailure(table string) {
	RecordingFailuresTotal.WithLabelValues(table).Inc()
}
