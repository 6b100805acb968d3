// pkg/predict/cluster.go
package predict

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// ClusterFeatures is the input vector layout of the cluster model
var ClusterFeatures = []string{
	"total_spent",
	"purchase_frequency",
	"average_order_value",
	"num_reviews",
	"avg_review_score",
	"days_since_last_purchase",
}

// ErrInvalidModel is returned for artifacts that cannot be used for inference
var ErrInvalidModel = errors.New("invalid model artifact")

// ClusterInput is one customer to assign to a segment
type ClusterInput struct {
	TotalSpent            float64 `json:"total_spent"`
	PurchaseFrequency     float64 `json:"purchase_frequency"`
	AverageOrderValue     float64 `json:"average_order_value"`
	NumReviews            int     `json:"num_reviews"`
	AvgReviewScore        float64 `json:"avg_review_score"`
	DaysSinceLastPurchase float64 `json:"days_since_last_purchase"`
}

// Vector returns the input in ClusterFeatures order
func (in ClusterInput) Vector() []float64 {
	return []float64{
		in.TotalSpent,
		in.PurchaseFrequency,
		in.AverageOrderValue,
		float64(in.NumReviews),
		in.AvgReviewScore,
		in.DaysSinceLastPurchase,
	}
}

// Scaler standardises features as (x - mean) / scale
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns the standardised copy of x
func (s Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) || len(x) != len(s.Scale) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	floats.SubTo(out, x, s.Mean)
	floats.Div(out, s.Scale)
	return out, nil
}

// ClusterModel assigns standardised vectors to the nearest centroid
type ClusterModel struct {
	Features  []string    `json:"features"`
	Scaler    Scaler      `json:"scaler"`
	Centroids [][]float64 `json:"centroids"`
	Seed      int64       `json:"seed"`
	Inertia   float64     `json:"inertia"`
	TrainedAt time.Time   `json:"trained_at"`
}

// Validate checks the artifact dimensions
func (m *ClusterModel) Validate() error {
	n := len(m.Features)
	if n == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidModel)
	}
	if len(m.Scaler.Mean) != n || len(m.Scaler.Scale) != n {
		return fmt.Errorf("%w: scaler has %d/%d entries for %d features",
			ErrInvalidModel, len(m.Scaler.Mean), len(m.Scaler.Scale), n)
	}
	for i, s := range m.Scaler.Scale {
		if s == 0 || math.IsNaN(s) {
			return fmt.Errorf("%w: zero scale for %s", ErrInvalidModel, m.Features[i])
		}
	}
	if len(m.Centroids) == 0 {
		return fmt.Errorf("%w: no centroids", ErrInvalidModel)
	}
	for i, c := range m.Centroids {
		if len(c) != n {
			return fmt.Errorf("%w: centroid %d has %d dimensions, expected %d", ErrInvalidModel, i, len(c), n)
		}
	}
	return nil
}

// Predict returns the index of the centroid nearest to the standardised x
func (m *ClusterModel) Predict(x []float64) (int, error) {
	scaled, err := m.Scaler.Transform(x)
	if err != nil {
		return 0, err
	}
	for i, v := range scaled {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("feature %s is not finite", m.Features[i])
		}
	}
	return Nearest(m.Centroids, scaled), nil
}

// Nearest returns the index of the centroid closest to x, the lowest index on ties
func Nearest(centroids [][]float64, x []float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		if d := floats.Distance(c, x, 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
