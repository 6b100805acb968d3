// pkg/predict/demand.go
package predict

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Seasonality periods in days
const (
	WeeklyPeriod = 7.0
	YearlyPeriod = 365.25
)

// Default Fourier orders and interval width of the demand model
const (
	DefaultWeeklyOrder   = 3
	DefaultYearlyOrder   = 10
	DefaultIntervalWidth = 0.8
)

// ErrInvalidHorizon is returned for forecasts of less than one day
var ErrInvalidHorizon = errors.New("forecast horizon must be at least one day")

// DemandModel is an additive trend plus weekly and yearly seasonality model.
// Coefficients are ordered as DesignRow lays out its terms.
type DemandModel struct {
	Origin        time.Time `json:"origin"`
	Coefficients  []float64 `json:"coefficients"`
	WeeklyOrder   int       `json:"weekly_order"`
	YearlyOrder   int       `json:"yearly_order"`
	Sigma         float64   `json:"sigma"`
	IntervalWidth float64   `json:"interval_width"`
	Observations  int       `json:"observations"`
	TrainedAt     time.Time `json:"trained_at"`
}

// ForecastPoint is the prediction for one day
type ForecastPoint struct {
	DS    time.Time
	YHat  float64
	Lower float64
	Upper float64
}

// Terms returns the number of regression terms for the given orders
func Terms(weeklyOrder, yearlyOrder int) int {
	return 2 + 2*weeklyOrder + 2*yearlyOrder
}

// DesignRow returns the regression terms at t days after the origin:
// intercept, trend, then sin/cos pairs for each weekly and yearly order
func DesignRow(t float64, weeklyOrder, yearlyOrder int) []float64 {
	row := make([]float64, 0, Terms(weeklyOrder, yearlyOrder))
	row = append(row, 1, t)
	row = appendFourier(row, t, WeeklyPeriod, weeklyOrder)
	row = appendFourier(row, t, YearlyPeriod, yearlyOrder)
	return row
}

func appendFourier(row []float64, t, period float64, order int) []float64 {
	for n := 1; n <= order; n++ {
		x := 2 * math.Pi * float64(n) * t / period
		row = append(row, math.Sin(x), math.Cos(x))
	}
	return row
}

// DaysSince returns the fractional number of days from origin to ts
func DaysSince(origin, ts time.Time) float64 {
	return ts.Sub(origin).Hours() / 24
}

// Validate checks the artifact dimensions
func (m *DemandModel) Validate() error {
	if want := Terms(m.WeeklyOrder, m.YearlyOrder); len(m.Coefficients) != want {
		return fmt.Errorf("%w: %d coefficients, expected %d", ErrInvalidModel, len(m.Coefficients), want)
	}
	if m.Sigma < 0 || math.IsNaN(m.Sigma) {
		return fmt.Errorf("%w: sigma %v", ErrInvalidModel, m.Sigma)
	}
	if m.IntervalWidth <= 0 || m.IntervalWidth >= 1 {
		return fmt.Errorf("%w: interval width %v", ErrInvalidModel, m.IntervalWidth)
	}
	return nil
}

// Predict returns the point estimate at ts
func (m *DemandModel) Predict(ts time.Time) float64 {
	return floats.Dot(DesignRow(DaysSince(m.Origin, ts), m.WeeklyOrder, m.YearlyOrder), m.Coefficients)
}

// Forecast predicts days consecutive days starting at start
func (m *DemandModel) Forecast(start time.Time, days int) ([]ForecastPoint, error) {
	if days < 1 {
		return nil, ErrInvalidHorizon
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	z := distuv.UnitNormal.Quantile(0.5 + m.IntervalWidth/2)
	half := z * m.Sigma

	points := make([]ForecastPoint, days)
	for i := range points {
		ds := start.AddDate(0, 0, i)
		yhat := m.Predict(ds)
		points[i] = ForecastPoint{DS: ds, YHat: yhat, Lower: yhat - half, Upper: yhat + half}
	}
	return points, nil
}
