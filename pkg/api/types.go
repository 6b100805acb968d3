// pkg/api/types.go
package api

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
)

// DateLayout is the start_date format of forecast requests
const DateLayout = "2006-01-02"

// TimestampLayout is the ds format of forecast responses
const TimestampLayout = "2006-01-02 15:04:05"

// ClusterRequest is the body of POST /predict. Pointers tell a missing field
// apart from a zero.
type ClusterRequest struct {
	TotalSpent            *float64 `json:"total_spent" validate:"required,gte=0"`
	PurchaseFrequency     *float64 `json:"purchase_frequency" validate:"required,gte=0"`
	AverageOrderValue     *float64 `json:"average_order_value" validate:"required,gte=0"`
	NumReviews            *int     `json:"num_reviews" validate:"required,gte=0"`
	AvgReviewScore        *float64 `json:"avg_review_score" validate:"required,gte=0,lte=5"`
	DaysSinceLastPurchase *float64 `json:"days_since_last_purchase" validate:"required,gte=0"`
}

// Input converts a validated request
func (r ClusterRequest) Input() predict.ClusterInput {
	return predict.ClusterInput{
		TotalSpent:            *r.TotalSpent,
		PurchaseFrequency:     *r.PurchaseFrequency,
		AverageOrderValue:     *r.AverageOrderValue,
		NumReviews:            *r.NumReviews,
		AvgReviewScore:        *r.AvgReviewScore,
		DaysSinceLastPurchase: *r.DaysSinceLastPurchase,
	}
}

// ClusterResponse is the body of a successful POST /predict
type ClusterResponse struct {
	Prediction int `json:"prediction"`
}

// ForecastRequest is the body of POST /demand_predict
type ForecastRequest struct {
	Days      int    `json:"days" validate:"required,min=1,max=3650"`
	StartDate string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Start returns the parsed start date, or the zero time when none was given
func (r ForecastRequest) Start() (time.Time, error) {
	if r.StartDate == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, r.StartDate)
}

// ForecastPoint is one day of a forecast response
type ForecastPoint struct {
	DS    string  `json:"ds"`
	YHat  float64 `json:"yhat"`
	Lower float64 `json:"yhat_lower"`
	Upper float64 `json:"yhat_upper"`
}

// ForecastResponse is the body of a successful POST /demand_predict
type ForecastResponse struct {
	Forecast []ForecastPoint `json:"forecast"`
}

// NewForecastResponse formats forecast points for the wire
func NewForecastResponse(points []predict.ForecastPoint) ForecastResponse {
	out := ForecastResponse{Forecast: make([]ForecastPoint, len(points))}
	for i, p := range points {
		out.Forecast[i] = ForecastPoint{
			DS:    p.DS.Format(TimestampLayout),
			YHat:  p.YHat,
			Lower: p.Lower,
			Upper: p.Upper,
		}
	}
	return out
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse reports which models are loaded
type HealthResponse struct {
	Status       string `json:"status"`
	ClusterModel bool   `json:"cluster_model"`
	DemandModel  bool   `json:"demand_model"`
	Ingestion    bool   `json:"ingestion"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationDetail renders validation failures as one message
func validationDetail(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
