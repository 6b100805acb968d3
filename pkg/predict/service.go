// pkg/predict/service.go
package predict

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrModelUnavailable is returned when the model for a request was not loaded
var ErrModelUnavailable = errors.New("model not loaded")

// PredictionRecorder stores served predictions
type PredictionRecorder interface {
	RecordCluster(ctx context.Context, in ClusterInput, prediction int) error
	RecordForecast(ctx context.Context, points []ForecastPoint) error
}

// Service serves inference over immutable loaded models
type Service struct {
	cluster  *ClusterModel
	demand   *DemandModel
	recorder PredictionRecorder
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a prediction service. Either model may be nil, in which
// case its requests fail with ErrModelUnavailable. A nil recorder disables
// recording.
func NewService(cluster *ClusterModel, demand *DemandModel, recorder PredictionRecorder) *Service {
	return &Service{
		cluster:  cluster,
		demand:   demand,
		recorder: recorder,
		now:      time.Now,
		logger:   zap.L().Named("predict"),
	}
}

// Ready reports which models are loaded
func (s *Service) Ready() (cluster, demand bool) {
	return s.cluster != nil, s.demand != nil
}

// PredictCluster assigns the input to a customer segment
func (s *Service) PredictCluster(ctx context.Context, in ClusterInput) (int, error) {
	if s.cluster == nil {
		return 0, ErrModelUnavailable
	}
	prediction, err := s.cluster.Predict(in.Vector())
	if err != nil {
		return 0, err
	}

	if s.recorder != nil {
		if err := s.recorder.RecordCluster(ctx, in, prediction); err != nil {
			s.logger.Warn("Failed to record cluster prediction", zap.Error(err))
		}
	}
	return prediction, nil
}

// Forecast predicts demand for days consecutive days. A zero start means now.
func (s *Service) Forecast(ctx context.Context, days int, start time.Time) ([]ForecastPoint, error) {
	if s.demand == nil {
		return nil, ErrModelUnavailable
	}
	if start.IsZero() {
		start = s.now().UTC().Truncate(time.Second)
	}

	points, err := s.demand.Forecast(start, days)
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		if err := s.recorder.RecordForecast(ctx, points); err != nil {
			s.logger.Warn("Failed to record forecast",
				zap.Int("days", days),
				zap.Error(err))
		}
	}
	return points, nil
}
