// pkg/api/handlers.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/metrics"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Ingestion: s.ingestor != nil}
	if s.predictor != nil {
		resp.ClusterModel, resp.DemandModel = s.predictor.Ready()
	}
	render.JSON(w, r, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { metrics.RecordPrediction("predict", strconv.Itoa(status), time.Since(start)) }()

	var req ClusterRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		status = http.StatusUnprocessableEntity
		s.fail(w, r, status, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		status = http.StatusUnprocessableEntity
		s.fail(w, r, status, validationDetail(err))
		return
	}

	prediction, err := s.predictor.PredictCluster(r.Context(), req.Input())
	if err != nil {
		s.logger.Warn("Cluster prediction failed", zap.Error(err))
		status = http.StatusBadRequest
		s.fail(w, r, status, err.Error())
		return
	}
	render.JSON(w, r, ClusterResponse{Prediction: prediction})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() { metrics.RecordPrediction("demand_predict", strconv.Itoa(status), time.Since(start)) }()

	var req ForecastRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		status = http.StatusUnprocessableEntity
		s.fail(w, r, status, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		status = http.StatusUnprocessableEntity
		s.fail(w, r, status, validationDetail(err))
		return
	}
	from, err := req.Start()
	if err != nil {
		status = http.StatusUnprocessableEntity
		s.fail(w, r, status, "start_date: "+err.Error())
		return
	}

	points, err := s.predictor.Forecast(r.Context(), req.Days, from)
	if err != nil {
		s.logger.Warn("Forecast failed", zap.Int("days", req.Days), zap.Error(err))
		status = http.StatusBadRequest
		s.fail(w, r, status, err.Error())
		return
	}
	render.JSON(w, r, NewForecastResponse(points))
}

// handleStorageEvent always acknowledges decodable events with 200 so the
// delivery is not retried; the body carries the run result.
func (s *Server) handleStorageEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := DecodeStorageEvent(r)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	logger := s.logger.With(
		zap.String("event_id", ev.ID),
		zap.String("bucket", ev.Data.Bucket),
		zap.String("object", ev.Data.Name))

	if !ev.Finalized() {
		logger.Debug("Ignoring storage event", zap.String("type", ev.Type))
		render.JSON(w, r, map[string]string{"ignored": ev.Type})
		return
	}

	res, err := s.ingestor.Ingest(r.Context(), ev.Data.Bucket, ev.Data.Name)
	if err != nil {
		logger.Error("Ingestion failed", zap.Error(err))
		if res == nil {
			render.JSON(w, r, ErrorResponse{Detail: err.Error()})
			return
		}
	}
	render.JSON(w, r, res)
}
