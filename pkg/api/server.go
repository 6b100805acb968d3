// pkg/api/server.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/pipeline"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
)

// Predictor serves model inference
type Predictor interface {
	PredictCluster(ctx context.Context, in predict.ClusterInput) (int, error)
	Forecast(ctx context.Context, days int, start time.Time) ([]predict.ForecastPoint, error)
	Ready() (cluster, demand bool)
}

// Ingestor runs the ingestion pipeline for one stored object
type Ingestor interface {
	Ingest(ctx context.Context, bucket, name string) (*pipeline.IngestResult, error)
}

// Server exposes prediction and ingestion over HTTP
type Server struct {
	predictor Predictor
	ingestor  Ingestor
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewServer creates a server. Routes of a nil predictor or ingestor are not
// mounted.
func NewServer(p Predictor, ing Ingestor) *Server {
	return &Server{
		predictor: p,
		ingestor:  ing,
		validate:  newValidator(),
		logger:    zap.L().Named("api"),
	}
}

// Routes returns the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/health", s.handleHealth)

		if s.predictor != nil {
			r.Post("/predict", s.handlePredict)
			r.Post("/demand_predict", s.handleForecast)
		}
		if s.ingestor != nil {
			r.Post("/events/storage", s.handleStorageEvent)
		}
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("Request served",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Detail: detail})
}
