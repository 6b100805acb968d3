// cmd/tfm/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/api"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/config"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
)

func newAPICmd(a *app) *cobra.Command {
	var withIngestion, noRecording bool

	cmd := &cobra.Command{
		Use:   "api",
		Short: "Serve the prediction API",
		Long: `Serve POST /predict and POST /demand_predict from the model artifacts in the
model bucket. A model that cannot be loaded answers its requests with 400.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.predictionService(ctx, !noRecording)
			if err != nil {
				return err
			}

			var ing api.Ingestor
			if withIngestion {
				i, err := a.ingestor(ctx)
				if err != nil {
					return err
				}
				ing = i
			}
			return serve(ctx, a.cfg.Server, api.NewServer(svc, ing).Routes())
		},
	}

	cmd.Flags().BoolVar(&withIngestion, "with-ingestion", false, "Also accept storage events on /events/storage")
	cmd.Flags().BoolVar(&noRecording, "no-recording", false, "Do not store served predictions in the warehouse")
	return cmd
}

func newTriggerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Serve the storage event endpoint that runs ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			ing, err := a.ingestor(cmd.Context())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a.cfg.Server, api.NewServer(nil, ing).Routes())
		},
	}
}

// predictionService loads both artifacts. A missing artifact leaves its
// endpoint unavailable instead of failing startup.
func (a *app) predictionService(ctx context.Context, record bool) (*predict.Service, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	store, err := a.objectStore(ctx)
	if err != nil {
		return nil, err
	}

	cluster, err := predict.LoadClusterModel(ctx, store, cfg.Models.Bucket, cfg.Models.ClusterArtifact)
	if err != nil {
		logger().Error("Cluster model unavailable", zap.Error(err))
		cluster = nil
	}
	demand, err := predict.LoadDemandModel(ctx, store, cfg.Models.Bucket, cfg.Models.DemandArtifact)
	if err != nil {
		logger().Error("Demand model unavailable", zap.Error(err))
		demand = nil
	}

	if !record {
		return predict.NewService(cluster, demand, nil), nil
	}

	catalog, err := a.schemas()
	if err != nil {
		return nil, err
	}
	w, err := a.writer(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := predict.NewRecorder(w, catalog, predict.RecorderOptions{
		Dataset:      cfg.Models.PredictionDataset,
		ClusterTable: cfg.Models.ClusterTable,
		DemandTable:  cfg.Models.DemandTable,
	})
	if err != nil {
		return nil, err
	}
	if err := rec.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("prepare prediction tables: %w", err)
	}
	return predict.NewService(cluster, demand, rec), nil
}

// serve runs the HTTP server until ctx is canceled, then shuts it down
func serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger().Info("Listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger().Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
