// cmd/tfm/train.go
package main

import (
	"github.com/spf13/cobra"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/train"
)

func newTrainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the prediction models and upload their artifacts",
	}
	cmd.AddCommand(newTrainClustersCmd(a), newTrainDemandCmd(a))
	return cmd
}

func newTrainClustersCmd(a *app) *cobra.Command {
	var clusters int
	var seed int64
	var skipAssignments bool

	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Fit the customer segmentation model",
		Long: `Aggregate the raw sources into customer features, fit k-means on the
standardised features and upload the model. The (customer_id, cluster) table is
replaced unless --skip-assignments is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			job, err := a.featureJob(ctx, false)
			if err != nil {
				return err
			}
			cfg := a.cfg
			if !cmd.Flags().Changed("clusters") {
				clusters = cfg.Models.Clusters
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Models.Seed
			}

			opts := train.ClusterOptions{
				Bucket:   cfg.Models.Bucket,
				Artifact: cfg.Models.ClusterArtifact,
				Dataset:  cfg.Pipeline.FeatureDataset,
				Table:    cfg.Models.AssignmentTable,
				Clusters: clusters,
				Seed:     seed,
			}
			store, err := a.objectStore(ctx)
			if err != nil {
				return err
			}

			var trainer *train.ClusterTrainer
			if skipAssignments {
				trainer, err = train.NewClusterTrainer(job, store, nil, nil, opts)
			} else {
				w, werr := a.writer(ctx)
				if werr != nil {
					return werr
				}
				catalog, cerr := a.schemas()
				if cerr != nil {
					return cerr
				}
				trainer, err = train.NewClusterTrainer(job, store, w, catalog, opts)
			}
			if err != nil {
				return err
			}

			report, err := trainer.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().IntVar(&clusters, "clusters", 9, "Number of clusters (defaults to MODELS_CLUSTERS)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed (defaults to MODELS_SEED)")
	cmd.Flags().BoolVar(&skipAssignments, "skip-assignments", false, "Only upload the model")
	return cmd
}

func newTrainDemandCmd(a *app) *cobra.Command {
	var history string
	fit := train.DefaultDemandFit()

	cmd := &cobra.Command{
		Use:   "demand",
		Short: "Fit the daily demand model from a ds,y history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.config()
			if err != nil {
				return err
			}
			store, err := a.objectStore(ctx)
			if err != nil {
				return err
			}
			if history == "" {
				history = cfg.Models.DemandHistory
			}

			report, err := train.NewDemandTrainer(store, train.DemandOptions{
				Bucket:   cfg.Models.Bucket,
				History:  history,
				Artifact: cfg.Models.DemandArtifact,
				Fit:      fit,
			}).Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&history, "history", "", "History object in the model bucket (defaults to MODELS_DEMAND_HISTORY)")
	cmd.Flags().IntVar(&fit.WeeklyOrder, "weekly-order", fit.WeeklyOrder, "Fourier order of the weekly seasonality")
	cmd.Flags().IntVar(&fit.YearlyOrder, "yearly-order", fit.YearlyOrder, "Fourier order of the yearly seasonality")
	cmd.Flags().Float64Var(&fit.IntervalWidth, "interval-width", fit.IntervalWidth, "Width of the forecast interval")
	return cmd
}
