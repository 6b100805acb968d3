// cmd/tfm/pipeline.go
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/pipeline"
)

func newIngestCmd(a *app) *cobra.Command {
	var bucket string

	cmd := &cobra.Command{
		Use:   "ingest [object...]",
		Short: "Clean and load raw objects into the warehouse",
		Long: `Run the ingestion pipeline for each named object, as a storage trigger would.
Without arguments the configured source files are ingested.

Example: tfm ingest orders.csv reviews.csv --bucket cargacsv2ml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ing, err := a.ingestor(cmd.Context())
			if err != nil {
				return err
			}
			if bucket == "" {
				bucket = a.cfg.Pipeline.SourceBucket
			}
			if len(args) == 0 {
				args = a.cfg.Pipeline.SourceFiles
			}

			var results []*pipeline.IngestResult
			failed := 0
			for _, name := range args {
				res, err := ing.Ingest(cmd.Context(), bucket, name)
				// a missing source does not fail the batch
				var perr *pipeline.Error
				if err != nil && (!errors.As(err, &perr) || perr.Category.Fatal()) {
					failed++
				}
				results = append(results, res)
			}
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d objects failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Source bucket (defaults to PIPELINE_SOURCE_BUCKET)")
	return cmd
}

func newFeaturesCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Rebuild the per-customer feature table",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.featureJob(cmd.Context(), !dryRun)
			if err != nil {
				return err
			}

			if dryRun {
				computed, err := job.Compute(cmd.Context())
				if err != nil {
					return err
				}
				logger().Info("Computed features",
					zap.Int("customers", computed.Report.Customers),
					zap.Strings("missing", computed.Missing))
				return computed.Table.WriteCSV(cmd.OutOrStdout())
			}

			res, err := job.Run(cmd.Context())
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the features as CSV instead of loading them")
	return cmd
}
