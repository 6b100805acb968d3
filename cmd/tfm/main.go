// cmd/tfm/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:           "tfm",
		Short:         "Customer analytics pipeline, training jobs and prediction service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logLevel, logFormat)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
			a.close()
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level")
	root.PersistentFlags().StringVar(&logFormat, "log-format", envOr("LOG_FORMAT", "console"), "Log format (json or console)")

	root.AddCommand(
		newIngestCmd(a),
		newFeaturesCmd(a),
		newAPICmd(a),
		newTriggerCmd(a),
		newTrainCmd(a),
		newPredictCmd(),
		newForecastCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func logger() *zap.Logger {
	return zap.L().Named("cli")
}
