// cmd/tfm/client.go
package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/api"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/client"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
)

func addClientFlags(cmd *cobra.Command, url *string, timeout *time.Duration) {
	cmd.Flags().StringVar(url, "api-url", envOr("SERVER_API_URL", "http://localhost:8080"), "Prediction service URL")
	cmd.Flags().DurationVar(timeout, "timeout", 30*time.Second, "Request timeout")
}

// showAPIError prints the service's detail verbatim
func showAPIError(cmd *cobra.Command, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", apiErr.Detail)
	}
	return err
}

func newPredictCmd() *cobra.Command {
	var url string
	var timeout time.Duration
	var in predict.ClusterInput

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Ask the prediction service for a customer's segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client.New(url, timeout).Predict(cmd.Context(), in)
			if err != nil {
				return showAPIError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Predicted cluster: %d\n", p)
			return nil
		},
	}

	addClientFlags(cmd, &url, &timeout)
	cmd.Flags().Float64Var(&in.TotalSpent, "total-spent", 0, "Total amount spent")
	cmd.Flags().Float64Var(&in.PurchaseFrequency, "purchase-frequency", 0, "Number of purchases")
	cmd.Flags().Float64Var(&in.AverageOrderValue, "average-order-value", 0, "Average order value")
	cmd.Flags().IntVar(&in.NumReviews, "num-reviews", 0, "Number of reviews")
	cmd.Flags().Float64Var(&in.AvgReviewScore, "avg-review-score", 0, "Average review score (0-5)")
	cmd.Flags().Float64Var(&in.DaysSinceLastPurchase, "days-since-last-purchase", 0, "Days since the last purchase")
	return cmd
}

func newForecastCmd() *cobra.Command {
	var url, startDate string
	var timeout time.Duration
	var days int

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Ask the prediction service for a demand forecast",
		RunE: func(cmd *cobra.Command, args []string) error {
			var start time.Time
			if startDate != "" {
				var err error
				if start, err = time.Parse(api.DateLayout, startDate); err != nil {
					return fmt.Errorf("invalid --start-date (use YYYY-MM-DD): %w", err)
				}
			}

			points, err := client.New(url, timeout).Forecast(cmd.Context(), days, start)
			if err != nil {
				return showAPIError(cmd, err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ds\tyhat\tyhat_lower\tyhat_upper")
			for _, p := range points {
				fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\n", p.DS, p.YHat, p.Lower, p.Upper)
			}
			return tw.Flush()
		},
	}

	addClientFlags(cmd, &url, &timeout)
	cmd.Flags().IntVar(&days, "days", 30, "Number of days to forecast")
	cmd.Flags().StringVar(&startDate, "start-date", "", "First forecast day (YYYY-MM-DD), defaults to now")
	return cmd
}
