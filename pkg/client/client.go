// pkg/client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/api"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/predict"
)

// APIError is a non-200 response from the prediction service. Detail is the
// service's own message.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("prediction service returned %d", e.Status)
	}
	return fmt.Sprintf("prediction service returned %d: %s", e.Status, e.Detail)
}

// Client calls the prediction service. Requests are not retried.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a client for the service at baseURL
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  zap.L().Named("client"),
	}
}

// Predict returns the customer segment of in
func (c *Client) Predict(ctx context.Context, in predict.ClusterInput) (int, error) {
	var resp api.ClusterResponse
	if err := c.post(ctx, "/predict", in, &resp); err != nil {
		return 0, err
	}
	return resp.Prediction, nil
}

// Forecast returns the demand forecast for days days. A zero start lets the
// service start from now.
func (c *Client) Forecast(ctx context.Context, days int, start time.Time) ([]api.ForecastPoint, error) {
	req := api.ForecastRequest{Days: days}
	if !start.IsZero() {
		req.StartDate = start.Format(api.DateLayout)
	}
	var resp api.ForecastResponse
	if err := c.post(ctx, "/demand_predict", req, &resp); err != nil {
		return nil, err
	}
	return resp.Forecast, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	c.logger.Debug("Called prediction service",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		var e api.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Detail != "" {
			apiErr.Detail = e.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
