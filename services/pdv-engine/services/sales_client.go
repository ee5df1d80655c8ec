package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

// OrderSubmitter submits a finalized sale to the sales API. Submissions carry
// an idempotency key so a retried call after a timeout cannot create a
// duplicate order.
type OrderSubmitter interface {
	Submit(ctx context.Context, req models.SubmitOrderRequest) (*models.SubmitOrderResponse, error)
}

// TransientError marks a failure worth retrying (network error, timeout,
// upstream 5xx). Anything else is treated as permanent.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// SalesClient talks to the sales-api service over HTTP.
type SalesClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewSalesClient(baseURL string) *SalesClient {
	return &SalesClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Submit posts the order. The sales API answers an idempotency-key replay
// with the original sale, so the same request can be retried safely.
func (c *SalesClient) Submit(ctx context.Context, req models.SubmitOrderRequest) (*models.SubmitOrderResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/sales", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Op: "order submission", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &TransientError{
			Op:  "order submission",
			Err: fmt.Errorf("sales api returned %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errResp map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp["error"]
		if msg == "" {
			msg = fmt.Sprintf("sales api returned %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("order submission rejected: %s", msg)
	}

	var out models.SubmitOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
