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

// StockLedger is the authoritative stock service consumed by the engine.
type StockLedger interface {
	GetStock(ctx context.Context, productID string) (*models.StockSnapshot, error)
	Reserve(ctx context.Context, orderID string, items []ReserveItem) (string, error)
	Commit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
}

// ReserveItem is a single product + quantity in a reservation batch.
type ReserveItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ConflictError reports that the ledger could not hold stock for a product.
type ConflictError struct {
	ProductID string
	Available int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stock conflict for product %s: available=%d", e.ProductID, e.Available)
}

// LedgerClient talks to the stock-ledger service over HTTP.
type LedgerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewLedgerClient(baseURL string) *LedgerClient {
	return &LedgerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type reserveRequest struct {
	OrderID string        `json:"order_id"`
	Items   []ReserveItem `json:"items"`
}

type reserveResponse struct {
	ReservationID string `json:"reservation_id"`
}

type ledgerErrorResponse struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
	Available int    `json:"available"`
}

// GetStock fetches the authoritative availability for a product.
func (c *LedgerClient) GetStock(ctx context.Context, productID string) (*models.StockSnapshot, error) {
	url := fmt.Sprintf("%s/inventory/%s", c.baseURL, productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stock ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no inventory record for product %s", productID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stock ledger returned %d", resp.StatusCode)
	}

	var snap models.StockSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Reserve asks the ledger to hold stock for every item as one batch. On
// conflict the ledger rolls back partial holds and replies 409 with the
// offending product, surfaced here as a ConflictError.
func (c *LedgerClient) Reserve(ctx context.Context, orderID string, items []ReserveItem) (string, error) {
	body, err := json.Marshal(reserveRequest{OrderID: orderID, Items: items})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/inventory/reserve", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stock reserve request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var errResp ledgerErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return "", &ConflictError{ProductID: errResp.ProductID, Available: errResp.Available}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stock reserve failed: status %d", resp.StatusCode)
	}

	var out reserveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.ReservationID == "" {
		return "", fmt.Errorf("stock ledger returned empty reservation id")
	}
	return out.ReservationID, nil
}

// Commit converts a reservation into a permanent decrement.
func (c *LedgerClient) Commit(ctx context.Context, reservationID string) error {
	return c.post(ctx, "commit", reservationID)
}

// Release frees a reservation so the stock is available again.
func (c *LedgerClient) Release(ctx context.Context, reservationID string) error {
	return c.post(ctx, "release", reservationID)
}

func (c *LedgerClient) post(ctx context.Context, action, reservationID string) error {
	body, err := json.Marshal(map[string]string{"reservation_id": reservationID})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/inventory/%s", c.baseURL, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stock %s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stock %s failed: status %d", action, resp.StatusCode)
	}
	return nil
}
