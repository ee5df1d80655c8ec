package models

import (
	"time"

	"github.com/google/uuid"
)

// SaleStatus is the lifecycle state of a finalized sale.
type SaleStatus string

const (
	SalePending   SaleStatus = "pending"
	SaleCompleted SaleStatus = "completed"
	SaleCancelled SaleStatus = "cancelled"
)

// Sale is the result of finalizing a cart. Items are a snapshot taken at
// finalize time. A sale is immutable after creation except for status
// transitions driven by external payment confirmation.
type Sale struct {
	ID             uuid.UUID   `json:"id"`
	Items          []LineItem  `json:"items"`
	Totals         Totals      `json:"totals"`
	Payment        PaymentSpec `json:"payment"`
	Status         SaleStatus  `json:"status"`
	CustomerID     string      `json:"customer_id,omitempty"`
	TerminalID     string      `json:"terminal_id"`
	IdempotencyKey string      `json:"idempotency_key"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SubmitOrderRequest is the payload sent to the sales API when a sale is
// submitted. The idempotency key makes retried submissions safe.
type SubmitOrderRequest struct {
	Items          []SubmitOrderItem `json:"items" binding:"required,dive"`
	PaymentMethod  PaymentMethod     `json:"payment_method" binding:"required"`
	Installments   int               `json:"installments,omitempty"`
	CustomerID     string            `json:"customer_id,omitempty"`
	TerminalID     string            `json:"terminal_id"`
	Total          int64             `json:"total"`
	IdempotencyKey string            `json:"idempotency_key" binding:"required"`
}

type SubmitOrderItem struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	UnitPrice int64  `json:"unit_price"`
	Discount  int64  `json:"discount"`
}

// SubmitOrderResponse is the sales API reply.
type SubmitOrderResponse struct {
	SaleID uuid.UUID  `json:"sale_id"`
	Status SaleStatus `json:"status"`
}
