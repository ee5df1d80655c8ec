package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SalePending   = "pending"
	SaleCompleted = "completed"
	SaleCancelled = "cancelled"
)

const (
	PaymentCash   = "cash"
	PaymentCredit = "credit_card"
	PaymentDebit  = "debit_card"
	PaymentPix    = "pix"
)

// SaleRecord is the persisted sale. The idempotency key carries a unique
// index so a replayed submission cannot create a second row.
type SaleRecord struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	IdempotencyKey string           `gorm:"uniqueIndex;size:64;not null" json:"idempotency_key"`
	TerminalID     string           `gorm:"size:64;index" json:"terminal_id"`
	CustomerID     string           `gorm:"size:64;index" json:"customer_id,omitempty"`
	PaymentMethod  string           `gorm:"size:32" json:"payment_method"`
	Installments   int              `json:"installments,omitempty"`
	Total          int64            `json:"total"`
	Status         string           `gorm:"size:16;index" json:"status"`
	Items          []SaleItemRecord `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type SaleItemRecord struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SaleID    uuid.UUID `gorm:"type:uuid;index" json:"-"`
	ProductID string    `gorm:"size:64" json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	Discount  int64     `json:"discount"`
}

// ItemCount sums the quantities across all lines.
func (s *SaleRecord) ItemCount() int {
	count := 0
	for _, item := range s.Items {
		count += item.Quantity
	}
	return count
}

// CompletesImmediately reports whether the payment method settles at the
// counter, with no external confirmation step.
func CompletesImmediately(method string) bool {
	return method == PaymentCash || method == PaymentPix
}

// SubmitSaleRequest is the terminal's submission payload.
type SubmitSaleRequest struct {
	Items          []SubmitSaleItem `json:"items" binding:"required,dive"`
	PaymentMethod  string           `json:"payment_method" binding:"required"`
	Installments   int              `json:"installments,omitempty"`
	CustomerID     string           `json:"customer_id,omitempty"`
	TerminalID     string           `json:"terminal_id" binding:"required"`
	Total          int64            `json:"total"`
	IdempotencyKey string           `json:"idempotency_key" binding:"required"`
}

type SubmitSaleItem struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	UnitPrice int64  `json:"unit_price"`
	Discount  int64  `json:"discount"`
}

// SubmitSaleResponse echoes the stored sale id and status.
type SubmitSaleResponse struct {
	SaleID uuid.UUID `json:"sale_id"`
	Status string    `json:"status"`
}

// SaleFilter narrows sale listings for back-office queries.
type SaleFilter struct {
	TerminalID string `form:"terminal_id"`
	Status     string `form:"status"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}
