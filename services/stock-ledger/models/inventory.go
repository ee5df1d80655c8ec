package models

import "time"

// Inventory is the authoritative stock record for one product. Available and
// Reserved are kept separately so a hold never looks like a sale.
type Inventory struct {
	ProductID string    `json:"product_id"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	Threshold int       `json:"min_threshold"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReservationStatus tracks the lifecycle of a stock hold.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation is a temporary hold across one or more products, convertible
// to a permanent decrement (commit) or releasable.
type Reservation struct {
	ID        string            `json:"reservation_id"`
	OrderID   string            `json:"order_id"`
	Items     []ReserveItem     `json:"items"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type ReserveItem struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// SetStockRequest initializes or tops up stock for a product.
type SetStockRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Available int    `json:"available" binding:"required,min=0"`
	Threshold int    `json:"min_threshold" binding:"min=0"`
}

// ReserveRequest is the batch reservation payload.
type ReserveRequest struct {
	OrderID string        `json:"order_id" binding:"required"`
	Items   []ReserveItem `json:"items" binding:"required,dive"`
}

// ReservationRef identifies a reservation for commit/release.
type ReservationRef struct {
	ReservationID string `json:"reservation_id" binding:"required"`
}
