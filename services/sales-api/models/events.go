package models

import (
	"encoding/json"
	"time"
)

// Event mirrors the envelope used on the pdv.events topic.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

const (
	EventSaleCompleted = "sale.completed"
	EventSaleCancelled = "sale.cancelled"
)

// SaleEventPayload is carried by sale lifecycle events.
type SaleEventPayload struct {
	SaleID     string `json:"sale_id"`
	TerminalID string `json:"terminal_id"`
	Status     string `json:"status"`
	Total      int64  `json:"total"`
	ItemCount  int    `json:"item_count"`
}

// PaymentEvent arrives from the payment provider integration when a card
// transaction settles.
type PaymentEvent struct {
	SaleID      string `json:"sale_id"`
	Status      string `json:"status"` // approved | declined
	ProviderRef string `json:"provider_ref,omitempty"`
}

const (
	PaymentApproved = "approved"
	PaymentDeclined = "declined"
)

// NewEvent wraps a payload into an envelope.
func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}
