package models

import (
	"encoding/json"
	"time"
)

// EventType names the sale-lifecycle and stock events on the bus.
type EventType string

const (
	EventSaleCreated   EventType = "sale.created"
	EventSaleCompleted EventType = "sale.completed"
	EventSaleCancelled EventType = "sale.cancelled"
	EventStockChanged  EventType = "stock.changed"
	EventStockLowAlert EventType = "stock.low_alert"

	// EventCartChanged is local to the terminal process; it never leaves the
	// broadcaster.
	EventCartChanged EventType = "cart.changed"
)

// Event is the envelope shared by in-process listeners and the Kafka channel.
type Event struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent wraps a payload struct into an envelope.
func NewEvent(eventType EventType, payload interface{}) (Event, error) {
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

// SaleEventPayload is carried by sale.created / sale.completed / sale.cancelled.
type SaleEventPayload struct {
	SaleID     string     `json:"sale_id"`
	TerminalID string     `json:"terminal_id"`
	Status     SaleStatus `json:"status"`
	Total      int64      `json:"total"`
	ItemCount  int        `json:"item_count"`
}

// StockChangedPayload is carried by stock.changed and stock.low_alert.
type StockChangedPayload struct {
	ProductID    string `json:"product_id"`
	Available    int    `json:"available"`
	MinThreshold int    `json:"min_threshold"`
}

// CartChangedPayload is carried by the local cart.changed notification so
// dependent views (total, item count) can recompute.
type CartChangedPayload struct {
	ItemCount int `json:"item_count"`
	Lines     int `json:"lines"`
}
