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
	EventStockChanged  = "stock.changed"
	EventStockLowAlert = "stock.low_alert"
)

// StockChangedPayload is carried by stock.changed and stock.low_alert.
type StockChangedPayload struct {
	ProductID    string `json:"product_id"`
	Available    int    `json:"available"`
	MinThreshold int    `json:"min_threshold"`
}

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
