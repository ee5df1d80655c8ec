package models

import "time"

// StockSnapshot is the last-known-good availability of one product. It is a
// display-grade cache refreshed by StockChanged events and explicit ledger
// queries; the authoritative check always happens against the ledger.
type StockSnapshot struct {
	ProductID    string    `json:"product_id"`
	Available    int       `json:"available"`
	MinThreshold int       `json:"min_threshold"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BelowThreshold reports whether availability crossed the alert threshold.
func (s StockSnapshot) BelowThreshold() bool {
	return s.Available <= s.MinThreshold
}
