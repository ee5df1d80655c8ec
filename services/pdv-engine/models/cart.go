package models

import "time"

// LineItem is one product line inside a cart. Amounts are int64 centavos.
// Discount is a flat amount applied to the whole line, never a percentage.
type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Discount  int64  `json:"discount"`
}

// Cart holds the line items of one in-progress sale. Items are keyed by
// product id (adding an existing product increments its quantity) and keep
// insertion order. The cart is ephemeral: it lives only for the active
// terminal session and is never persisted.
type Cart struct {
	Items      []LineItem `json:"items"`
	CustomerID string     `json:"customer_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsEmpty reports whether the cart has no items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount returns the total unit count across all lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Find returns a pointer to the line for productID, or nil.
func (c *Cart) Find(productID string) *LineItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Snapshot returns a deep copy of the cart items. Sales keep snapshots, not
// live references, so later cart mutations cannot alter a finalized sale.
func (c *Cart) Snapshot() []LineItem {
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	return items
}
