package model

import "time"

// OrderItem is a single line item on a retail order.
type OrderItem struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	Quantity   int    `json:"quantity"`
}

// Order represents a scraped retail order. TotalCents is what was actually
// charged, in cents, always non-negative. Items may be empty when extraction
// failed for an order card.
type Order struct {
	Date                 time.Time
	OrderID              string
	MatchedTransactionID string
	Items                []OrderItem
	TotalCents           int64
}
