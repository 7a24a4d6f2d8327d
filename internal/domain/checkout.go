package domain

import "github.com/google/uuid"

// CheckoutItem captures one cart line at checkout time.
type CheckoutItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

// CheckoutMetadata is the snapshot attached to a payment intent and
// round-tripped through the processor. During reconciliation it is the
// authoritative source of items, pricing and address; the live cart may
// have changed or been cleared by then.
type CheckoutMetadata struct {
	UserID         string         `json:"user_id"`
	CartID         uuid.UUID      `json:"cart_id"`
	Items          []CheckoutItem `json:"items"`
	Subtotal       int64          `json:"subtotal"`
	DiscountAmount int64          `json:"discount_amount"`
	DiscountCode   string         `json:"discount_code,omitempty"`
	DiscountID     string         `json:"discount_id,omitempty"`
	Shipping       int64          `json:"shipping"`
	Tax            int64          `json:"tax"`
	Total          int64          `json:"total"`
	Address        Address        `json:"address"`
}
