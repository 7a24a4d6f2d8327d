package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
)

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// OrderItem is a snapshot of checkout-time product state. It is written
// once during reconciliation and never updated from live product data.
type OrderItem struct {
	ID          uuid.UUID `json:"id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
}

type Order struct {
	ID             uuid.UUID
	UserID         string
	OrderNumber    string
	Subtotal       int64
	DiscountAmount int64
	Shipping       int64
	Tax            int64
	Total          int64
	Status         OrderStatus
	ShippingAddr   Address
	// PaymentReference is unique at the storage layer. That constraint is
	// what makes order materialization at-most-once across instances.
	PaymentReference string
	Items            []OrderItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
