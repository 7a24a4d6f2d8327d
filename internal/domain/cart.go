package domain

import (
	"time"

	"github.com/google/uuid"
)

type CartItem struct {
	ID        uuid.UUID `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	// PriceAtAdd is the unit price captured when the item was added.
	// Checkout rejects the cart if it no longer matches the live price.
	PriceAtAdd int64 `json:"price_at_add"`
}

type Cart struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// GuestCartItem is one line of a client-held anonymous cart,
// submitted for merging when the user signs in.
type GuestCartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
