package service

import "errors"

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrProductUnavailable = errors.New("product is no longer available")
	// ErrPriceChanged aborts checkout when a captured cart price no longer
	// matches the live product price. There is no silent repricing.
	ErrPriceChanged      = errors.New("product price has changed since it was added to the cart")
	ErrInsufficientStock = errors.New("not enough stock for the requested quantity")
	ErrPaymentFailed     = errors.New("payment was not successful")
	// ErrPaymentOwnership rejects a redirect-path confirmation whose session
	// user does not match the user that initiated the checkout.
	ErrPaymentOwnership = errors.New("payment does not belong to the authenticated user")
	ErrInvalidCursor    = errors.New("pagination cursor is invalid")
	ErrInvalidMetadata  = errors.New("payment intent metadata is missing or malformed")
)
