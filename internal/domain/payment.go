package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment tracks the processor-side state of a single payment reference.
// The reference doubles as the idempotency key for order materialization.
type Payment struct {
	Reference   string
	Status      PaymentStatus
	RawResponse []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
