package domain

import (
	"time"

	"github.com/google/uuid"
)

type DiscountKind string

const (
	DiscountPercentage  DiscountKind = "percentage"
	DiscountFixedAmount DiscountKind = "fixed_amount"
)

type Discount struct {
	ID   uuid.UUID
	Code string
	Kind DiscountKind
	// Value is a percentage for DiscountPercentage and an amount in
	// minor units for DiscountFixedAmount.
	Value     int64
	StartsAt  time.Time
	ExpiresAt *time.Time
	// UsageCount never exceeds UsageLimit when the limit is set.
	UsageCount        int
	UsageLimit        *int
	MinOrderAmount    *int64
	MaxDiscountAmount *int64
	Active            bool
	CreatedAt         time.Time
}
