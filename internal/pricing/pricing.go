package pricing

import (
	"errors"
	"time"

	"github.com/fjod/go_shop/internal/domain"
)

var (
	ErrDiscountInactive  = errors.New("discount code is not active")
	ErrDiscountNotYet    = errors.New("discount code is not valid yet")
	ErrDiscountExpired   = errors.New("discount code has expired")
	ErrDiscountExhausted = errors.New("discount code has reached its usage limit")
	ErrMinimumNotMet     = errors.New("order subtotal is below the discount minimum")
)

// Validate checks whether the discount may be applied to an order with the
// given subtotal. Validity windows are compared at day granularity: a code
// starting today is already usable and a code expiring today still works.
func Validate(d *domain.Discount, subtotal int64, now time.Time) error {
	if !d.Active {
		return ErrDiscountInactive
	}

	today := startOfDay(now)
	if startOfDay(d.StartsAt).After(today) {
		return ErrDiscountNotYet
	}
	if d.ExpiresAt != nil && startOfDay(*d.ExpiresAt).Before(today) {
		return ErrDiscountExpired
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return ErrDiscountExhausted
	}
	if d.MinOrderAmount != nil && subtotal < *d.MinOrderAmount {
		return ErrMinimumNotMet
	}
	return nil
}

// Amount computes the discount in minor units for the given subtotal.
// Percentage discounts round down. The result is clamped to the discount's
// maximum (when set) and never exceeds the subtotal or goes negative.
func Amount(d *domain.Discount, subtotal int64) int64 {
	var amount int64
	switch d.Kind {
	case domain.DiscountPercentage:
		amount = subtotal * d.Value / 100
	case domain.DiscountFixedAmount:
		amount = d.Value
	default:
		return 0
	}

	if d.MaxDiscountAmount != nil && amount > *d.MaxDiscountAmount {
		amount = *d.MaxDiscountAmount
	}
	if amount > subtotal {
		amount = subtotal
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
