package domain

import "time"

type Product struct {
	ID          int64
	Name        string
	Description string
	// Price is in minor currency units (kobo, cents).
	Price     int64
	Stock     int
	Active    bool
	CreatedAt time.Time
}
