package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusCommitted ReservationStatus = "committed"
)

// Reservation is a temporary hold on listing quantity while an offer is open.
// It converts to a permanent commit when the contract deposit is paid, and is
// released when the offer is declined, expires, or the contract is cancelled
// before deposit.
type Reservation struct {
	ID         string
	ListingID  string
	OfferID    string
	QuantityKg float64
	Status     ReservationStatus
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
