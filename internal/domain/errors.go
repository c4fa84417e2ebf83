package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRegionNotFound      = errors.New("region not found")
	ErrPartyNotFound       = errors.New("party not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrOfferNotFound       = errors.New("offer not found")
	ErrContractNotFound    = errors.New("contract not found")
	ErrReservationNotFound = errors.New("reservation not found")

	ErrListingNotActive     = errors.New("listing not active")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrBelowMinimumOrder    = errors.New("quantity below minimum order")
	ErrDuplicateOffer       = errors.New("buyer already has an open offer on this listing")
	ErrNegotiationLimit     = errors.New("negotiation round limit reached")
	ErrActiveReservations   = errors.New("listing has active reservations")
	ErrSellerNotVerified    = errors.New("seller is not verified")
	ErrBuyerNotVerified     = errors.New("buyer is not verified")

	ErrContractExists    = errors.New("contract already exists for offer")
	ErrStaleOffer        = errors.New("offer already decided")
	ErrStaleContract     = errors.New("contract changed concurrently")
	ErrUnauthorizedActor = errors.New("actor is not the required counterparty")

	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidGrade    = errors.New("invalid quality grade")
	ErrInvalidRole     = errors.New("invalid party role")
	ErrInvalidStatus   = errors.New("invalid status")
)

// GatewayError wraps a payment or notification adapter failure. The entity
// involved is never advanced while the gateway call is unconfirmed.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err is (or wraps) a gateway failure.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
