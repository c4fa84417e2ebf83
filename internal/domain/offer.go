package domain

import "time"

type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusCountered OfferStatus = "countered"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusDeclined  OfferStatus = "declined"
	OfferStatusExpired   OfferStatus = "expired"
)

// Open reports whether the offer still awaits a decision.
func (s OfferStatus) Open() bool {
	return s == OfferStatusPending || s == OfferStatusCountered
}

// CounterTerms is one round of revised terms within an offer's negotiation.
type CounterTerms struct {
	QuantityKg float64
	PriceKg    float64
	ProposedBy PartyRole
	Round      int
	Note       string
}

// Offer is a buyer's bid against a listing. Awaiting names the role that must
// respond to the current round; counters flip it. Round counts counter
// exchanges and is bounded by the negotiation engine.
type Offer struct {
	ID           string
	ListingID    string
	BuyerID      string
	QuantityKg   float64
	PriceKg      float64
	DeliveryDate time.Time
	Status       OfferStatus
	Counter      *CounterTerms
	Awaiting     PartyRole
	Round        int
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// EffectiveTerms returns the quantity and unit price currently on the table:
// the latest counter when one exists, the original bid otherwise.
func (o Offer) EffectiveTerms() (quantityKg, priceKg float64) {
	if o.Counter != nil {
		return o.Counter.QuantityKg, o.Counter.PriceKg
	}
	return o.QuantityKg, o.PriceKg
}
