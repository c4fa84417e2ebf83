package domain

import "time"

type ContractStatus string

const (
	ContractStatusPendingDeposit ContractStatus = "pending_deposit"
	ContractStatusDepositPaid    ContractStatus = "deposit_paid"
	ContractStatusInTransit      ContractStatus = "in_transit"
	ContractStatusAwaitingBuyer  ContractStatus = "awaiting_buyer_confirmation"
	ContractStatusCompleted      ContractStatus = "completed"
	ContractStatusDispute        ContractStatus = "quality_dispute"
	ContractStatusCancelled      ContractStatus = "cancelled"
)

// Terminal reports whether the automated state machine is done with s.
// quality_dispute is terminal for the automaton; resolution is an external
// mediation decision recorded into the ledger.
func (s ContractStatus) Terminal() bool {
	return s == ContractStatusCompleted || s == ContractStatusCancelled || s == ContractStatusDispute
}

// ledger transition graph; sweeps and duplicate callbacks re-attempt
// transitions, so CanTransition must stay side-effect free.
var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractStatusPendingDeposit: {ContractStatusDepositPaid, ContractStatusCancelled},
	ContractStatusDepositPaid:    {ContractStatusInTransit, ContractStatusAwaitingBuyer},
	ContractStatusInTransit:      {ContractStatusAwaitingBuyer},
	ContractStatusAwaitingBuyer:  {ContractStatusCompleted, ContractStatusDispute},
}

// CanTransition reports whether from -> to is a legal escrow transition.
func CanTransition(from, to ContractStatus) bool {
	for _, next := range contractTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentLedger records what has actually moved through the payment gateway.
type PaymentLedger struct {
	DepositPaid bool
	FinalPaid   bool
	TotalPaid   float64
}

// Contract is the escrow-backed agreement formed from an accepted offer.
// Exactly one contract ever exists per accepted offer. Version guards
// concurrent transitions: an update against a stale version loses the race.
type Contract struct {
	ID           string
	OfferID      string
	ListingID    string
	SellerID     string
	BuyerID      string
	QuantityKg   float64
	PriceKg      float64
	TotalAmount  float64
	DeliveryDate time.Time
	Status       ContractStatus
	Ledger       PaymentLedger
	// DepositDue bounds pending_deposit; ConfirmBy bounds the buyer
	// confirmation window once delivery is confirmed.
	DepositDue time.Time
	ConfirmBy  *time.Time
	// Dispute resolution write-back from external mediation.
	DisputeReason  string
	ResolutionNote string
	ResolvedAt     *time.Time
	Version        int
	CreatedAt      time.Time
}

// DepositAmount is the earnest deposit captured to move out of
// pending_deposit. Rate follows the original contract terms (10%).
const DepositRate = 0.10

func (c Contract) DepositAmount() float64 {
	return c.TotalAmount * DepositRate
}

// FinalAmount is the remainder released to the seller on completion.
func (c Contract) FinalAmount() float64 {
	return c.TotalAmount - c.DepositAmount()
}
