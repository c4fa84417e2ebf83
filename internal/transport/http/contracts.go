package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agropulse/marketplace/internal/domain"
)

// EscrowEngine is the minimal interface needed for contract endpoints.
type EscrowEngine interface {
	GetContract(ctx context.Context, id string) (domain.Contract, error)
	ListByParty(ctx context.Context, partyID string) ([]domain.Contract, error)
	PayDeposit(ctx context.Context, contractID, buyerID string) (domain.Contract, error)
	Cancel(ctx context.Context, contractID, actorID string) (domain.Contract, error)
	StartDelivery(ctx context.Context, contractID, sellerID string) (domain.Contract, error)
	ConfirmDelivery(ctx context.Context, contractID, sellerID string) (domain.Contract, error)
	ConfirmReceipt(ctx context.Context, contractID, buyerID string) (domain.Contract, error)
	OpenDispute(ctx context.Context, contractID, buyerID, reason string) (domain.Contract, error)
	RecordResolution(ctx context.Context, contractID string, payoutToSeller float64, note string) (domain.Contract, error)
}

// HandleGetContract returns an HTTP handler for reading one contract.
func HandleGetContract(svc EscrowEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.GetContract(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toContractResponse(c))
	}
}

// HandlePartyContracts returns an HTTP handler listing a party's contracts on
// either side of the table.
func HandlePartyContracts(svc EscrowEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contracts, err := svc.ListByParty(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := make([]contractResponse, 0, len(contracts))
		for _, c := range contracts {
			resp = append(resp, toContractResponse(c))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandlePayDeposit returns an HTTP handler for the buyer's earnest deposit.
func HandlePayDeposit(svc EscrowEngine) http.HandlerFunc {
	return contractTransition(func(ctx context.Context, contractID string, req contractActionRequest) (domain.Contract, error) {
		return svc.PayDeposit(ctx, contractID, req.ActorID)
	})
}

// HandleCancelContract returns an HTTP handler for abandoning an undeposited
// contract.
func HandleCancelContract(svc EscrowEngine) http.HandlerFunc {
	return contractTransition(func(ctx context.Context, contractID string, req contractActionRequest) (domain.Contract, error) {
		return svc.Cancel(ctx, contractID, req.ActorID)
	})
}

// HandleStartDelivery returns an HTTP handler recording the seller's
// dispatch.
func HandleStartDelivery(svc EscrowEngine) http.HandlerFunc {
	return contractTransition(func(ctx context.Context, contractID string, req contractActionRequest) (domain.Contract, error) {
		return svc.StartDelivery(ctx, contractID, req.ActorID)
	})
}

// HandleConfirmDelivery returns an HTTP handler recording the seller's
// handover.
func HandleConfirmDelivery(svc EscrowEngine) http.HandlerFunc {
	return contractTransition(func(ctx context.Context, contractID string, req contractActionRequest) (domain.Contract, error) {
		return svc.ConfirmDelivery(ctx, contractID, req.ActorID)
	})
}

// HandleConfirmReceipt returns an HTTP handler for the buyer accepting
// quality and settling the contract.
func HandleConfirmReceipt(svc EscrowEngine) http.HandlerFunc {
	return contractTransition(func(ctx context.Context, contractID string, req contractActionRequest) (domain.Contract, error) {
		return svc.ConfirmReceipt(ctx, contractID, req.ActorID)
	})
}

// HandleOpenDispute returns an HTTP handler for the buyer disputing quality.
func HandleOpenDispute(svc EscrowEngine) http.HandlerFunc {
	return contractTransition(func(ctx context.Context, contractID string, req contractActionRequest) (domain.Contract, error) {
		return svc.OpenDispute(ctx, contractID, req.ActorID, req.Reason)
	})
}

// HandleRecordResolution returns an HTTP handler for the mediation outcome
// write-back.
func HandleRecordResolution(svc EscrowEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordResolutionRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		c, err := svc.RecordResolution(r.Context(), chi.URLParam(r, "id"), req.PayoutToSeller, req.Note)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toContractResponse(c))
	}
}

// contractTransition wraps the shared decode-act-encode shape of the contract
// state transitions.
func contractTransition(act func(ctx context.Context, contractID string, req contractActionRequest) (domain.Contract, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contractActionRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		c, err := act(r.Context(), chi.URLParam(r, "id"), req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toContractResponse(c))
	}
}

type contractActionRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}

type recordResolutionRequest struct {
	PayoutToSeller float64 `json:"payout_to_seller"`
	Note           string  `json:"note,omitempty"`
}

type ledgerResponse struct {
	DepositPaid bool    `json:"deposit_paid"`
	FinalPaid   bool    `json:"final_paid"`
	TotalPaid   float64 `json:"total_paid"`
}

type contractResponse struct {
	ID             string         `json:"id"`
	OfferID        string         `json:"offer_id"`
	ListingID      string         `json:"listing_id"`
	SellerID       string         `json:"seller_id"`
	BuyerID        string         `json:"buyer_id"`
	QuantityKg     float64        `json:"quantity_kg"`
	PriceKg        float64        `json:"price_kg"`
	TotalAmount    float64        `json:"total_amount"`
	DepositAmount  float64        `json:"deposit_amount"`
	DeliveryDate   time.Time      `json:"delivery_date"`
	Status         string         `json:"status"`
	Ledger         ledgerResponse `json:"ledger"`
	DepositDue     time.Time      `json:"deposit_due"`
	ConfirmBy      *time.Time     `json:"confirm_by,omitempty"`
	DisputeReason  string         `json:"dispute_reason,omitempty"`
	ResolutionNote string         `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toContractResponse(c domain.Contract) contractResponse {
	return contractResponse{
		ID:            c.ID,
		OfferID:       c.OfferID,
		ListingID:     c.ListingID,
		SellerID:      c.SellerID,
		BuyerID:       c.BuyerID,
		QuantityKg:    c.QuantityKg,
		PriceKg:       c.PriceKg,
		TotalAmount:   c.TotalAmount,
		DepositAmount: c.DepositAmount(),
		DeliveryDate:  c.DeliveryDate,
		Status:        string(c.Status),
		Ledger: ledgerResponse{
			DepositPaid: c.Ledger.DepositPaid,
			FinalPaid:   c.Ledger.FinalPaid,
			TotalPaid:   c.Ledger.TotalPaid,
		},
		DepositDue:     c.DepositDue,
		ConfirmBy:      c.ConfirmBy,
		DisputeReason:  c.DisputeReason,
		ResolutionNote: c.ResolutionNote,
		ResolvedAt:     c.ResolvedAt,
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
	}
}
