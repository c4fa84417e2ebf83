package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agropulse/marketplace/internal/app"
	"github.com/agropulse/marketplace/internal/domain"
)

// Negotiator is the minimal interface needed for offer endpoints.
type Negotiator interface {
	CreateOffer(ctx context.Context, in app.CreateOfferInput) (domain.Offer, error)
	GetOffer(ctx context.Context, id string) (domain.Offer, error)
	Respond(ctx context.Context, in app.RespondInput) (app.RespondResult, error)
	Cancel(ctx context.Context, offerID, buyerID string) (domain.Offer, error)
}

// HandleCreateOffer returns an HTTP handler for opening a negotiation.
func HandleCreateOffer(svc Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOfferRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		offer, err := svc.CreateOffer(r.Context(), app.CreateOfferInput{
			ListingID:    req.ListingID,
			BuyerID:      req.BuyerID,
			QuantityKg:   req.QuantityKg,
			PriceKg:      req.PriceKg,
			DeliveryDate: req.DeliveryDate,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toOfferResponse(offer))
	}
}

// HandleGetOffer returns an HTTP handler for reading one offer.
func HandleGetOffer(svc Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offer, err := svc.GetOffer(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toOfferResponse(offer))
	}
}

// HandleRespondOffer returns an HTTP handler for accept/counter/decline by
// the awaiting party.
func HandleRespondOffer(svc Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req respondOfferRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		switch app.RespondAction(req.Action) {
		case app.ActionAccept, app.ActionCounter, app.ActionDecline:
		default:
			writeError(w, http.StatusBadRequest, codeInvalidStatus, "action must be accept, counter or decline")
			return
		}

		result, err := svc.Respond(r.Context(), app.RespondInput{
			OfferID:           chi.URLParam(r, "id"),
			ActorID:           req.ActorID,
			Action:            app.RespondAction(req.Action),
			CounterQuantityKg: req.CounterQuantityKg,
			CounterPriceKg:    req.CounterPriceKg,
			Note:              req.Note,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := respondOfferResponse{Offer: toOfferResponse(result.Offer)}
		if result.Contract != nil {
			c := toContractResponse(*result.Contract)
			resp.Contract = &c
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleCancelOffer returns an HTTP handler for the buyer withdrawing an open
// offer.
func HandleCancelOffer(svc Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelOfferRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		offer, err := svc.Cancel(r.Context(), chi.URLParam(r, "id"), req.BuyerID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toOfferResponse(offer))
	}
}

type createOfferRequest struct {
	ListingID    string    `json:"listing_id"`
	BuyerID      string    `json:"buyer_id"`
	QuantityKg   float64   `json:"quantity_kg"`
	PriceKg      float64   `json:"price_kg"`
	DeliveryDate time.Time `json:"delivery_date,omitempty"`
}

type respondOfferRequest struct {
	ActorID           string  `json:"actor_id"`
	Action            string  `json:"action"`
	CounterQuantityKg float64 `json:"counter_quantity_kg,omitempty"`
	CounterPriceKg    float64 `json:"counter_price_kg,omitempty"`
	Note              string  `json:"note,omitempty"`
}

type cancelOfferRequest struct {
	BuyerID string `json:"buyer_id"`
}

type counterTermsResponse struct {
	QuantityKg float64 `json:"quantity_kg"`
	PriceKg    float64 `json:"price_kg"`
	ProposedBy string  `json:"proposed_by"`
	Round      int     `json:"round"`
	Note       string  `json:"note,omitempty"`
}

type offerResponse struct {
	ID           string                `json:"id"`
	ListingID    string                `json:"listing_id"`
	BuyerID      string                `json:"buyer_id"`
	QuantityKg   float64               `json:"quantity_kg"`
	PriceKg      float64               `json:"price_kg"`
	DeliveryDate *time.Time            `json:"delivery_date,omitempty"`
	Status       string                `json:"status"`
	Awaiting     string                `json:"awaiting"`
	Counter      *counterTermsResponse `json:"counter,omitempty"`
	Round        int                   `json:"round"`
	ExpiresAt    time.Time             `json:"expires_at"`
	CreatedAt    time.Time             `json:"created_at"`
}

type respondOfferResponse struct {
	Offer    offerResponse     `json:"offer"`
	Contract *contractResponse `json:"contract,omitempty"`
}

func toOfferResponse(o domain.Offer) offerResponse {
	resp := offerResponse{
		ID:         o.ID,
		ListingID:  o.ListingID,
		BuyerID:    o.BuyerID,
		QuantityKg: o.QuantityKg,
		PriceKg:    o.PriceKg,
		Status:     string(o.Status),
		Awaiting:   string(o.Awaiting),
		Round:      o.Round,
		ExpiresAt:  o.ExpiresAt,
		CreatedAt:  o.CreatedAt,
	}
	if !o.DeliveryDate.IsZero() {
		d := o.DeliveryDate
		resp.DeliveryDate = &d
	}
	if o.Counter != nil {
		resp.Counter = &counterTermsResponse{
			QuantityKg: o.Counter.QuantityKg,
			PriceKg:    o.Counter.PriceKg,
			ProposedBy: string(o.Counter.ProposedBy),
			Round:      o.Counter.Round,
			Note:       o.Counter.Note,
		}
	}
	return resp
}
