package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agropulse/marketplace/internal/app"
	"github.com/agropulse/marketplace/internal/domain"
)

func TestHandleCreateOffer(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	successOffer := domain.Offer{
		ID:         "offer-1",
		ListingID:  "listing-1",
		BuyerID:    "buyer-1",
		QuantityKg: 400,
		PriceKg:    42,
		Status:     domain.OfferStatusPending,
		Awaiting:   domain.RoleSeller,
		ExpiresAt:  now.Add(72 * time.Hour),
		CreatedAt:  now,
	}

	tests := []struct {
		name           string
		body           string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "success",
			body:           `{"listing_id":"listing-1","buyer_id":"buyer-1","quantity_kg":400,"price_kg":42}`,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"status":"pending"`,
		},
		{
			name:           "invalid json",
			body:           `{"listing_id":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "below minimum order",
			body:           `{"listing_id":"listing-1","buyer_id":"buyer-1","quantity_kg":10,"price_kg":42}`,
			serviceErr:     domain.ErrBelowMinimumOrder,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: `"code":"below_minimum_order"`,
		},
		{
			name:           "duplicate open offer",
			body:           `{"listing_id":"listing-1","buyer_id":"buyer-1","quantity_kg":400,"price_kg":42}`,
			serviceErr:     domain.ErrDuplicateOffer,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "insufficient quantity",
			body:           `{"listing_id":"listing-1","buyer_id":"buyer-1","quantity_kg":400,"price_kg":42}`,
			serviceErr:     domain.ErrInsufficientQuantity,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "buyer not verified",
			body:           `{"listing_id":"listing-1","buyer_id":"buyer-1","quantity_kg":400,"price_kg":42}`,
			serviceErr:     domain.ErrBuyerNotVerified,
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubOfferService{offer: successOffer, err: tt.serviceErr}
			req := httptest.NewRequest(http.MethodPost, "/offers", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			HandleCreateOffer(svc).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}
}

func TestHandleRespondOffer(t *testing.T) {
	t.Parallel()

	t.Run("accept returns contract", func(t *testing.T) {
		t.Parallel()
		svc := &stubOfferService{
			respond: app.RespondResult{
				Offer:    domain.Offer{ID: "offer-1", Status: domain.OfferStatusAccepted},
				Contract: &domain.Contract{ID: "contract-1", OfferID: "offer-1", Status: domain.ContractStatusPendingDeposit},
			},
		}
		rec := serveOfferRoute(svc, http.MethodPost, "/offers/offer-1/respond", `{"actor_id":"seller-1","action":"accept"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if svc.respondIn.OfferID != "offer-1" || svc.respondIn.Action != app.ActionAccept {
			t.Fatalf("input not forwarded: %+v", svc.respondIn)
		}
		if !strings.Contains(rec.Body.String(), `"contract"`) {
			t.Fatalf("contract missing from body: %q", rec.Body.String())
		}
	})

	t.Run("counter forwards terms", func(t *testing.T) {
		t.Parallel()
		svc := &stubOfferService{
			respond: app.RespondResult{
				Offer: domain.Offer{
					ID:      "offer-1",
					Status:  domain.OfferStatusCountered,
					Counter: &domain.CounterTerms{QuantityKg: 500, PriceKg: 46, ProposedBy: domain.RoleSeller, Round: 1},
				},
			},
		}
		rec := serveOfferRoute(svc, http.MethodPost, "/offers/offer-1/respond",
			`{"actor_id":"seller-1","action":"counter","counter_quantity_kg":500,"counter_price_kg":46,"note":"can do 500"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if svc.respondIn.CounterQuantityKg != 500 || svc.respondIn.CounterPriceKg != 46 || svc.respondIn.Note != "can do 500" {
			t.Fatalf("counter terms not forwarded: %+v", svc.respondIn)
		}
		if !strings.Contains(rec.Body.String(), `"proposed_by":"seller"`) {
			t.Fatalf("counter missing from body: %q", rec.Body.String())
		}
	})

	t.Run("unknown action rejected before the service", func(t *testing.T) {
		t.Parallel()
		svc := &stubOfferService{}
		rec := serveOfferRoute(svc, http.MethodPost, "/offers/offer-1/respond", `{"actor_id":"seller-1","action":"ponder"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if svc.respondCalls != 0 {
			t.Fatalf("service called for invalid action")
		}
	})

	t.Run("stale offer", func(t *testing.T) {
		t.Parallel()
		svc := &stubOfferService{err: domain.ErrStaleOffer}
		rec := serveOfferRoute(svc, http.MethodPost, "/offers/offer-1/respond", `{"actor_id":"seller-1","action":"accept"}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("negotiation limit", func(t *testing.T) {
		t.Parallel()
		svc := &stubOfferService{err: domain.ErrNegotiationLimit}
		rec := serveOfferRoute(svc, http.MethodPost, "/offers/offer-1/respond", `{"actor_id":"seller-1","action":"counter","counter_price_kg":50}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"code":"negotiation_limit"`) {
			t.Fatalf("unexpected body %q", rec.Body.String())
		}
	})
}

func TestHandleCancelOffer(t *testing.T) {
	t.Parallel()

	t.Run("cancels", func(t *testing.T) {
		t.Parallel()
		svc := &stubOfferService{offer: domain.Offer{ID: "offer-1", Status: domain.OfferStatusDeclined}}
		rec := serveOfferRoute(svc, http.MethodPost, "/offers/offer-1/cancel", `{"buyer_id":"buyer-1"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"declined"`) {
			t.Fatalf("unexpected body %q", rec.Body.String())
		}
	})

	t.Run("seller cannot cancel", func(t *testing.T) {
		t.Parallel()
		svc := &stubOfferService{err: domain.ErrUnauthorizedActor}
		rec := serveOfferRoute(svc, http.MethodPost, "/offers/offer-1/cancel", `{"buyer_id":"seller-1"}`)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})
}

func serveOfferRoute(svc Negotiator, method, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/offers", HandleCreateOffer(svc))
	r.Get("/offers/{id}", HandleGetOffer(svc))
	r.Post("/offers/{id}/respond", HandleRespondOffer(svc))
	r.Post("/offers/{id}/cancel", HandleCancelOffer(svc))

	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type stubOfferService struct {
	offer   domain.Offer
	respond app.RespondResult
	err     error

	respondIn    app.RespondInput
	respondCalls int
}

func (s *stubOfferService) CreateOffer(_ context.Context, _ app.CreateOfferInput) (domain.Offer, error) {
	return s.offer, s.err
}

func (s *stubOfferService) GetOffer(_ context.Context, _ string) (domain.Offer, error) {
	return s.offer, s.err
}

func (s *stubOfferService) Respond(_ context.Context, in app.RespondInput) (app.RespondResult, error) {
	s.respondIn = in
	s.respondCalls++
	return s.respond, s.err
}

func (s *stubOfferService) Cancel(_ context.Context, _, _ string) (domain.Offer, error) {
	return s.offer, s.err
}
