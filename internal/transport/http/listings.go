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

// ListingCatalog is the minimal interface needed for listing endpoints.
type ListingCatalog interface {
	CreateListing(ctx context.Context, in app.CreateListingInput) (domain.Listing, error)
	GetListing(ctx context.Context, id string) (domain.Listing, error)
	UpdateListing(ctx context.Context, in app.UpdateListingInput) (domain.Listing, error)
	Withdraw(ctx context.Context, listingID, sellerID string) error
	ListBySeller(ctx context.Context, sellerID string, status domain.ListingStatus) ([]domain.Listing, error)
}

// HandleCreateListing returns an HTTP handler for posting a new listing.
func HandleCreateListing(svc ListingCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createListingRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		listing, err := svc.CreateListing(r.Context(), app.CreateListingInput{
			SellerID:              req.SellerID,
			Crop:                  req.Crop,
			QuantityKg:            req.QuantityKg,
			Grade:                 domain.QualityGrade(req.Grade),
			AskingPriceKg:         req.AskingPriceKg,
			MinOrderKg:            req.MinOrderKg,
			ReadyDate:             req.ReadyDate,
			StorageLocation:       req.StorageLocation,
			DeliveryAvailable:     req.DeliveryAvailable,
			Organic:               req.Organic,
			PreferCrossRegional:   req.PreferCrossRegional,
			AvoidLocalCompetition: req.AvoidLocalCompetition,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toListingResponse(listing))
	}
}

// HandleGetListing returns an HTTP handler for reading one listing.
func HandleGetListing(svc ListingCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, err := svc.GetListing(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toListingResponse(listing))
	}
}

// HandleUpdateListing returns an HTTP handler for seller price and minimum
// order adjustments.
func HandleUpdateListing(svc ListingCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateListingRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		listing, err := svc.UpdateListing(r.Context(), app.UpdateListingInput{
			ListingID:     chi.URLParam(r, "id"),
			SellerID:      req.SellerID,
			AskingPriceKg: req.AskingPriceKg,
			MinOrderKg:    req.MinOrderKg,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toListingResponse(listing))
	}
}

// HandleWithdrawListing returns an HTTP handler for taking a listing off the
// market.
func HandleWithdrawListing(svc ListingCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req withdrawListingRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		if err := svc.Withdraw(r.Context(), chi.URLParam(r, "id"), req.SellerID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleSellerListings returns an HTTP handler listing a seller's inventory,
// optionally filtered by status.
func HandleSellerListings(svc ListingCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.ListingStatus(r.URL.Query().Get("status"))
		listings, err := svc.ListBySeller(r.Context(), chi.URLParam(r, "id"), status)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]listingResponse, 0, len(listings))
		for _, l := range listings {
			resp = append(resp, toListingResponse(l))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type createListingRequest struct {
	SellerID              string    `json:"seller_id"`
	Crop                  string    `json:"crop"`
	QuantityKg            float64   `json:"quantity_kg"`
	Grade                 string    `json:"grade"`
	AskingPriceKg         float64   `json:"asking_price_kg"`
	MinOrderKg            float64   `json:"min_order_kg,omitempty"`
	ReadyDate             time.Time `json:"ready_date"`
	StorageLocation       string    `json:"storage_location,omitempty"`
	DeliveryAvailable     bool      `json:"delivery_available,omitempty"`
	Organic               bool      `json:"organic,omitempty"`
	PreferCrossRegional   bool      `json:"prefer_cross_regional,omitempty"`
	AvoidLocalCompetition bool      `json:"avoid_local_competition,omitempty"`
}

type updateListingRequest struct {
	SellerID      string   `json:"seller_id"`
	AskingPriceKg *float64 `json:"asking_price_kg,omitempty"`
	MinOrderKg    *float64 `json:"min_order_kg,omitempty"`
}

type withdrawListingRequest struct {
	SellerID string `json:"seller_id"`
}

type listingResponse struct {
	ID                    string    `json:"id"`
	SellerID              string    `json:"seller_id"`
	Crop                  string    `json:"crop"`
	QuantityKg            float64   `json:"quantity_kg"`
	Grade                 string    `json:"grade"`
	AskingPriceKg         float64   `json:"asking_price_kg"`
	MinOrderKg            float64   `json:"min_order_kg"`
	ReadyDate             time.Time `json:"ready_date"`
	Status                string    `json:"status"`
	RegionID              string    `json:"region_id"`
	StorageLocation       string    `json:"storage_location,omitempty"`
	DeliveryAvailable     bool      `json:"delivery_available"`
	Organic               bool      `json:"organic"`
	PreferCrossRegional   bool      `json:"prefer_cross_regional"`
	AvoidLocalCompetition bool      `json:"avoid_local_competition"`
	CreatedAt             time.Time `json:"created_at"`
}

func toListingResponse(l domain.Listing) listingResponse {
	return listingResponse{
		ID:                    l.ID,
		SellerID:              l.SellerID,
		Crop:                  l.Crop,
		QuantityKg:            l.QuantityKg,
		Grade:                 string(l.Grade),
		AskingPriceKg:         l.AskingPriceKg,
		MinOrderKg:            l.MinOrderKg,
		ReadyDate:             l.ReadyDate,
		Status:                string(l.Status),
		RegionID:              l.RegionID,
		StorageLocation:       l.StorageLocation,
		DeliveryAvailable:     l.DeliveryAvailable,
		Organic:               l.Organic,
		PreferCrossRegional:   l.PreferCrossRegional,
		AvoidLocalCompetition: l.AvoidLocalCompetition,
		CreatedAt:             l.CreatedAt,
	}
}
