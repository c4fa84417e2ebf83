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

// ReferenceAdmin is the minimal interface needed for region and party
// administration.
type ReferenceAdmin interface {
	ImportRegion(ctx context.Context, in app.ImportRegionInput) (domain.Region, error)
	ListRegions(ctx context.Context) ([]domain.Region, error)
	CreateParty(ctx context.Context, in app.CreatePartyInput) (domain.Party, error)
	GetParty(ctx context.Context, id string) (domain.Party, error)
	SetVerification(ctx context.Context, partyID string, status domain.VerificationStatus) error
}

// HandleAdminRegions returns an HTTP handler for region import and listing.
func HandleAdminRegions(svc ReferenceAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			regions, err := svc.ListRegions(r.Context())
			if err != nil {
				writeDomainError(w, err)
				return
			}
			resp := make([]regionResponse, 0, len(regions))
			for _, region := range regions {
				resp = append(resp, toRegionResponse(region))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req importRegionRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			boundary := make([]domain.Point, 0, len(req.Boundary))
			for _, p := range req.Boundary {
				boundary = append(boundary, domain.Point{Lat: p.Lat, Lng: p.Lng})
			}
			region, err := svc.ImportRegion(r.Context(), app.ImportRegionInput{
				Name:     req.Name,
				Centroid: domain.Point{Lat: req.Centroid.Lat, Lng: req.Centroid.Lng},
				Boundary: boundary,
				RadiusKm: req.RadiusKm,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, toRegionResponse(region))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeInvalidStatus, "method not allowed")
		}
	}
}

// HandleCreateParty returns an HTTP handler for registering a participant.
func HandleCreateParty(svc ReferenceAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPartyRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		party, err := svc.CreateParty(r.Context(), app.CreatePartyInput{
			Name:     req.Name,
			Role:     domain.PartyRole(req.Role),
			Location: domain.Point{Lat: req.Location.Lat, Lng: req.Location.Lng},
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPartyResponse(party))
	}
}

// HandleGetParty returns an HTTP handler for reading one party.
func HandleGetParty(svc ReferenceAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		party, err := svc.GetParty(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPartyResponse(party))
	}
}

// HandleSetVerification returns an HTTP handler for the verification
// workflow's write-back.
func HandleSetVerification(svc ReferenceAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setVerificationRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		if err := svc.SetVerification(r.Context(), chi.URLParam(r, "id"), domain.VerificationStatus(req.Status)); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type importRegionRequest struct {
	Name     string         `json:"name"`
	Centroid pointRequest   `json:"centroid"`
	Boundary []pointRequest `json:"boundary,omitempty"`
	RadiusKm float64        `json:"radius_km,omitempty"`
}

type createPartyRequest struct {
	Name     string       `json:"name"`
	Role     string       `json:"role"`
	Location pointRequest `json:"location"`
}

type setVerificationRequest struct {
	Status string `json:"status"`
}

type regionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Centroid pointRequest   `json:"centroid"`
	Boundary []pointRequest `json:"boundary,omitempty"`
	RadiusKm float64        `json:"radius_km,omitempty"`
}

type partyResponse struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Role         string       `json:"role"`
	RegionID     string       `json:"region_id"`
	Location     pointRequest `json:"location"`
	Verification string       `json:"verification"`
	CreatedAt    time.Time    `json:"created_at"`
}

func toRegionResponse(region domain.Region) regionResponse {
	boundary := make([]pointRequest, 0, len(region.Boundary))
	for _, p := range region.Boundary {
		boundary = append(boundary, pointRequest{Lat: p.Lat, Lng: p.Lng})
	}
	return regionResponse{
		ID:       region.ID,
		Name:     region.Name,
		Centroid: pointRequest{Lat: region.Centroid.Lat, Lng: region.Centroid.Lng},
		Boundary: boundary,
		RadiusKm: region.RadiusKm,
	}
}

func toPartyResponse(party domain.Party) partyResponse {
	return partyResponse{
		ID:           party.ID,
		Name:         party.Name,
		Role:         string(party.Role),
		RegionID:     party.RegionID,
		Location:     pointRequest{Lat: party.Location.Lat, Lng: party.Location.Lng},
		Verification: string(party.Verification),
		CreatedAt:    party.CreatedAt,
	}
}
