package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/agropulse/marketplace/internal/app"
	"github.com/agropulse/marketplace/internal/domain"
	"github.com/agropulse/marketplace/internal/ratelimit"
)

// Searcher is the minimal interface needed for the search endpoint.
type Searcher interface {
	Search(ctx context.Context, in app.SearchInput) (app.SearchOutput, error)
}

// SearchLimiter bounds per-buyer search traffic; a nil limiter disables the
// quota.
type SearchLimiter interface {
	Allow(ctx context.Context, partyID string) (ratelimit.Result, error)
}

// HandleSearch returns an HTTP handler for ranked listing search.
func HandleSearch(svc Searcher, limiter SearchLimiter, logger *log.Logger) http.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		actor := r.Header.Get("X-Actor-ID")
		if actor == "" {
			actor = req.BuyerID
		}
		if limiter != nil && actor != "" {
			res, err := limiter.Allow(r.Context(), actor)
			if err != nil {
				// Quota accounting is best-effort; a limiter outage must
				// not take search down with it.
				logger.Printf("search rate limiter error=%v", err)
			} else if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSecs))
				writeError(w, http.StatusTooManyRequests, codeRateLimited, "daily search limit reached")
				return
			}
		}

		in := app.SearchInput{
			BuyerRegionID: req.BuyerRegionID,
			Filter: app.SearchFilter{
				Crop:                   req.Crop,
				MinQuantityKg:          req.MinQuantityKg,
				MaxPriceKg:             req.MaxPriceKg,
				MinGrade:               domain.QualityGrade(req.MinGrade),
				ReadyBy:                req.ReadyBy,
				OrganicOnly:            req.OrganicOnly,
				ExcludeMyRegion:        req.ExcludeMyRegion,
				PreferDifferentRegions: req.PreferDifferentRegions,
				Limit:                  req.Limit,
			},
		}
		if req.BuyerLocation != nil {
			in.BuyerLocation = &domain.Point{Lat: req.BuyerLocation.Lat, Lng: req.BuyerLocation.Lng}
		}

		out, err := svc.Search(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		results := make([]searchResultResponse, 0, len(out.Results))
		for _, res := range out.Results {
			results = append(results, searchResultResponse{
				Listing:        toListingResponse(res.Listing),
				RegionName:     res.RegionName,
				DistanceKm:     res.DistanceKm,
				SellerVerified: res.SellerVerified,
				AvailableKg:    res.AvailableKg,
				Score:          res.Score,
			})
		}

		top := make([]regionCountResponse, 0, len(out.Insights.TopRegions))
		for _, rc := range out.Insights.TopRegions {
			top = append(top, regionCountResponse{
				RegionID: rc.RegionID,
				Name:     rc.Name,
				Listings: rc.Listings,
			})
		}

		writeJSON(w, http.StatusOK, searchResponse{
			Results: results,
			Insights: insightsResponse{
				RegionsCovered:        out.Insights.RegionsCovered,
				ExcludedLocalListings: out.Insights.ExcludedLocalListings,
				AverageDistanceKm:     out.Insights.AverageDistanceKm,
				TopRegions:            top,
			},
		})
	}
}

type pointRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type searchRequest struct {
	BuyerID       string        `json:"buyer_id,omitempty"`
	BuyerRegionID string        `json:"buyer_region_id,omitempty"`
	BuyerLocation *pointRequest `json:"buyer_location,omitempty"`

	Crop          string    `json:"crop,omitempty"`
	MinQuantityKg float64   `json:"min_quantity_kg,omitempty"`
	MaxPriceKg    float64   `json:"max_price_kg,omitempty"`
	MinGrade      string    `json:"min_grade,omitempty"`
	ReadyBy       time.Time `json:"ready_by,omitempty"`
	OrganicOnly   bool      `json:"organic_only,omitempty"`

	ExcludeMyRegion        bool `json:"exclude_my_region,omitempty"`
	PreferDifferentRegions bool `json:"prefer_different_regions,omitempty"`

	Limit int `json:"limit,omitempty"`
}

type searchResultResponse struct {
	Listing        listingResponse `json:"listing"`
	RegionName     string          `json:"region_name"`
	DistanceKm     float64         `json:"distance_km"`
	SellerVerified bool            `json:"seller_verified"`
	AvailableKg    float64         `json:"available_kg"`
	Score          float64         `json:"score"`
}

type regionCountResponse struct {
	RegionID string `json:"region_id"`
	Name     string `json:"name"`
	Listings int    `json:"listings"`
}

type insightsResponse struct {
	RegionsCovered        int                   `json:"regions_covered"`
	ExcludedLocalListings int                   `json:"excluded_local_listings"`
	AverageDistanceKm     float64               `json:"average_distance_km"`
	TopRegions            []regionCountResponse `json:"top_regions"`
}

type searchResponse struct {
	Results  []searchResultResponse `json:"results"`
	Insights insightsResponse       `json:"insights"`
}
