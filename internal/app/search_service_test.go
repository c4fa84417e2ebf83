package app

import (
	"context"
	"testing"
	"time"

	"github.com/agropulse/marketplace/internal/clock"
	"github.com/agropulse/marketplace/internal/domain"
)

type fakeSearchRepo struct {
	candidates []SearchCandidate
}

func (f *fakeSearchRepo) SearchCandidates(_ context.Context, _ SearchFilter, _ time.Time) ([]SearchCandidate, error) {
	return f.candidates, nil
}

type fakeRegionGetter struct {
	regions map[string]domain.Region
}

func (f *fakeRegionGetter) GetRegion(_ context.Context, id string) (domain.Region, error) {
	r, ok := f.regions[id]
	if !ok {
		return domain.Region{}, domain.ErrRegionNotFound
	}
	return r, nil
}

var (
	regionNairobi = domain.Region{ID: "region-nairobi", Name: "Nairobi", Centroid: domain.Point{Lat: -1.2921, Lng: 36.8219}}
	regionNakuru  = domain.Region{ID: "region-nakuru", Name: "Nakuru", Centroid: domain.Point{Lat: -0.3031, Lng: 36.0800}}
	regionMeru    = domain.Region{ID: "region-meru", Name: "Meru", Centroid: domain.Point{Lat: 0.0463, Lng: 37.6559}}
)

func candidate(id string, region domain.Region, priceKg float64, ordinal int) SearchCandidate {
	return SearchCandidate{
		Listing: domain.Listing{
			ID:            id,
			Crop:          "maize",
			QuantityKg:    1000,
			Grade:         domain.GradeA,
			AskingPriceKg: priceKg,
			MinOrderKg:    50,
			ReadyDate:     testNow.Add(7 * 24 * time.Hour),
			Status:        domain.ListingStatusActive,
			RegionID:      region.ID,
			CreatedAt:     testNow.Add(time.Duration(ordinal) * time.Minute),
		},
		Region:         region,
		SellerVerified: true,
		AvailableKg:    1000,
	}
}

func newSearchService(repo *fakeSearchRepo) *SearchService {
	regions := &fakeRegionGetter{regions: map[string]domain.Region{
		regionNairobi.ID: regionNairobi,
		regionNakuru.ID:  regionNakuru,
		regionMeru.ID:    regionMeru,
	}}
	resolver := &fakeResolver{region: regionNairobi}
	return NewSearchService(repo, resolver, regions, clock.NewFixed(testNow))
}

func TestSearchService_ExcludeMyRegion(t *testing.T) {
	t.Parallel()

	repo := &fakeSearchRepo{candidates: []SearchCandidate{
		candidate("local-1", regionNairobi, 40, 0),
		candidate("local-2", regionNairobi, 42, 1),
		candidate("nakuru-1", regionNakuru, 45, 2),
		candidate("meru-1", regionMeru, 44, 3),
	}}
	svc := newSearchService(repo)

	out, err := svc.Search(context.Background(), SearchInput{
		BuyerRegionID: regionNairobi.ID,
		Filter:        SearchFilter{ExcludeMyRegion: true},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	for _, r := range out.Results {
		if r.Listing.RegionID == regionNairobi.ID {
			t.Errorf("home-region listing %s leaked into results", r.Listing.ID)
		}
	}
	if out.Insights.ExcludedLocalListings != 2 {
		t.Errorf("excluded = %d, want 2", out.Insights.ExcludedLocalListings)
	}
	if out.Insights.RegionsCovered != 2 {
		t.Errorf("regions covered = %d, want 2", out.Insights.RegionsCovered)
	}
}

func TestSearchService_FailsOpenWhenRegionUnresolvable(t *testing.T) {
	t.Parallel()

	repo := &fakeSearchRepo{candidates: []SearchCandidate{
		candidate("local-1", regionNairobi, 40, 0),
		candidate("nakuru-1", regionNakuru, 45, 1),
	}}
	svc := newSearchService(repo)

	out, err := svc.Search(context.Background(), SearchInput{
		BuyerRegionID: "region-unknown",
		Filter:        SearchFilter{ExcludeMyRegion: true, PreferDifferentRegions: true},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Regional logic is disabled, not an error: every candidate comes back.
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	if out.Insights.ExcludedLocalListings != 0 {
		t.Errorf("excluded = %d, want 0", out.Insights.ExcludedLocalListings)
	}
}

func TestSearchService_RegionInterleave(t *testing.T) {
	t.Parallel()

	// Nakuru would fill the page on price alone; diversity must interleave.
	repo := &fakeSearchRepo{candidates: []SearchCandidate{
		candidate("nakuru-1", regionNakuru, 40, 0),
		candidate("nakuru-2", regionNakuru, 41, 1),
		candidate("nakuru-3", regionNakuru, 42, 2),
		candidate("meru-1", regionMeru, 48, 3),
		candidate("meru-2", regionMeru, 49, 4),
	}}
	svc := newSearchService(repo)

	out, err := svc.Search(context.Background(), SearchInput{
		BuyerRegionID: regionNairobi.ID,
		Filter:        SearchFilter{PreferDifferentRegions: true},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	var got []string
	for _, r := range out.Results {
		got = append(got, r.Listing.RegionID)
	}
	want := []string{"region-nakuru", "region-meru", "region-nakuru", "region-meru", "region-nakuru"}
	if len(got) != len(want) {
		t.Fatalf("results = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("round-robin order at %d = %q, want %q (full order %v)", i, got[i], want[i], got)
		}
	}
}

func TestSearchService_ScoringOrder(t *testing.T) {
	t.Parallel()

	// Same region and freshness, verified sellers: price decides.
	cheap := candidate("cheap", regionNakuru, 40, 1)
	dear := candidate("dear", regionNakuru, 60, 0)
	repo := &fakeSearchRepo{candidates: []SearchCandidate{dear, cheap}}
	svc := newSearchService(repo)

	out, err := svc.Search(context.Background(), SearchInput{BuyerRegionID: regionNairobi.ID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.Results[0].Listing.ID != "cheap" {
		t.Errorf("first result = %s, want cheap", out.Results[0].Listing.ID)
	}
	if out.Results[0].Score <= out.Results[1].Score {
		t.Errorf("scores not descending: %v then %v", out.Results[0].Score, out.Results[1].Score)
	}
}

func TestSearchService_VerifiedSellerOutranksOnTiedPrice(t *testing.T) {
	t.Parallel()

	verified := candidate("verified", regionNakuru, 45, 0)
	unverified := candidate("unverified", regionNakuru, 45, 1)
	unverified.SellerVerified = false
	repo := &fakeSearchRepo{candidates: []SearchCandidate{unverified, verified}}
	svc := newSearchService(repo)

	out, err := svc.Search(context.Background(), SearchInput{BuyerRegionID: regionNairobi.ID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.Results[0].Listing.ID != "verified" {
		t.Errorf("first result = %s, want verified", out.Results[0].Listing.ID)
	}
}

func TestSearchService_TieBreakByCreation(t *testing.T) {
	t.Parallel()

	older := candidate("older", regionNakuru, 45, 0)
	newer := candidate("newer", regionNakuru, 45, 5)
	repo := &fakeSearchRepo{candidates: []SearchCandidate{newer, older}}
	svc := newSearchService(repo)

	out, err := svc.Search(context.Background(), SearchInput{BuyerRegionID: regionNairobi.ID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.Results[0].Listing.ID != "older" {
		t.Errorf("first result = %s, want older (creation-time tie break)", out.Results[0].Listing.ID)
	}
}

func TestSearchService_LimitAndInsights(t *testing.T) {
	t.Parallel()

	repo := &fakeSearchRepo{candidates: []SearchCandidate{
		candidate("nakuru-1", regionNakuru, 40, 0),
		candidate("nakuru-2", regionNakuru, 41, 1),
		candidate("meru-1", regionMeru, 42, 2),
		candidate("meru-2", regionMeru, 43, 3),
		candidate("nairobi-1", regionNairobi, 44, 4),
	}}
	svc := newSearchService(repo)

	out, err := svc.Search(context.Background(), SearchInput{
		BuyerRegionID: regionNairobi.ID,
		Filter:        SearchFilter{Limit: 4},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out.Results) != 4 {
		t.Fatalf("results = %d, want 4", len(out.Results))
	}
	if out.Insights.RegionsCovered < 1 || out.Insights.RegionsCovered > 3 {
		t.Errorf("regions covered = %d", out.Insights.RegionsCovered)
	}
	if len(out.Insights.TopRegions) > 3 {
		t.Errorf("top regions = %d, want at most 3", len(out.Insights.TopRegions))
	}
	if out.Insights.AverageDistanceKm <= 0 {
		t.Errorf("average distance = %v, want > 0", out.Insights.AverageDistanceKm)
	}
}

func TestSearchService_EmptyPool(t *testing.T) {
	t.Parallel()

	svc := newSearchService(&fakeSearchRepo{})
	out, err := svc.Search(context.Background(), SearchInput{BuyerRegionID: regionNairobi.ID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out.Results) != 0 {
		t.Errorf("results = %d, want 0", len(out.Results))
	}
	if out.Insights.RegionsCovered != 0 || out.Insights.AverageDistanceKm != 0 {
		t.Errorf("insights = %+v, want zero", out.Insights)
	}
}
