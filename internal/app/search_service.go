package app

import (
	"context"
	"sort"
	"time"

	"github.com/agropulse/marketplace/internal/clock"
	"github.com/agropulse/marketplace/internal/domain"
	"github.com/agropulse/marketplace/internal/geo"
)

// SearchFilter narrows the candidate pool before ranking.
type SearchFilter struct {
	Crop          string
	MinQuantityKg float64
	MaxPriceKg    float64
	MinGrade      domain.QualityGrade
	ReadyBy       time.Time
	OrganicOnly   bool

	// Cross-regional controls. ExcludeMyRegion drops the buyer's home region
	// from the pool; PreferDifferentRegions interleaves regions round-robin
	// so no single region dominates the result page.
	ExcludeMyRegion        bool
	PreferDifferentRegions bool

	Limit int
}

// SearchCandidate is a listing joined with the reference data ranking needs.
type SearchCandidate struct {
	Listing        domain.Listing
	Region         domain.Region
	SellerVerified bool
	AvailableKg    float64
}

// ListingResult is one ranked search hit.
type ListingResult struct {
	Listing        domain.Listing
	RegionName     string
	DistanceKm     float64
	SellerVerified bool
	AvailableKg    float64
	Score          float64
}

// RegionCount reports how many results a region contributed.
type RegionCount struct {
	RegionID string
	Name     string
	Listings int
}

// RegionalInsights is descriptive metadata emitted alongside results; it is
// never an input to ranking.
type RegionalInsights struct {
	RegionsCovered        int
	ExcludedLocalListings int
	AverageDistanceKm     float64
	TopRegions            []RegionCount
}

type SearchRepository interface {
	SearchCandidates(ctx context.Context, filter SearchFilter, now time.Time) ([]SearchCandidate, error)
}

// ScoreWeights configures the composite ranking score. Terms are normalized
// to [0,1] across the candidate pool before weighting.
type ScoreWeights struct {
	Price     float64
	Distance  float64
	Verified  float64
	Freshness float64
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Price: 0.4, Distance: 0.25, Verified: 0.15, Freshness: 0.2}
}

// SearchService ranks catalog listings for a buyer query. Reads run against a
// point-in-time snapshot with no locking; slight staleness against very
// recent writes is acceptable.
type SearchService struct {
	repo     SearchRepository
	resolver RegionResolver
	regions  RegionGetter
	clock    clock.Clock
	weights  ScoreWeights
	topN     int
}

type RegionGetter interface {
	GetRegion(ctx context.Context, id string) (domain.Region, error)
}

const defaultTopRegions = 3

func NewSearchService(repo SearchRepository, resolver RegionResolver, regions RegionGetter, clk clock.Clock, opts ...SearchServiceOption) *SearchService {
	svc := &SearchService{
		repo:     repo,
		resolver: resolver,
		regions:  regions,
		clock:    clk,
		weights:  DefaultScoreWeights(),
		topN:     defaultTopRegions,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type SearchServiceOption func(*SearchService)

// WithScoreWeights overrides the composite score weights.
func WithScoreWeights(w ScoreWeights) SearchServiceOption {
	return func(s *SearchService) { s.weights = w }
}

type SearchInput struct {
	// Either BuyerRegionID or BuyerLocation identifies the buyer's home
	// region; both empty (or unresolvable) disables the regional logic.
	BuyerRegionID string
	BuyerLocation *domain.Point
	Filter        SearchFilter
}

type SearchOutput struct {
	Results  []ListingResult
	Insights RegionalInsights
}

func (s *SearchService) Search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	now := s.clock.Now()

	candidates, err := s.repo.SearchCandidates(ctx, in.Filter, now)
	if err != nil {
		return SearchOutput{}, err
	}

	// Resolve the buyer's home region. Failure fails open: regional
	// exclusion and diversity are disabled rather than erroring the search.
	buyerRegion, haveBuyerRegion := s.buyerRegion(ctx, in)

	var insights RegionalInsights
	pool := candidates
	if haveBuyerRegion && in.Filter.ExcludeMyRegion {
		pool = make([]SearchCandidate, 0, len(candidates))
		for _, c := range candidates {
			if c.Listing.RegionID == buyerRegion.ID {
				insights.ExcludedLocalListings++
				continue
			}
			pool = append(pool, c)
		}
	}

	scored := s.score(pool, buyerRegion, haveBuyerRegion, now)

	diversify := in.Filter.PreferDifferentRegions && haveBuyerRegion
	var ranked []ListingResult
	if diversify {
		ranked = interleaveByRegion(scored)
	} else {
		ranked = scored
	}

	if in.Filter.Limit > 0 && len(ranked) > in.Filter.Limit {
		ranked = ranked[:in.Filter.Limit]
	}

	s.fillInsights(&insights, ranked)
	return SearchOutput{Results: ranked, Insights: insights}, nil
}

func (s *SearchService) buyerRegion(ctx context.Context, in SearchInput) (domain.Region, bool) {
	if in.BuyerRegionID != "" {
		region, err := s.regions.GetRegion(ctx, in.BuyerRegionID)
		if err == nil {
			return region, true
		}
		return domain.Region{}, false
	}
	if in.BuyerLocation != nil {
		region, err := s.resolver.Resolve(*in.BuyerLocation)
		if err == nil {
			return region, true
		}
	}
	return domain.Region{}, false
}

// score computes the composite ranking score and returns results ordered best
// first, ties broken by listing creation time for determinism.
func (s *SearchService) score(pool []SearchCandidate, buyerRegion domain.Region, haveBuyerRegion bool, now time.Time) []ListingResult {
	if len(pool) == 0 {
		return nil
	}

	minPrice, maxPrice := pool[0].Listing.AskingPriceKg, pool[0].Listing.AskingPriceKg
	var maxDist float64
	var maxFresh float64
	dists := make([]float64, len(pool))
	fresh := make([]float64, len(pool))
	for i, c := range pool {
		p := c.Listing.AskingPriceKg
		if p < minPrice {
			minPrice = p
		}
		if p > maxPrice {
			maxPrice = p
		}
		if haveBuyerRegion {
			dists[i] = geo.DistanceKm(buyerRegion.Centroid, c.Region.Centroid)
			if dists[i] > maxDist {
				maxDist = dists[i]
			}
		}
		f := c.Listing.ReadyDate.Sub(now).Hours()
		if f < 0 {
			f = 0
		}
		fresh[i] = f
		if f > maxFresh {
			maxFresh = f
		}
	}

	results := make([]ListingResult, len(pool))
	for i, c := range pool {
		priceScore := 1.0
		if maxPrice > minPrice {
			priceScore = 1 - (c.Listing.AskingPriceKg-minPrice)/(maxPrice-minPrice)
		}
		distScore := 1.0
		if haveBuyerRegion && maxDist > 0 {
			distScore = 1 - dists[i]/maxDist
		}
		verifiedScore := 0.0
		if c.SellerVerified {
			verifiedScore = 1.0
		}
		freshScore := 1.0
		if maxFresh > 0 {
			freshScore = 1 - fresh[i]/maxFresh
		}

		score := s.weights.Price*priceScore +
			s.weights.Distance*distScore +
			s.weights.Verified*verifiedScore +
			s.weights.Freshness*freshScore

		results[i] = ListingResult{
			Listing:        c.Listing,
			RegionName:     c.Region.Name,
			DistanceKm:     dists[i],
			SellerVerified: c.SellerVerified,
			AvailableKg:    c.AvailableKg,
			Score:          score,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Listing.CreatedAt.Before(results[j].Listing.CreatedAt)
	})
	return results
}

// interleaveByRegion re-ranks scored results round-robin across regions: one
// listing from each distinct region per round. Regions take turns in order of
// their best-scoring listing, spreading buyer demand across supplier regions
// instead of letting the best-priced region fill the page.
func interleaveByRegion(scored []ListingResult) []ListingResult {
	if len(scored) == 0 {
		return scored
	}

	var order []string
	groups := make(map[string][]ListingResult)
	for _, r := range scored {
		key := r.Listing.RegionID
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := make([]ListingResult, 0, len(scored))
	for round := 0; len(out) < len(scored); round++ {
		for _, key := range order {
			group := groups[key]
			if round < len(group) {
				out = append(out, group[round])
			}
		}
	}
	return out
}

func (s *SearchService) fillInsights(insights *RegionalInsights, ranked []ListingResult) {
	counts := make(map[string]*RegionCount)
	var totalDist float64
	for _, r := range ranked {
		rc, ok := counts[r.Listing.RegionID]
		if !ok {
			rc = &RegionCount{RegionID: r.Listing.RegionID, Name: r.RegionName}
			counts[r.Listing.RegionID] = rc
		}
		rc.Listings++
		totalDist += r.DistanceKm
	}
	insights.RegionsCovered = len(counts)
	if len(ranked) > 0 {
		insights.AverageDistanceKm = totalDist / float64(len(ranked))
	}

	top := make([]RegionCount, 0, len(counts))
	for _, rc := range counts {
		top = append(top, *rc)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Listings != top[j].Listings {
			return top[i].Listings > top[j].Listings
		}
		return top[i].RegionID < top[j].RegionID
	})
	if len(top) > s.topN {
		top = top[:s.topN]
	}
	insights.TopRegions = top
}
