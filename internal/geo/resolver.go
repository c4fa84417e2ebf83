// Package geo resolves coordinates to administrative regions and provides
// the distance primitives used by search ranking.
package geo

import (
	"math"

	"github.com/agropulse/marketplace/internal/domain"
)

const earthRadiusKm = 6371.0

// DistanceKm is the haversine great-circle distance between two points.
func DistanceKm(a, b domain.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Resolver maps coordinates to regions. The region set is immutable reference
// data loaded once; lookups are deterministic.
type Resolver struct {
	regions []domain.Region

	// maxCentroidKm caps the nearest-centroid fallback so points far from
	// every known region still fail with ErrRegionNotFound.
	maxCentroidKm float64
}

const defaultMaxCentroidKm = 75.0

func NewResolver(regions []domain.Region, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		regions:       append([]domain.Region{}, regions...),
		maxCentroidKm: defaultMaxCentroidKm,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type ResolverOption func(*Resolver)

// WithMaxCentroidDistance overrides the nearest-centroid fallback cap.
func WithMaxCentroidDistance(km float64) ResolverOption {
	return func(r *Resolver) {
		if km > 0 {
			r.maxCentroidKm = km
		}
	}
}

// Resolve returns the region containing p. Polygon boundaries win over radius
// boundaries; when p falls inside no boundary the nearest centroid within the
// fallback cap is used. Callers must handle ErrRegionNotFound with their own
// fallback policy rather than assuming an arbitrary region.
func (r *Resolver) Resolve(p domain.Point) (domain.Region, error) {
	for _, region := range r.regions {
		if len(region.Boundary) >= 3 && pointInPolygon(p, region.Boundary) {
			return region, nil
		}
	}
	for _, region := range r.regions {
		if len(region.Boundary) >= 3 || region.RadiusKm <= 0 {
			continue
		}
		if DistanceKm(p, region.Centroid) <= region.RadiusKm {
			return region, nil
		}
	}

	best := domain.Region{}
	bestDist := math.MaxFloat64
	for _, region := range r.regions {
		d := DistanceKm(p, region.Centroid)
		if d < bestDist {
			best = region
			bestDist = d
		}
	}
	if best.ID != "" && bestDist <= r.maxCentroidKm {
		return best, nil
	}
	return domain.Region{}, domain.ErrRegionNotFound
}

// pointInPolygon is a standard ray-casting test. Vertices on an edge may land
// on either side; region boundaries are coarse administrative shapes, so the
// ambiguity is acceptable.
func pointInPolygon(p domain.Point, poly []domain.Point) bool {
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Lat > p.Lat) != (pj.Lat > p.Lat) {
			crossLng := (pj.Lng-pi.Lng)*(p.Lat-pi.Lat)/(pj.Lat-pi.Lat) + pi.Lng
			if p.Lng < crossLng {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
