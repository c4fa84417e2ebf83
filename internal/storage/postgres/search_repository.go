package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agropulse/marketplace/internal/app"
	"github.com/agropulse/marketplace/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SearchRepository reads the ranking candidate pool: active listings joined
// with their region and seller, with availability already net of active holds.
// Search reads take no locks; staleness against in-flight reservations is
// acceptable.
type SearchRepository struct {
	pool *pgxpool.Pool
}

func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

func (r *SearchRepository) SearchCandidates(ctx context.Context, filter app.SearchFilter, now time.Time) ([]app.SearchCandidate, error) {
	var b strings.Builder
	b.WriteString(`
SELECT
  l.id, l.seller_id, l.crop, l.quantity_kg, l.grade, l.asking_price_kg,
  l.min_order_kg, l.ready_date, l.status, l.region_id, l.storage_location,
  l.delivery_available, l.organic, l.prefer_cross_regional,
  l.avoid_local_competition, l.created_at,
  r.id, r.name, r.centroid_lat, r.centroid_lng, r.boundary, r.radius_km,
  p.verification = 'verified',
  l.quantity_kg - COALESCE(held.kg, 0)
FROM listings l
JOIN regions r ON r.id = l.region_id
JOIN parties p ON p.id = l.seller_id
LEFT JOIN (
  SELECT listing_id, SUM(quantity_kg) AS kg
  FROM reservations
  WHERE status = 'active' AND expires_at > $1
  GROUP BY listing_id
) held ON held.listing_id = l.id
WHERE l.status = 'active'`)

	args := []any{now}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Crop != "" {
		b.WriteString(" AND l.crop ILIKE " + arg("%"+filter.Crop+"%"))
	}
	if filter.MaxPriceKg > 0 {
		b.WriteString(" AND l.asking_price_kg <= " + arg(filter.MaxPriceKg))
	}
	if filter.MinGrade != "" {
		b.WriteString(`
 AND (CASE l.grade WHEN 'A' THEN 3 WHEN 'B' THEN 2 WHEN 'C' THEN 1 ELSE 0 END) >= ` +
			arg(filter.MinGrade.Rank()))
	}
	if !filter.ReadyBy.IsZero() {
		b.WriteString(" AND l.ready_date <= " + arg(filter.ReadyBy))
	}
	if filter.OrganicOnly {
		b.WriteString(" AND l.organic")
	}
	if filter.MinQuantityKg > 0 {
		b.WriteString(" AND l.quantity_kg - COALESCE(held.kg, 0) >= " + arg(filter.MinQuantityKg))
	}
	b.WriteString(" ORDER BY l.created_at ASC")

	rows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	defer rows.Close()

	var candidates []app.SearchCandidate
	for rows.Next() {
		var c app.SearchCandidate
		var grade, status string
		var boundary []byte
		err := rows.Scan(
			&c.Listing.ID, &c.Listing.SellerID, &c.Listing.Crop, &c.Listing.QuantityKg,
			&grade, &c.Listing.AskingPriceKg, &c.Listing.MinOrderKg, &c.Listing.ReadyDate,
			&status, &c.Listing.RegionID, &c.Listing.StorageLocation,
			&c.Listing.DeliveryAvailable, &c.Listing.Organic,
			&c.Listing.PreferCrossRegional, &c.Listing.AvoidLocalCompetition, &c.Listing.CreatedAt,
			&c.Region.ID, &c.Region.Name, &c.Region.Centroid.Lat, &c.Region.Centroid.Lng,
			&boundary, &c.Region.RadiusKm,
			&c.SellerVerified,
			&c.AvailableKg,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Listing.Grade = domain.QualityGrade(grade)
		c.Listing.Status = domain.ListingStatus(status)
		pts, err := decodeBoundary(boundary)
		if err != nil {
			return nil, fmt.Errorf("decode boundary: %w", err)
		}
		c.Region.Boundary = pts
		candidates = append(candidates, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate candidates: %w", rows.Err())
	}
	return candidates, nil
}
