package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agropulse/marketplace/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminRepository persists the reference data: regions and parties.
type AdminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

type boundaryPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func encodeBoundary(points []domain.Point) ([]byte, error) {
	if len(points) == 0 {
		return []byte("[]"), nil
	}
	out := make([]boundaryPoint, len(points))
	for i, p := range points {
		out[i] = boundaryPoint{Lat: p.Lat, Lng: p.Lng}
	}
	return json.Marshal(out)
}

func decodeBoundary(raw []byte) ([]domain.Point, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var pts []boundaryPoint
	if err := json.Unmarshal(raw, &pts); err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, nil
	}
	out := make([]domain.Point, len(pts))
	for i, p := range pts {
		out[i] = domain.Point{Lat: p.Lat, Lng: p.Lng}
	}
	return out, nil
}

func (r *AdminRepository) CreateRegion(ctx context.Context, region domain.Region) error {
	const stmt = `
INSERT INTO regions (id, name, centroid_lat, centroid_lng, boundary, radius_km)
VALUES ($1, $2, $3, $4, $5, $6)`

	boundary, err := encodeBoundary(region.Boundary)
	if err != nil {
		return fmt.Errorf("encode boundary: %w", err)
	}
	_, err = r.pool.Exec(ctx, stmt,
		region.ID, region.Name, region.Centroid.Lat, region.Centroid.Lng, boundary, region.RadiusKm)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			return domain.ErrInvalidStatus
		}
		return fmt.Errorf("create region: %w", err)
	}
	return nil
}

func (r *AdminRepository) GetRegion(ctx context.Context, id string) (domain.Region, error) {
	const query = `
SELECT id, name, centroid_lat, centroid_lng, boundary, radius_km
FROM regions
WHERE id = $1`

	region, err := scanRegion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Region{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Region{}, domain.ErrRegionNotFound
		}
		return domain.Region{}, fmt.Errorf("get region: %w", err)
	}
	return region, nil
}

func (r *AdminRepository) ListRegions(ctx context.Context) ([]domain.Region, error) {
	const query = `
SELECT id, name, centroid_lat, centroid_lng, boundary, radius_km
FROM regions
ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var regions []domain.Region
	for rows.Next() {
		region, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		regions = append(regions, region)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate regions: %w", rows.Err())
	}
	return regions, nil
}

func scanRegion(row pgx.Row) (domain.Region, error) {
	var region domain.Region
	var boundary []byte
	if err := row.Scan(&region.ID, &region.Name, &region.Centroid.Lat, &region.Centroid.Lng, &boundary, &region.RadiusKm); err != nil {
		return domain.Region{}, err
	}
	pts, err := decodeBoundary(boundary)
	if err != nil {
		return domain.Region{}, err
	}
	region.Boundary = pts
	return region, nil
}

func (r *AdminRepository) CreateParty(ctx context.Context, party domain.Party) error {
	const stmt = `
INSERT INTO parties (id, name, role, region_id, lat, lng, verification, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, stmt,
		party.ID, party.Name, party.Role, party.RegionID,
		party.Location.Lat, party.Location.Lng, party.Verification, party.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrRegionNotFound
		}
		return fmt.Errorf("create party: %w", err)
	}
	return nil
}

func (r *AdminRepository) GetParty(ctx context.Context, id string) (domain.Party, error) {
	const query = `
SELECT id, name, role, region_id, lat, lng, verification, created_at
FROM parties
WHERE id = $1`

	var p domain.Party
	var role, verification string
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&p.ID, &p.Name, &role, &p.RegionID, &p.Location.Lat, &p.Location.Lng, &verification, &p.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Party{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Party{}, domain.ErrPartyNotFound
		}
		return domain.Party{}, fmt.Errorf("get party: %w", err)
	}
	p.Role = domain.PartyRole(role)
	p.Verification = domain.VerificationStatus(verification)
	return p, nil
}

func (r *AdminRepository) UpdatePartyVerification(ctx context.Context, id string, status domain.VerificationStatus) error {
	const stmt = `UPDATE parties SET verification = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, stmt, id, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update party verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPartyNotFound
	}
	return nil
}
