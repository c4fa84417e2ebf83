package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/agropulse/marketplace/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListingRepository persists listings and their quantity reservations.
type ListingRepository struct {
	pool *pgxpool.Pool
}

func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

func (r *ListingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const listingColumns = `
id, seller_id, crop, quantity_kg, grade, asking_price_kg, min_order_kg,
ready_date, status, region_id, storage_location, delivery_available, organic,
prefer_cross_regional, avoid_local_competition, created_at`

func (r *ListingRepository) CreateListing(ctx context.Context, listing domain.Listing) error {
	const stmt = `
INSERT INTO listings (
  id, seller_id, crop, quantity_kg, grade, asking_price_kg, min_order_kg,
  ready_date, status, region_id, storage_location, delivery_available, organic,
  prefer_cross_regional, avoid_local_competition, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.exec(ctx, stmt,
		listing.ID,
		listing.SellerID,
		listing.Crop,
		listing.QuantityKg,
		listing.Grade,
		listing.AskingPriceKg,
		listing.MinOrderKg,
		listing.ReadyDate,
		listing.Status,
		listing.RegionID,
		listing.StorageLocation,
		listing.DeliveryAvailable,
		listing.Organic,
		listing.PreferCrossRegional,
		listing.AvoidLocalCompetition,
		listing.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrPartyNotFound
		}
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

func (r *ListingRepository) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	return r.getListing(ctx, query, id)
}

func (r *ListingRepository) GetListingForUpdate(ctx context.Context, id string) (domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 FOR UPDATE`
	return r.getListing(ctx, query, id)
}

func (r *ListingRepository) getListing(ctx context.Context, query, id string) (domain.Listing, error) {
	listing, err := scanListing(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Listing{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return listing, nil
}

func scanListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	var grade, status string
	err := row.Scan(
		&l.ID, &l.SellerID, &l.Crop, &l.QuantityKg, &grade, &l.AskingPriceKg, &l.MinOrderKg,
		&l.ReadyDate, &status, &l.RegionID, &l.StorageLocation, &l.DeliveryAvailable, &l.Organic,
		&l.PreferCrossRegional, &l.AvoidLocalCompetition, &l.CreatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Grade = domain.QualityGrade(grade)
	l.Status = domain.ListingStatus(status)
	return l, nil
}

func (r *ListingRepository) UpdateListing(ctx context.Context, listing domain.Listing) error {
	const stmt = `
UPDATE listings
SET quantity_kg = $2, asking_price_kg = $3, min_order_kg = $4, status = $5
WHERE id = $1`

	tag, err := r.exec(ctx, stmt,
		listing.ID, listing.QuantityKg, listing.AskingPriceKg, listing.MinOrderKg, listing.Status)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *ListingRepository) ListBySeller(ctx context.Context, sellerID string, status domain.ListingStatus) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE seller_id = $1`
	args := []any{sellerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list by seller: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, listing)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate listings: %w", rows.Err())
	}
	return listings, nil
}

func (r *ListingRepository) ExpireReadyBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const stmt = `
UPDATE listings
SET status = 'expired'
WHERE status = 'active' AND ready_date < $1`

	tag, err := r.exec(ctx, stmt, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ListingRepository) SumActiveReservations(ctx context.Context, listingID string, now time.Time) (float64, error) {
	const query = `
SELECT COALESCE(SUM(quantity_kg), 0)
FROM reservations
WHERE listing_id = $1 AND status = 'active' AND expires_at > $2`

	var total float64
	if err := r.queryRow(ctx, query, listingID, now).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}
	return total, nil
}

func (r *ListingRepository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, listing_id, offer_id, quantity_kg, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		res.ID, res.ListingID, res.OfferID, res.QuantityKg, res.Status, res.ExpiresAt, res.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOffer
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *ListingRepository) GetReservationByOffer(ctx context.Context, offerID string) (domain.Reservation, error) {
	const query = `
SELECT id, listing_id, offer_id, quantity_kg, status, expires_at, created_at
FROM reservations
WHERE offer_id = $1`

	var res domain.Reservation
	var status string
	err := r.queryRow(ctx, query, offerID).
		Scan(&res.ID, &res.ListingID, &res.OfferID, &res.QuantityKg, &status, &res.ExpiresAt, &res.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	res.Status = domain.ReservationStatus(status)
	return res, nil
}

func (r *ListingRepository) UpdateReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
UPDATE reservations
SET quantity_kg = $2, status = $3, expires_at = $4
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, res.ID, res.QuantityKg, res.Status, res.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *ListingRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ListingRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
