package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agropulse/marketplace/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OfferRepository persists negotiation offers. A partial unique index keeps at
// most one open offer per (listing, buyer); the latest counter terms live in a
// jsonb column alongside the original bid.
type OfferRepository struct {
	pool *pgxpool.Pool
}

func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

func (r *OfferRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

type counterRecord struct {
	QuantityKg float64 `json:"quantity_kg"`
	PriceKg    float64 `json:"price_kg"`
	ProposedBy string  `json:"proposed_by"`
	Round      int     `json:"round"`
	Note       string  `json:"note,omitempty"`
}

func encodeCounter(c *domain.CounterTerms) (any, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(counterRecord{
		QuantityKg: c.QuantityKg,
		PriceKg:    c.PriceKg,
		ProposedBy: string(c.ProposedBy),
		Round:      c.Round,
		Note:       c.Note,
	})
}

func decodeCounter(raw []byte) (*domain.CounterTerms, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rec counterRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &domain.CounterTerms{
		QuantityKg: rec.QuantityKg,
		PriceKg:    rec.PriceKg,
		ProposedBy: domain.PartyRole(rec.ProposedBy),
		Round:      rec.Round,
		Note:       rec.Note,
	}, nil
}

const offerColumns = `
id, listing_id, buyer_id, quantity_kg, price_kg, delivery_date, status,
counter, awaiting, round, expires_at, created_at`

func (r *OfferRepository) CreateOffer(ctx context.Context, offer domain.Offer) error {
	const stmt = `
INSERT INTO offers (
  id, listing_id, buyer_id, quantity_kg, price_kg, delivery_date, status,
  counter, awaiting, round, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	counter, err := encodeCounter(offer.Counter)
	if err != nil {
		return fmt.Errorf("encode counter: %w", err)
	}
	_, err = r.exec(ctx, stmt,
		offer.ID,
		offer.ListingID,
		offer.BuyerID,
		offer.QuantityKg,
		offer.PriceKg,
		nullableTime(offer.DeliveryDate),
		offer.Status,
		counter,
		offer.Awaiting,
		offer.Round,
		offer.ExpiresAt,
		offer.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOffer
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrListingNotFound
		}
		return fmt.Errorf("create offer: %w", err)
	}
	return nil
}

func (r *OfferRepository) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	return r.getOffer(ctx, query, id)
}

func (r *OfferRepository) GetOfferForUpdate(ctx context.Context, id string) (domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 FOR UPDATE`
	return r.getOffer(ctx, query, id)
}

func (r *OfferRepository) getOffer(ctx context.Context, query, id string) (domain.Offer, error) {
	offer, err := scanOffer(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Offer{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Offer{}, domain.ErrOfferNotFound
		}
		return domain.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return offer, nil
}

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var o domain.Offer
	var status, awaiting string
	var deliveryDate *time.Time
	var counter []byte
	err := row.Scan(
		&o.ID, &o.ListingID, &o.BuyerID, &o.QuantityKg, &o.PriceKg, &deliveryDate,
		&status, &counter, &awaiting, &o.Round, &o.ExpiresAt, &o.CreatedAt,
	)
	if err != nil {
		return domain.Offer{}, err
	}
	o.DeliveryDate = timeOrZero(deliveryDate)
	o.Status = domain.OfferStatus(status)
	o.Awaiting = domain.PartyRole(awaiting)
	c, err := decodeCounter(counter)
	if err != nil {
		return domain.Offer{}, err
	}
	o.Counter = c
	return o, nil
}

func (r *OfferRepository) UpdateOffer(ctx context.Context, offer domain.Offer) error {
	const stmt = `
UPDATE offers
SET status = $2, counter = $3, awaiting = $4, round = $5, expires_at = $6
WHERE id = $1`

	counter, err := encodeCounter(offer.Counter)
	if err != nil {
		return fmt.Errorf("encode counter: %w", err)
	}
	tag, err := r.exec(ctx, stmt,
		offer.ID, offer.Status, counter, offer.Awaiting, offer.Round, offer.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOfferNotFound
	}
	return nil
}

func (r *OfferRepository) FindOpenOffer(ctx context.Context, listingID, buyerID string) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + `
FROM offers
WHERE listing_id = $1 AND buyer_id = $2 AND status IN ('pending', 'countered')`

	offer, err := scanOffer(r.queryRow(ctx, query, listingID, buyerID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find open offer: %w", err)
	}
	return &offer, nil
}

func (r *OfferRepository) ListOpenExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	const query = `
SELECT id
FROM offers
WHERE status IN ('pending', 'countered') AND expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired offers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan offer id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate offer ids: %w", rows.Err())
	}
	return ids, nil
}

func (r *OfferRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OfferRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
