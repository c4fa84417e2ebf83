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

// ContractRepository persists escrow contracts. A unique index on offer_id
// makes contract creation exactly-once per accepted offer; updates carry an
// optimistic version check on top of the row lock.
type ContractRepository struct {
	pool *pgxpool.Pool
}

func NewContractRepository(pool *pgxpool.Pool) *ContractRepository {
	return &ContractRepository{pool: pool}
}

func (r *ContractRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const contractColumns = `
id, offer_id, listing_id, seller_id, buyer_id, quantity_kg, price_kg,
total_amount, delivery_date, status, deposit_paid, final_paid, total_paid,
deposit_due, confirm_by, dispute_reason, resolution_note, resolved_at,
version, created_at`

func (r *ContractRepository) CreateContract(ctx context.Context, c domain.Contract) error {
	const stmt = `
INSERT INTO contracts (
  id, offer_id, listing_id, seller_id, buyer_id, quantity_kg, price_kg,
  total_amount, delivery_date, status, deposit_paid, final_paid, total_paid,
  deposit_due, confirm_by, dispute_reason, resolution_note, resolved_at,
  version, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	var confirmBy, resolvedAt any
	if c.ConfirmBy != nil {
		confirmBy = *c.ConfirmBy
	}
	if c.ResolvedAt != nil {
		resolvedAt = *c.ResolvedAt
	}
	_, err := r.exec(ctx, stmt,
		c.ID,
		c.OfferID,
		c.ListingID,
		c.SellerID,
		c.BuyerID,
		c.QuantityKg,
		c.PriceKg,
		c.TotalAmount,
		nullableTime(c.DeliveryDate),
		c.Status,
		c.Ledger.DepositPaid,
		c.Ledger.FinalPaid,
		c.Ledger.TotalPaid,
		c.DepositDue,
		confirmBy,
		c.DisputeReason,
		c.ResolutionNote,
		resolvedAt,
		c.Version,
		c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrContractExists
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrOfferNotFound
		}
		return fmt.Errorf("create contract: %w", err)
	}
	return nil
}

func (r *ContractRepository) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	return r.getContract(ctx, query, id)
}

func (r *ContractRepository) GetContractForUpdate(ctx context.Context, id string) (domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1 FOR UPDATE`
	return r.getContract(ctx, query, id)
}

func (r *ContractRepository) getContract(ctx context.Context, query, id string) (domain.Contract, error) {
	c, err := scanContract(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Contract{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Contract{}, domain.ErrContractNotFound
		}
		return domain.Contract{}, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

func (r *ContractRepository) GetContractByOffer(ctx context.Context, offerID string) (*domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE offer_id = $1`

	c, err := scanContract(r.queryRow(ctx, query, offerID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get contract by offer: %w", err)
	}
	return &c, nil
}

func scanContract(row pgx.Row) (domain.Contract, error) {
	var c domain.Contract
	var status string
	var deliveryDate, confirmBy, resolvedAt *time.Time
	err := row.Scan(
		&c.ID, &c.OfferID, &c.ListingID, &c.SellerID, &c.BuyerID, &c.QuantityKg, &c.PriceKg,
		&c.TotalAmount, &deliveryDate, &status, &c.Ledger.DepositPaid, &c.Ledger.FinalPaid,
		&c.Ledger.TotalPaid, &c.DepositDue, &confirmBy, &c.DisputeReason, &c.ResolutionNote,
		&resolvedAt, &c.Version, &c.CreatedAt,
	)
	if err != nil {
		return domain.Contract{}, err
	}
	c.DeliveryDate = timeOrZero(deliveryDate)
	c.Status = domain.ContractStatus(status)
	c.ConfirmBy = confirmBy
	c.ResolvedAt = resolvedAt
	return c, nil
}

func (r *ContractRepository) UpdateContract(ctx context.Context, c domain.Contract, expectedVersion int) error {
	const stmt = `
UPDATE contracts
SET status = $2, deposit_paid = $3, final_paid = $4, total_paid = $5,
    confirm_by = $6, dispute_reason = $7, resolution_note = $8, resolved_at = $9,
    version = $10
WHERE id = $1 AND version = $11`

	var confirmBy, resolvedAt any
	if c.ConfirmBy != nil {
		confirmBy = *c.ConfirmBy
	}
	if c.ResolvedAt != nil {
		resolvedAt = *c.ResolvedAt
	}
	tag, err := r.exec(ctx, stmt,
		c.ID, c.Status, c.Ledger.DepositPaid, c.Ledger.FinalPaid, c.Ledger.TotalPaid,
		confirmBy, c.DisputeReason, c.ResolutionNote, resolvedAt,
		c.Version, expectedVersion)
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleContract
	}
	return nil
}

func (r *ContractRepository) ListByParty(ctx context.Context, partyID string) ([]domain.Contract, error) {
	query := `SELECT ` + contractColumns + `
FROM contracts
WHERE buyer_id = $1 OR seller_id = $1
ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, partyID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate contracts: %w", rows.Err())
	}
	return contracts, nil
}

func (r *ContractRepository) ListDepositOverdue(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	const query = `
SELECT id
FROM contracts
WHERE status = 'pending_deposit' AND deposit_due <= $1
ORDER BY deposit_due ASC
LIMIT $2`
	return r.listIDs(ctx, query, cutoff, limit)
}

func (r *ContractRepository) ListConfirmationOverdue(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	const query = `
SELECT id
FROM contracts
WHERE status = 'awaiting_buyer_confirmation' AND confirm_by IS NOT NULL AND confirm_by <= $1
ORDER BY confirm_by ASC
LIMIT $2`
	return r.listIDs(ctx, query, cutoff, limit)
}

func (r *ContractRepository) listIDs(ctx context.Context, query string, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list due contracts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contract id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate contract ids: %w", rows.Err())
	}
	return ids, nil
}

func (r *ContractRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ContractRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
