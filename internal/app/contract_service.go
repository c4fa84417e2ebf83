package app

import (
	"context"
	"log"
	"time"

	"github.com/agropulse/marketplace/internal/clock"
	"github.com/agropulse/marketplace/internal/domain"
	"github.com/agropulse/marketplace/internal/gateway"
)

type ContractRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateContract(ctx context.Context, c domain.Contract) error
	GetContract(ctx context.Context, id string) (domain.Contract, error)
	GetContractForUpdate(ctx context.Context, id string) (domain.Contract, error)
	GetContractByOffer(ctx context.Context, offerID string) (*domain.Contract, error)
	// UpdateContract applies c only when the stored row still carries
	// expectedVersion; a lost race returns domain.ErrStaleContract.
	UpdateContract(ctx context.Context, c domain.Contract, expectedVersion int) error
	ListByParty(ctx context.Context, partyID string) ([]domain.Contract, error)
	ListDepositOverdue(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	ListConfirmationOverdue(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Escrow is the slice of the catalog the escrow engine needs: converting and
// releasing offer reservations.
type Escrow interface {
	Commit(ctx context.Context, offerID string) error
	Release(ctx context.Context, offerID string) error
}

// ContractService drives the escrow state machine from deposit through
// delivery to settlement or dispute. Every transition runs under the contract
// row lock with an optimistic version check, and re-invoking an applied
// transition returns the current contract: the payment gateway may deliver
// duplicate success callbacks.
type ContractService struct {
	repo     ContractRepository
	catalog  Escrow
	payments gateway.PaymentGateway
	notifier gateway.Notifier
	clock    clock.Clock
	logger   *log.Logger

	depositWindow time.Duration
	confirmWindow time.Duration
	retryAttempts int
	retryBackoff  time.Duration
}

const (
	defaultDepositWindow = 48 * time.Hour
	defaultConfirmWindow = 24 * time.Hour
)

func NewContractService(repo ContractRepository, catalog Escrow, payments gateway.PaymentGateway, notifier gateway.Notifier, clk clock.Clock, opts ...ContractServiceOption) *ContractService {
	svc := &ContractService{
		repo:          repo,
		catalog:       catalog,
		payments:      payments,
		notifier:      notifier,
		clock:         clk,
		logger:        log.Default(),
		depositWindow: defaultDepositWindow,
		confirmWindow: defaultConfirmWindow,
		retryAttempts: gateway.DefaultAttempts,
		retryBackoff:  gateway.DefaultBackoff,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ContractServiceOption func(*ContractService)

// WithDepositWindow overrides how long a contract may sit in pending_deposit.
func WithDepositWindow(d time.Duration) ContractServiceOption {
	return func(s *ContractService) {
		if d > 0 {
			s.depositWindow = d
		}
	}
}

// WithConfirmWindow overrides the buyer confirmation window after delivery.
func WithConfirmWindow(d time.Duration) ContractServiceOption {
	return func(s *ContractService) {
		if d > 0 {
			s.confirmWindow = d
		}
	}
}

// WithGatewayRetry overrides the bounded retry for payment gateway calls.
func WithGatewayRetry(attempts int, backoff time.Duration) ContractServiceOption {
	return func(s *ContractService) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithContractLogger overrides the service logger.
func WithContractLogger(l *log.Logger) ContractServiceOption {
	return func(s *ContractService) {
		if l != nil {
			s.logger = l
		}
	}
}

// CreateFromOffer forms the contract for an accepted offer, exactly once:
// a second call with the same offer returns the existing contract. The
// agreed terms are the offer's effective terms at acceptance time.
func (s *ContractService) CreateFromOffer(ctx context.Context, offer domain.Offer, listing domain.Listing) (domain.Contract, error) {
	qty, price := offer.EffectiveTerms()
	now := s.clock.Now()

	deliveryDate := offer.DeliveryDate
	if deliveryDate.IsZero() {
		deliveryDate = listing.ReadyDate
	}

	contract := domain.Contract{
		ID:           newID(),
		OfferID:      offer.ID,
		ListingID:    listing.ID,
		SellerID:     listing.SellerID,
		BuyerID:      offer.BuyerID,
		QuantityKg:   qty,
		PriceKg:      price,
		TotalAmount:  qty * price,
		DeliveryDate: deliveryDate,
		Status:       domain.ContractStatusPendingDeposit,
		DepositDue:   now.Add(s.depositWindow),
		Version:      1,
		CreatedAt:    now,
	}

	var result domain.Contract
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetContractByOffer(txCtx, offer.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = *existing
			return nil
		}
		if err := s.repo.CreateContract(txCtx, contract); err != nil {
			// A concurrent accept won the race; return its contract.
			if err == domain.ErrContractExists {
				existing, err := s.repo.GetContractByOffer(txCtx, offer.ID)
				if err != nil {
					return err
				}
				if existing != nil {
					result = *existing
					return nil
				}
			}
			return err
		}
		result = contract
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}
	return result, nil
}

func (s *ContractService) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	if id == "" {
		return domain.Contract{}, domain.ErrInvalidID
	}
	return s.repo.GetContract(ctx, id)
}

func (s *ContractService) ListByParty(ctx context.Context, partyID string) ([]domain.Contract, error) {
	if partyID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListByParty(ctx, partyID)
}

// PayDeposit captures the buyer's earnest deposit through the payment gateway
// and, on confirmed success, permanently commits the listing reservation.
// A duplicate callback after success returns the current contract unchanged;
// a gateway failure leaves the contract in pending_deposit.
func (s *ContractService) PayDeposit(ctx context.Context, contractID, buyerID string) (domain.Contract, error) {
	if contractID == "" || buyerID == "" {
		return domain.Contract{}, domain.ErrInvalidID
	}

	var result domain.Contract
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.GetContractForUpdate(txCtx, contractID)
		if err != nil {
			return err
		}
		if c.BuyerID != buyerID {
			return domain.ErrUnauthorizedActor
		}
		if c.Ledger.DepositPaid {
			result = c
			return nil
		}
		if c.Status != domain.ContractStatusPendingDeposit {
			return domain.ErrStaleContract
		}

		amount := c.DepositAmount()
		gerr := gateway.Retry(txCtx, s.retryAttempts, s.retryBackoff, func(rctx context.Context) error {
			_, err := s.payments.InitiateDeposit(rctx, c.ID, amount, c.BuyerID)
			return err
		})
		if gerr != nil {
			return &domain.GatewayError{Op: "initiate_deposit", Err: gerr}
		}

		expected := c.Version
		c.Status = domain.ContractStatusDepositPaid
		c.Ledger.DepositPaid = true
		c.Ledger.TotalPaid += amount
		c.Version++
		if err := s.repo.UpdateContract(txCtx, c, expected); err != nil {
			return err
		}
		if err := s.catalog.Commit(txCtx, c.OfferID); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}

	s.notify(ctx, result.SellerID, gateway.EventDepositReceived, map[string]string{"contract_id": result.ID})
	return result, nil
}

// Cancel abandons an undeposited contract and releases its reservation.
// After deposit capture, cancellation requires the dispute path.
func (s *ContractService) Cancel(ctx context.Context, contractID, actorID string) (domain.Contract, error) {
	if contractID == "" || actorID == "" {
		return domain.Contract{}, domain.ErrInvalidID
	}

	var result domain.Contract
	var counterparty string
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.GetContractForUpdate(txCtx, contractID)
		if err != nil {
			return err
		}
		if actorID != c.BuyerID && actorID != c.SellerID {
			return domain.ErrUnauthorizedActor
		}
		if c.Status == domain.ContractStatusCancelled {
			result = c
			return nil
		}
		if c.Status != domain.ContractStatusPendingDeposit {
			return domain.ErrStaleContract
		}

		expected := c.Version
		c.Status = domain.ContractStatusCancelled
		c.Version++
		if err := s.repo.UpdateContract(txCtx, c, expected); err != nil {
			return err
		}
		if err := s.catalog.Release(txCtx, c.OfferID); err != nil {
			return err
		}
		if actorID == c.BuyerID {
			counterparty = c.SellerID
		} else {
			counterparty = c.BuyerID
		}
		result = c
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}

	if counterparty != "" {
		s.notify(ctx, counterparty, gateway.EventContractCancelled, map[string]string{"contract_id": result.ID})
	}
	return result, nil
}

// StartDelivery records the seller's dispatch: deposit_paid -> in_transit.
func (s *ContractService) StartDelivery(ctx context.Context, contractID, sellerID string) (domain.Contract, error) {
	if contractID == "" || sellerID == "" {
		return domain.Contract{}, domain.ErrInvalidID
	}

	var result domain.Contract
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.GetContractForUpdate(txCtx, contractID)
		if err != nil {
			return err
		}
		if c.SellerID != sellerID {
			return domain.ErrUnauthorizedActor
		}
		if c.Status == domain.ContractStatusInTransit {
			result = c
			return nil
		}
		if !domain.CanTransition(c.Status, domain.ContractStatusInTransit) {
			return domain.ErrStaleContract
		}

		expected := c.Version
		c.Status = domain.ContractStatusInTransit
		c.Version++
		if err := s.repo.UpdateContract(txCtx, c, expected); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}
	return result, nil
}

// ConfirmDelivery records the seller's handover and opens the buyer's
// confirmation window. Valid from deposit_paid directly (handover without an
// explicit dispatch step) or from in_transit.
func (s *ContractService) ConfirmDelivery(ctx context.Context, contractID, sellerID string) (domain.Contract, error) {
	if contractID == "" || sellerID == "" {
		return domain.Contract{}, domain.ErrInvalidID
	}

	var result domain.Contract
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.GetContractForUpdate(txCtx, contractID)
		if err != nil {
			return err
		}
		if c.SellerID != sellerID {
			return domain.ErrUnauthorizedActor
		}
		if c.Status == domain.ContractStatusAwaitingBuyer {
			result = c
			return nil
		}
		if !domain.CanTransition(c.Status, domain.ContractStatusAwaitingBuyer) {
			return domain.ErrStaleContract
		}

		confirmBy := s.clock.Now().Add(s.confirmWindow)
		expected := c.Version
		c.Status = domain.ContractStatusAwaitingBuyer
		c.ConfirmBy = &confirmBy
		c.Version++
		if err := s.repo.UpdateContract(txCtx, c, expected); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}

	s.notify(ctx, result.BuyerID, gateway.EventDeliveryConfirmed, map[string]string{"contract_id": result.ID})
	return result, nil
}

// ConfirmReceipt is the buyer accepting quality; it completes the contract
// and releases the final payment to the seller exactly once.
func (s *ContractService) ConfirmReceipt(ctx context.Context, contractID, buyerID string) (domain.Contract, error) {
	if contractID == "" || buyerID == "" {
		return domain.Contract{}, domain.ErrInvalidID
	}

	var result domain.Contract
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.GetContractForUpdate(txCtx, contractID)
		if err != nil {
			return err
		}
		if c.BuyerID != buyerID {
			return domain.ErrUnauthorizedActor
		}
		if c.Status == domain.ContractStatusCompleted {
			result = c
			return nil
		}
		if !domain.CanTransition(c.Status, domain.ContractStatusCompleted) {
			return domain.ErrStaleContract
		}
		return s.complete(txCtx, &result, c)
	})
	if err != nil {
		return domain.Contract{}, err
	}

	s.notify(ctx, result.SellerID, gateway.EventContractCompleted, map[string]string{"contract_id": result.ID})
	return result, nil
}

// complete releases the final payment and marks the contract completed.
// Caller holds the row lock and has validated the transition.
func (s *ContractService) complete(txCtx context.Context, result *domain.Contract, c domain.Contract) error {
	if !c.Ledger.FinalPaid {
		amount := c.FinalAmount()
		gerr := gateway.Retry(txCtx, s.retryAttempts, s.retryBackoff, func(rctx context.Context) error {
			_, err := s.payments.ReleaseFinal(rctx, c.ID, amount, c.SellerID)
			return err
		})
		if gerr != nil {
			return &domain.GatewayError{Op: "release_final", Err: gerr}
		}
		c.Ledger.FinalPaid = true
		c.Ledger.TotalPaid += amount
	}

	expected := c.Version
	c.Status = domain.ContractStatusCompleted
	c.Version++
	if err := s.repo.UpdateContract(txCtx, c, expected); err != nil {
		return err
	}
	*result = c
	return nil
}

// OpenDispute freezes the remaining payment pending external mediation.
// Terminal for the automated state machine.
func (s *ContractService) OpenDispute(ctx context.Context, contractID, buyerID, reason string) (domain.Contract, error) {
	if contractID == "" || buyerID == "" {
		return domain.Contract{}, domain.ErrInvalidID
	}

	var result domain.Contract
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.GetContractForUpdate(txCtx, contractID)
		if err != nil {
			return err
		}
		if c.BuyerID != buyerID {
			return domain.ErrUnauthorizedActor
		}
		if c.Status == domain.ContractStatusDispute {
			result = c
			return nil
		}
		if !domain.CanTransition(c.Status, domain.ContractStatusDispute) {
			return domain.ErrStaleContract
		}

		expected := c.Version
		c.Status = domain.ContractStatusDispute
		c.DisputeReason = reason
		c.Version++
		if err := s.repo.UpdateContract(txCtx, c, expected); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}

	s.notify(ctx, result.SellerID, gateway.EventDisputeOpened, map[string]string{
		"contract_id": result.ID,
		"reason":      reason,
	})
	return result, nil
}

// RecordResolution writes an external mediation outcome into the ledger. Any
// payout decided by mediation is released through the gateway; the contract
// stays in quality_dispute, which does not re-enter the transition graph.
func (s *ContractService) RecordResolution(ctx context.Context, contractID string, payoutToSeller float64, note string) (domain.Contract, error) {
	if contractID == "" {
		return domain.Contract{}, domain.ErrInvalidID
	}
	if payoutToSeller < 0 {
		return domain.Contract{}, domain.ErrInvalidPrice
	}

	var result domain.Contract
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.GetContractForUpdate(txCtx, contractID)
		if err != nil {
			return err
		}
		if c.Status != domain.ContractStatusDispute {
			return domain.ErrStaleContract
		}
		if c.ResolvedAt != nil {
			result = c
			return nil
		}

		if payoutToSeller > 0 {
			gerr := gateway.Retry(txCtx, s.retryAttempts, s.retryBackoff, func(rctx context.Context) error {
				_, err := s.payments.ReleaseFinal(rctx, c.ID, payoutToSeller, c.SellerID)
				return err
			})
			if gerr != nil {
				return &domain.GatewayError{Op: "release_final", Err: gerr}
			}
		}

		now := s.clock.Now()
		expected := c.Version
		c.Ledger.FinalPaid = true
		c.Ledger.TotalPaid += payoutToSeller
		c.ResolutionNote = note
		c.ResolvedAt = &now
		c.Version++
		if err := s.repo.UpdateContract(txCtx, c, expected); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}
	return result, nil
}

// CancelOverdueDeposits sweeps contracts whose deposit window lapsed. Each is
// re-validated under its own lock, so a deposit landing concurrently wins.
func (s *ContractService) CancelOverdueDeposits(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	ids, err := s.repo.ListDepositOverdue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
			c, err := s.repo.GetContractForUpdate(txCtx, id)
			if err != nil {
				return err
			}
			if c.Status != domain.ContractStatusPendingDeposit || c.DepositDue.After(now) {
				return nil
			}
			expected := c.Version
			c.Status = domain.ContractStatusCancelled
			c.Version++
			if err := s.repo.UpdateContract(txCtx, c, expected); err != nil {
				return err
			}
			if err := s.catalog.Release(txCtx, c.OfferID); err != nil {
				return err
			}
			cancelled++
			s.notify(ctx, c.BuyerID, gateway.EventContractCancelled, map[string]string{"contract_id": c.ID})
			return nil
		})
		if err != nil {
			s.logger.Printf("deposit timeout sweep id=%s error=%v", id, err)
		}
	}
	return cancelled, nil
}

// CompleteOverdueConfirmations applies the default-accept policy: a buyer who
// stays silent past the confirmation window is treated as accepting, and the
// final payment releases exactly once. A gateway failure leaves the contract
// untouched for the next pass.
func (s *ContractService) CompleteOverdueConfirmations(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	ids, err := s.repo.ListConfirmationOverdue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
			c, err := s.repo.GetContractForUpdate(txCtx, id)
			if err != nil {
				return err
			}
			if c.Status != domain.ContractStatusAwaitingBuyer {
				return nil
			}
			if c.ConfirmBy == nil || c.ConfirmBy.After(now) {
				return nil
			}
			var done domain.Contract
			if err := s.complete(txCtx, &done, c); err != nil {
				return err
			}
			completed++
			s.notify(ctx, done.SellerID, gateway.EventContractCompleted, map[string]string{"contract_id": done.ID})
			return nil
		})
		if err != nil {
			s.logger.Printf("confirmation timeout sweep id=%s error=%v", id, err)
		}
	}
	return completed, nil
}

func (s *ContractService) notify(ctx context.Context, partyID string, event gateway.EventType, payload map[string]string) {
	if s.notifier == nil || partyID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, partyID, event, payload); err != nil {
		s.logger.Printf("notify party=%s event=%s error=%v", partyID, event, err)
	}
}
