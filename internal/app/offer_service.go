package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/agropulse/marketplace/internal/clock"
	"github.com/agropulse/marketplace/internal/domain"
	"github.com/agropulse/marketplace/internal/gateway"
)

// Internal signals for terminal conditions detected while responding. The
// response transaction rolls back; the expiry itself is committed separately.
var (
	errOfferLapsed = errors.New("offer lapsed")
	errRoundLimit  = errors.New("negotiation round limit")
)

type OfferRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOffer(ctx context.Context, offer domain.Offer) error
	GetOffer(ctx context.Context, id string) (domain.Offer, error)
	GetOfferForUpdate(ctx context.Context, id string) (domain.Offer, error)
	UpdateOffer(ctx context.Context, offer domain.Offer) error
	FindOpenOffer(ctx context.Context, listingID, buyerID string) (*domain.Offer, error)
	ListOpenExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Catalog is the slice of the listing catalog the negotiation engine needs:
// listing reads plus the two-phase quantity hold.
type Catalog interface {
	GetListing(ctx context.Context, id string) (domain.Listing, error)
	Reserve(ctx context.Context, listingID, offerID string, quantityKg float64, expiresAt time.Time) (domain.Reservation, error)
	AdjustReservation(ctx context.Context, offerID string, quantityKg float64, expiresAt time.Time) error
	Release(ctx context.Context, offerID string) error
}

// ContractCreator is implemented by the escrow engine; creation is idempotent
// on the offer ID.
type ContractCreator interface {
	CreateFromOffer(ctx context.Context, offer domain.Offer, listing domain.Listing) (domain.Contract, error)
}

// OfferService runs the negotiation state machine:
// pending -> {accepted, countered, declined, expired}, countered -> pending
// with roles flipped, bounded counter rounds. Response handling is serialized
// per offer; the loser of a race sees ErrStaleOffer.
type OfferService struct {
	repo      OfferRepository
	catalog   Catalog
	parties   PartyGetter
	contracts ContractCreator
	notifier  gateway.Notifier
	clock     clock.Clock
	logger    *log.Logger

	responseWindow time.Duration
	counterWindow  time.Duration
	maxRounds      int
}

const (
	defaultResponseWindow = 72 * time.Hour
	defaultCounterWindow  = 48 * time.Hour
	defaultMaxRounds      = 3
)

func NewOfferService(repo OfferRepository, catalog Catalog, parties PartyGetter, contracts ContractCreator, notifier gateway.Notifier, clk clock.Clock, opts ...OfferServiceOption) *OfferService {
	svc := &OfferService{
		repo:           repo,
		catalog:        catalog,
		parties:        parties,
		contracts:      contracts,
		notifier:       notifier,
		clock:          clk,
		logger:         log.Default(),
		responseWindow: defaultResponseWindow,
		counterWindow:  defaultCounterWindow,
		maxRounds:      defaultMaxRounds,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OfferServiceOption func(*OfferService)

// WithResponseWindow overrides the window the counterparty has to respond to
// a fresh offer.
func WithResponseWindow(d time.Duration) OfferServiceOption {
	return func(s *OfferService) {
		if d > 0 {
			s.responseWindow = d
		}
	}
}

// WithCounterWindow overrides the response window granted after a counter.
func WithCounterWindow(d time.Duration) OfferServiceOption {
	return func(s *OfferService) {
		if d > 0 {
			s.counterWindow = d
		}
	}
}

// WithMaxRounds bounds counter ping-pong before the offer auto-expires.
func WithMaxRounds(n int) OfferServiceOption {
	return func(s *OfferService) {
		if n > 0 {
			s.maxRounds = n
		}
	}
}

// WithOfferLogger overrides the service logger.
func WithOfferLogger(l *log.Logger) OfferServiceOption {
	return func(s *OfferService) {
		if l != nil {
			s.logger = l
		}
	}
}

type CreateOfferInput struct {
	ListingID    string
	BuyerID      string
	QuantityKg   float64
	PriceKg      float64
	DeliveryDate time.Time
}

func (s *OfferService) CreateOffer(ctx context.Context, in CreateOfferInput) (domain.Offer, error) {
	if in.ListingID == "" || in.BuyerID == "" {
		return domain.Offer{}, domain.ErrInvalidID
	}
	if in.QuantityKg <= 0 {
		return domain.Offer{}, domain.ErrInvalidQuantity
	}
	if in.PriceKg <= 0 {
		return domain.Offer{}, domain.ErrInvalidPrice
	}

	buyer, err := s.parties.GetParty(ctx, in.BuyerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if buyer.Role != domain.RoleBuyer {
		return domain.Offer{}, domain.ErrInvalidRole
	}
	if buyer.Verification != domain.VerificationVerified {
		return domain.Offer{}, domain.ErrBuyerNotVerified
	}

	listing, err := s.catalog.GetListing(ctx, in.ListingID)
	if err != nil {
		return domain.Offer{}, err
	}
	if listing.Status != domain.ListingStatusActive {
		return domain.Offer{}, domain.ErrListingNotActive
	}
	if in.QuantityKg < listing.MinOrderKg {
		return domain.Offer{}, domain.ErrBelowMinimumOrder
	}

	now := s.clock.Now()
	offer := domain.Offer{
		ID:           newID(),
		ListingID:    in.ListingID,
		BuyerID:      in.BuyerID,
		QuantityKg:   in.QuantityKg,
		PriceKg:      in.PriceKg,
		DeliveryDate: in.DeliveryDate,
		Status:       domain.OfferStatusPending,
		Awaiting:     domain.RoleSeller,
		ExpiresAt:    now.Add(s.responseWindow),
		CreatedAt:    now,
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindOpenOffer(txCtx, in.ListingID, in.BuyerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateOffer
		}
		if err := s.repo.CreateOffer(txCtx, offer); err != nil {
			return err
		}
		// Reserve re-checks listing status and availability under the
		// listing row lock; InsufficientQuantity rolls the offer back.
		if _, err := s.catalog.Reserve(txCtx, in.ListingID, offer.ID, in.QuantityKg, offer.ExpiresAt); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Offer{}, err
	}

	s.notify(ctx, listing.SellerID, gateway.EventOfferReceived, map[string]string{
		"offer_id":   offer.ID,
		"listing_id": listing.ID,
	})
	return offer, nil
}

func (s *OfferService) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	if id == "" {
		return domain.Offer{}, domain.ErrInvalidID
	}
	return s.repo.GetOffer(ctx, id)
}

type RespondAction string

const (
	ActionAccept  RespondAction = "accept"
	ActionCounter RespondAction = "counter"
	ActionDecline RespondAction = "decline"
)

type RespondInput struct {
	OfferID string
	ActorID string
	Action  RespondAction

	// Counter terms; zero values inherit the terms currently on the table.
	CounterQuantityKg float64
	CounterPriceKg    float64
	Note              string
}

type RespondResult struct {
	Offer    domain.Offer
	Contract *domain.Contract
}

// Respond applies the counterparty's decision for the current round. Only the
// awaiting party may act; a decided offer returns ErrStaleOffer. Acceptance
// adjusts the reservation to the agreed terms and creates the contract
// exactly once.
func (s *OfferService) Respond(ctx context.Context, in RespondInput) (RespondResult, error) {
	if in.OfferID == "" || in.ActorID == "" {
		return RespondResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result RespondResult
	var buyerID, sellerID string

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		offer, err := s.repo.GetOfferForUpdate(txCtx, in.OfferID)
		if err != nil {
			return err
		}
		if !offer.Status.Open() {
			return domain.ErrStaleOffer
		}

		listing, err := s.catalog.GetListing(txCtx, offer.ListingID)
		if err != nil {
			return err
		}
		buyerID, sellerID = offer.BuyerID, listing.SellerID

		// Lapsed offers are expired in place rather than acted on; the
		// sweep would do the same.
		if !offer.ExpiresAt.After(now) {
			return errOfferLapsed
		}

		required := sellerID
		actorRole := domain.RoleSeller
		if offer.Awaiting == domain.RoleBuyer {
			required = offer.BuyerID
			actorRole = domain.RoleBuyer
		}
		if in.ActorID != required {
			return domain.ErrUnauthorizedActor
		}

		switch in.Action {
		case ActionAccept:
			return s.accept(txCtx, &result, offer, listing)
		case ActionCounter:
			return s.counter(txCtx, &result, offer, actorRole, in, now)
		case ActionDecline:
			offer.Status = domain.OfferStatusDeclined
			if err := s.repo.UpdateOffer(txCtx, offer); err != nil {
				return err
			}
			if err := s.catalog.Release(txCtx, offer.ID); err != nil {
				return err
			}
			result.Offer = offer
			return nil
		default:
			return domain.ErrInvalidStatus
		}
	})
	switch err {
	case nil:
	case errOfferLapsed:
		s.expireInPlace(ctx, in.OfferID)
		return RespondResult{}, domain.ErrStaleOffer
	case errRoundLimit:
		s.expireInPlace(ctx, in.OfferID)
		return RespondResult{}, domain.ErrNegotiationLimit
	default:
		return RespondResult{}, err
	}

	s.notifyOutcome(ctx, result, buyerID, sellerID)
	return result, nil
}

// expireInPlace terminally expires an open offer and frees its hold in its
// own transaction, so the state change survives the caller's rollback. A
// response that won the row lock in between is left alone.
func (s *OfferService) expireInPlace(ctx context.Context, offerID string) {
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		offer, err := s.repo.GetOfferForUpdate(txCtx, offerID)
		if err != nil {
			return err
		}
		if !offer.Status.Open() {
			return nil
		}
		offer.Status = domain.OfferStatusExpired
		if err := s.repo.UpdateOffer(txCtx, offer); err != nil {
			return err
		}
		return s.catalog.Release(txCtx, offer.ID)
	})
	if err != nil {
		s.logger.Printf("offer expire id=%s error=%v", offerID, err)
	}
}

func (s *OfferService) accept(txCtx context.Context, result *RespondResult, offer domain.Offer, listing domain.Listing) error {
	offer.Status = domain.OfferStatusAccepted
	if err := s.repo.UpdateOffer(txCtx, offer); err != nil {
		return err
	}

	contract, err := s.contracts.CreateFromOffer(txCtx, offer, listing)
	if err != nil {
		return err
	}

	// The hold must outlive the negotiation window: it now guards the stock
	// until the deposit either arrives or times out.
	qty, _ := offer.EffectiveTerms()
	if err := s.catalog.AdjustReservation(txCtx, offer.ID, qty, contract.DepositDue); err != nil {
		return err
	}

	result.Offer = offer
	result.Contract = &contract
	return nil
}

func (s *OfferService) counter(txCtx context.Context, result *RespondResult, offer domain.Offer, actorRole domain.PartyRole, in RespondInput, now time.Time) error {
	if in.CounterQuantityKg < 0 || in.CounterPriceKg < 0 {
		return domain.ErrInvalidQuantity
	}
	if in.CounterQuantityKg == 0 && in.CounterPriceKg == 0 {
		return domain.ErrInvalidPrice
	}

	// Bounded ping-pong: one more round past the cap auto-expires the offer
	// so negotiation cannot loop forever.
	if offer.Round >= s.maxRounds {
		return errRoundLimit
	}

	curQty, curPrice := offer.EffectiveTerms()
	terms := domain.CounterTerms{
		QuantityKg: curQty,
		PriceKg:    curPrice,
		ProposedBy: actorRole,
		Round:      offer.Round + 1,
		Note:       in.Note,
	}
	if in.CounterQuantityKg > 0 {
		terms.QuantityKg = in.CounterQuantityKg
	}
	if in.CounterPriceKg > 0 {
		terms.PriceKg = in.CounterPriceKg
	}

	offer.Counter = &terms
	offer.Round = terms.Round
	offer.Status = domain.OfferStatusCountered
	if actorRole == domain.RoleSeller {
		offer.Awaiting = domain.RoleBuyer
	} else {
		offer.Awaiting = domain.RoleSeller
	}
	offer.ExpiresAt = now.Add(s.counterWindow)

	if err := s.repo.UpdateOffer(txCtx, offer); err != nil {
		return err
	}
	// The hold tracks the terms on the table: a counter re-sizes it to the
	// countered quantity and keeps it alive through the new window.
	if err := s.catalog.AdjustReservation(txCtx, offer.ID, terms.QuantityKg, offer.ExpiresAt); err != nil {
		return err
	}
	result.Offer = offer
	return nil
}

// Cancel lets the buyer withdraw an open offer before acceptance. Recorded as
// a decline so the offer still reaches exactly one terminal status.
func (s *OfferService) Cancel(ctx context.Context, offerID, buyerID string) (domain.Offer, error) {
	if offerID == "" || buyerID == "" {
		return domain.Offer{}, domain.ErrInvalidID
	}

	var result domain.Offer
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		offer, err := s.repo.GetOfferForUpdate(txCtx, offerID)
		if err != nil {
			return err
		}
		if offer.BuyerID != buyerID {
			return domain.ErrUnauthorizedActor
		}
		if !offer.Status.Open() {
			return domain.ErrStaleOffer
		}
		offer.Status = domain.OfferStatusDeclined
		if err := s.repo.UpdateOffer(txCtx, offer); err != nil {
			return err
		}
		if err := s.catalog.Release(txCtx, offer.ID); err != nil {
			return err
		}
		result = offer
		return nil
	})
	if err != nil {
		return domain.Offer{}, err
	}
	return result, nil
}

// ExpireDue expires open offers past their response window and releases their
// reservations. Idempotent and safe to run concurrently with live responses:
// every offer is re-checked under its row lock.
func (s *OfferService) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	ids, err := s.repo.ListOpenExpiredBefore(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
			offer, err := s.repo.GetOfferForUpdate(txCtx, id)
			if err != nil {
				return err
			}
			if !offer.Status.Open() || offer.ExpiresAt.After(now) {
				return nil
			}
			offer.Status = domain.OfferStatusExpired
			if err := s.repo.UpdateOffer(txCtx, offer); err != nil {
				return err
			}
			if err := s.catalog.Release(txCtx, offer.ID); err != nil {
				return err
			}
			expired++
			s.notify(ctx, offer.BuyerID, gateway.EventOfferExpired, map[string]string{"offer_id": offer.ID})
			return nil
		})
		if err != nil {
			s.logger.Printf("offer expiry sweep id=%s error=%v", id, err)
		}
	}
	return expired, nil
}

func (s *OfferService) notifyOutcome(ctx context.Context, result RespondResult, buyerID, sellerID string) {
	switch result.Offer.Status {
	case domain.OfferStatusAccepted:
		payload := map[string]string{"offer_id": result.Offer.ID}
		if result.Contract != nil {
			payload["contract_id"] = result.Contract.ID
		}
		s.notify(ctx, buyerID, gateway.EventOfferAccepted, payload)
		s.notify(ctx, buyerID, gateway.EventDepositRequested, payload)
	case domain.OfferStatusCountered:
		target := buyerID
		if result.Offer.Awaiting == domain.RoleSeller {
			target = sellerID
		}
		s.notify(ctx, target, gateway.EventOfferCountered, map[string]string{"offer_id": result.Offer.ID})
	case domain.OfferStatusDeclined:
		s.notify(ctx, buyerID, gateway.EventOfferDeclined, map[string]string{"offer_id": result.Offer.ID})
	}
}

// notify is best-effort; delivery failures are logged, never propagated.
func (s *OfferService) notify(ctx context.Context, partyID string, event gateway.EventType, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, partyID, event, payload); err != nil {
		s.logger.Printf("notify party=%s event=%s error=%v", partyID, event, err)
	}
}
