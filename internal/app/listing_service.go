package app

import (
	"context"
	"time"

	"github.com/agropulse/marketplace/internal/clock"
	"github.com/agropulse/marketplace/internal/domain"
)

// RegionResolver maps coordinates to a region. Resolution failures surface as
// domain.ErrRegionNotFound; callers decide the fallback policy.
type RegionResolver interface {
	Resolve(p domain.Point) (domain.Region, error)
}

type ListingRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateListing(ctx context.Context, listing domain.Listing) error
	GetListing(ctx context.Context, id string) (domain.Listing, error)
	GetListingForUpdate(ctx context.Context, id string) (domain.Listing, error)
	UpdateListing(ctx context.Context, listing domain.Listing) error
	ListBySeller(ctx context.Context, sellerID string, status domain.ListingStatus) ([]domain.Listing, error)
	ExpireReadyBefore(ctx context.Context, cutoff time.Time) (int64, error)

	SumActiveReservations(ctx context.Context, listingID string, now time.Time) (float64, error)
	CreateReservation(ctx context.Context, res domain.Reservation) error
	GetReservationByOffer(ctx context.Context, offerID string) (domain.Reservation, error)
	UpdateReservation(ctx context.Context, res domain.Reservation) error
}

type PartyGetter interface {
	GetParty(ctx context.Context, id string) (domain.Party, error)
}

// ListingService is the listing catalog: it owns listings and the two-phase
// reservation of their quantity. All quantity accounting for one listing runs
// under a row lock on that listing, so concurrent offers can never jointly
// over-reserve stock.
type ListingService struct {
	repo     ListingRepository
	parties  PartyGetter
	resolver RegionResolver
	clock    clock.Clock

	defaultMinOrderKg float64
}

const defaultMinOrderKg = 50

func NewListingService(repo ListingRepository, parties PartyGetter, resolver RegionResolver, clk clock.Clock, opts ...ListingServiceOption) *ListingService {
	svc := &ListingService{
		repo:              repo,
		parties:           parties,
		resolver:          resolver,
		clock:             clk,
		defaultMinOrderKg: defaultMinOrderKg,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ListingServiceOption func(*ListingService)

// WithDefaultMinOrder overrides the minimum order applied when a listing does
// not set one.
func WithDefaultMinOrder(kg float64) ListingServiceOption {
	return func(s *ListingService) {
		if kg > 0 {
			s.defaultMinOrderKg = kg
		}
	}
}

type CreateListingInput struct {
	SellerID              string
	Crop                  string
	QuantityKg            float64
	Grade                 domain.QualityGrade
	AskingPriceKg         float64
	MinOrderKg            float64
	ReadyDate             time.Time
	StorageLocation       string
	DeliveryAvailable     bool
	Organic               bool
	PreferCrossRegional   bool
	AvoidLocalCompetition bool
}

func (s *ListingService) CreateListing(ctx context.Context, in CreateListingInput) (domain.Listing, error) {
	if in.SellerID == "" {
		return domain.Listing{}, domain.ErrInvalidID
	}
	if in.Crop == "" {
		return domain.Listing{}, domain.ErrInvalidStatus
	}
	if in.QuantityKg <= 0 {
		return domain.Listing{}, domain.ErrInvalidQuantity
	}
	if in.AskingPriceKg <= 0 {
		return domain.Listing{}, domain.ErrInvalidPrice
	}
	if !domain.ValidGrade(in.Grade) {
		return domain.Listing{}, domain.ErrInvalidGrade
	}
	if in.MinOrderKg <= 0 {
		in.MinOrderKg = s.defaultMinOrderKg
	}
	if in.MinOrderKg > in.QuantityKg {
		return domain.Listing{}, domain.ErrInvalidQuantity
	}

	seller, err := s.parties.GetParty(ctx, in.SellerID)
	if err != nil {
		return domain.Listing{}, err
	}
	if seller.Role != domain.RoleSeller {
		return domain.Listing{}, domain.ErrInvalidRole
	}
	if seller.Verification != domain.VerificationVerified {
		return domain.Listing{}, domain.ErrSellerNotVerified
	}

	// The listing region is fixed at creation from the seller's location.
	region, err := s.resolver.Resolve(seller.Location)
	if err != nil {
		return domain.Listing{}, err
	}

	listing := domain.Listing{
		ID:                    newID(),
		SellerID:              seller.ID,
		Crop:                  in.Crop,
		QuantityKg:            in.QuantityKg,
		Grade:                 in.Grade,
		AskingPriceKg:         in.AskingPriceKg,
		MinOrderKg:            in.MinOrderKg,
		ReadyDate:             in.ReadyDate,
		Status:                domain.ListingStatusActive,
		RegionID:              region.ID,
		StorageLocation:       in.StorageLocation,
		DeliveryAvailable:     in.DeliveryAvailable,
		Organic:               in.Organic,
		PreferCrossRegional:   in.PreferCrossRegional,
		AvoidLocalCompetition: in.AvoidLocalCompetition,
		CreatedAt:             s.clock.Now(),
	}

	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return domain.Listing{}, err
	}
	return listing, nil
}

func (s *ListingService) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	if id == "" {
		return domain.Listing{}, domain.ErrInvalidID
	}
	return s.repo.GetListing(ctx, id)
}

func (s *ListingService) ListBySeller(ctx context.Context, sellerID string, status domain.ListingStatus) ([]domain.Listing, error) {
	if sellerID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListBySeller(ctx, sellerID, status)
}

type UpdateListingInput struct {
	ListingID     string
	SellerID      string
	AskingPriceKg *float64
	MinOrderKg    *float64
}

// UpdateListing lets the owning seller adjust price and minimum order. Crop,
// quantity, and region are immutable after creation.
func (s *ListingService) UpdateListing(ctx context.Context, in UpdateListingInput) (domain.Listing, error) {
	if in.ListingID == "" || in.SellerID == "" {
		return domain.Listing{}, domain.ErrInvalidID
	}

	var result domain.Listing
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		listing, err := s.repo.GetListingForUpdate(txCtx, in.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID != in.SellerID {
			return domain.ErrUnauthorizedActor
		}
		if listing.Status != domain.ListingStatusActive {
			return domain.ErrListingNotActive
		}
		if in.AskingPriceKg != nil {
			if *in.AskingPriceKg <= 0 {
				return domain.ErrInvalidPrice
			}
			listing.AskingPriceKg = *in.AskingPriceKg
		}
		if in.MinOrderKg != nil {
			if *in.MinOrderKg <= 0 || *in.MinOrderKg > listing.QuantityKg {
				return domain.ErrInvalidQuantity
			}
			listing.MinOrderKg = *in.MinOrderKg
		}
		if err := s.repo.UpdateListing(txCtx, listing); err != nil {
			return err
		}
		result = listing
		return nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return result, nil
}

// Withdraw takes a listing off the market. Refused while reservations are
// active so open offers keep a consistent view of their stock.
func (s *ListingService) Withdraw(ctx context.Context, listingID, sellerID string) error {
	if listingID == "" || sellerID == "" {
		return domain.ErrInvalidID
	}
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		listing, err := s.repo.GetListingForUpdate(txCtx, listingID)
		if err != nil {
			return err
		}
		if listing.SellerID != sellerID {
			return domain.ErrUnauthorizedActor
		}
		if listing.Status == domain.ListingStatusWithdrawn {
			return nil
		}
		if listing.Status != domain.ListingStatusActive {
			return domain.ErrListingNotActive
		}
		reserved, err := s.repo.SumActiveReservations(txCtx, listingID, s.clock.Now())
		if err != nil {
			return err
		}
		if reserved > 0 {
			return domain.ErrActiveReservations
		}
		listing.Status = domain.ListingStatusWithdrawn
		return s.repo.UpdateListing(txCtx, listing)
	})
}

// Reserve places a temporary hold on listing quantity for an open offer.
// Availability is current quantity minus all active, unexpired reservations,
// computed under the listing row lock.
func (s *ListingService) Reserve(ctx context.Context, listingID, offerID string, quantityKg float64, expiresAt time.Time) (domain.Reservation, error) {
	if quantityKg <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	var result domain.Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		listing, err := s.repo.GetListingForUpdate(txCtx, listingID)
		if err != nil {
			return err
		}
		if listing.Status != domain.ListingStatusActive {
			return domain.ErrListingNotActive
		}

		reserved, err := s.repo.SumActiveReservations(txCtx, listingID, now)
		if err != nil {
			return err
		}
		if quantityKg > listing.QuantityKg-reserved {
			return domain.ErrInsufficientQuantity
		}

		res := domain.Reservation{
			ID:         newID(),
			ListingID:  listingID,
			OfferID:    offerID,
			QuantityKg: quantityKg,
			Status:     domain.ReservationStatusActive,
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
		}
		if err := s.repo.CreateReservation(txCtx, res); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return result, nil
}

// AdjustReservation re-sizes an offer's hold to the agreed terms. An increase
// is re-checked against availability; the offer's own hold does not count
// against itself.
func (s *ListingService) AdjustReservation(ctx context.Context, offerID string, quantityKg float64, expiresAt time.Time) error {
	if quantityKg <= 0 {
		return domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationByOffer(txCtx, offerID)
		if err != nil {
			return err
		}
		if res.Status != domain.ReservationStatusActive {
			return domain.ErrReservationNotFound
		}
		if res.QuantityKg == quantityKg && !expiresAt.IsZero() && expiresAt.Equal(res.ExpiresAt) {
			return nil
		}

		listing, err := s.repo.GetListingForUpdate(txCtx, res.ListingID)
		if err != nil {
			return err
		}
		// A lapsed hold stopped counting against availability, so reviving
		// it is re-checked in full, not just the increase.
		lapsed := !res.ExpiresAt.After(now)
		if quantityKg > res.QuantityKg || lapsed {
			reserved, err := s.repo.SumActiveReservations(txCtx, res.ListingID, now)
			if err != nil {
				return err
			}
			available := listing.QuantityKg - reserved
			if !lapsed {
				available += res.QuantityKg
			}
			if quantityKg > available {
				return domain.ErrInsufficientQuantity
			}
		}

		res.QuantityKg = quantityKg
		if !expiresAt.IsZero() {
			res.ExpiresAt = expiresAt
		}
		return s.repo.UpdateReservation(txCtx, res)
	})
}

// Release frees an offer's hold. Idempotent: releasing an already released or
// missing reservation is a no-op, committed reservations stay committed.
func (s *ListingService) Release(ctx context.Context, offerID string) error {
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationByOffer(txCtx, offerID)
		if err == domain.ErrReservationNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if res.Status != domain.ReservationStatusActive {
			return nil
		}
		res.Status = domain.ReservationStatusReleased
		return s.repo.UpdateReservation(txCtx, res)
	})
}

// Commit converts an offer's hold into a permanent decrement of listing
// quantity; called exactly when the contract deposit is confirmed. Idempotent
// on replay. A lapsed hold commits only if the stock is still uncontended.
func (s *ListingService) Commit(ctx context.Context, offerID string) error {
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationByOffer(txCtx, offerID)
		if err != nil {
			return err
		}
		if res.Status == domain.ReservationStatusCommitted {
			return nil
		}
		if res.Status != domain.ReservationStatusActive {
			return domain.ErrReservationNotFound
		}

		listing, err := s.repo.GetListingForUpdate(txCtx, res.ListingID)
		if err != nil {
			return err
		}

		// A hold that lapsed before commit may have been reserved over in
		// the meantime; converting it must not oversell the listing.
		now := s.clock.Now()
		if !res.ExpiresAt.After(now) {
			reserved, err := s.repo.SumActiveReservations(txCtx, res.ListingID, now)
			if err != nil {
				return err
			}
			if res.QuantityKg > listing.QuantityKg-reserved {
				return domain.ErrInsufficientQuantity
			}
		}

		res.Status = domain.ReservationStatusCommitted
		if err := s.repo.UpdateReservation(txCtx, res); err != nil {
			return err
		}

		listing.QuantityKg -= res.QuantityKg
		if listing.QuantityKg < 0 {
			listing.QuantityKg = 0
		}
		if listing.Status == domain.ListingStatusActive && listing.QuantityKg < listing.MinOrderKg {
			listing.Status = domain.ListingStatusSoldOut
		}
		return s.repo.UpdateListing(txCtx, listing)
	})
}

// ExpireReady marks active listings whose readiness date has passed as
// expired. Run by the sweeper; safe alongside live requests.
func (s *ListingService) ExpireReady(ctx context.Context) (int64, error) {
	return s.repo.ExpireReadyBefore(ctx, s.clock.Now())
}
