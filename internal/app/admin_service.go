package app

import (
	"context"

	"github.com/agropulse/marketplace/internal/clock"
	"github.com/agropulse/marketplace/internal/domain"
)

type AdminRepository interface {
	CreateRegion(ctx context.Context, region domain.Region) error
	ListRegions(ctx context.Context) ([]domain.Region, error)
	CreateParty(ctx context.Context, party domain.Party) error
	GetParty(ctx context.Context, id string) (domain.Party, error)
	UpdatePartyVerification(ctx context.Context, id string, status domain.VerificationStatus) error
}

// AdminService manages reference data: region imports and party registration.
// Verification updates are the external verification workflow's write-back.
type AdminService struct {
	repo     AdminRepository
	resolver RegionResolver
	clock    clock.Clock
}

func NewAdminService(repo AdminRepository, resolver RegionResolver, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:     repo,
		resolver: resolver,
		clock:    clk,
	}
}

type ImportRegionInput struct {
	Name     string
	Centroid domain.Point
	Boundary []domain.Point
	RadiusKm float64
}

func (s *AdminService) ImportRegion(ctx context.Context, in ImportRegionInput) (domain.Region, error) {
	if in.Name == "" {
		return domain.Region{}, domain.ErrInvalidStatus
	}
	if len(in.Boundary) > 0 && len(in.Boundary) < 3 {
		return domain.Region{}, domain.ErrInvalidStatus
	}
	if len(in.Boundary) == 0 && in.RadiusKm <= 0 {
		return domain.Region{}, domain.ErrInvalidStatus
	}

	region := domain.Region{
		ID:       newID(),
		Name:     in.Name,
		Centroid: in.Centroid,
		Boundary: in.Boundary,
		RadiusKm: in.RadiusKm,
	}
	if err := s.repo.CreateRegion(ctx, region); err != nil {
		return domain.Region{}, err
	}
	return region, nil
}

func (s *AdminService) ListRegions(ctx context.Context) ([]domain.Region, error) {
	return s.repo.ListRegions(ctx)
}

type CreatePartyInput struct {
	Name     string
	Role     domain.PartyRole
	Location domain.Point
}

// CreateParty registers a participant. The home region is resolved from the
// location; parties start unverified and cannot trade until the verification
// workflow marks them verified.
func (s *AdminService) CreateParty(ctx context.Context, in CreatePartyInput) (domain.Party, error) {
	if in.Name == "" {
		return domain.Party{}, domain.ErrInvalidStatus
	}
	if in.Role != domain.RoleSeller && in.Role != domain.RoleBuyer {
		return domain.Party{}, domain.ErrInvalidRole
	}

	region, err := s.resolver.Resolve(in.Location)
	if err != nil {
		return domain.Party{}, err
	}

	party := domain.Party{
		ID:           newID(),
		Name:         in.Name,
		Role:         in.Role,
		RegionID:     region.ID,
		Location:     in.Location,
		Verification: domain.VerificationUnverified,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.CreateParty(ctx, party); err != nil {
		return domain.Party{}, err
	}
	return party, nil
}

func (s *AdminService) GetParty(ctx context.Context, id string) (domain.Party, error) {
	if id == "" {
		return domain.Party{}, domain.ErrInvalidID
	}
	return s.repo.GetParty(ctx, id)
}

func (s *AdminService) SetVerification(ctx context.Context, partyID string, status domain.VerificationStatus) error {
	if partyID == "" {
		return domain.ErrInvalidID
	}
	switch status {
	case domain.VerificationUnverified, domain.VerificationPending, domain.VerificationVerified:
	default:
		return domain.ErrInvalidStatus
	}
	return s.repo.UpdatePartyVerification(ctx, partyID, status)
}
