package domain

import "time"

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSoldOut   ListingStatus = "sold_out"
	ListingStatusExpired   ListingStatus = "expired"
	ListingStatusWithdrawn ListingStatus = "withdrawn"
)

// QualityGrade is an ordered produce grade, A best.
type QualityGrade string

const (
	GradeA QualityGrade = "A"
	GradeB QualityGrade = "B"
	GradeC QualityGrade = "C"
)

// Rank orders grades for filtering; higher is better. Unknown grades rank 0.
func (g QualityGrade) Rank() int {
	switch g {
	case GradeA:
		return 3
	case GradeB:
		return 2
	case GradeC:
		return 1
	}
	return 0
}

// ValidGrade reports whether g is one of the known grades.
func ValidGrade(g QualityGrade) bool {
	return g.Rank() > 0
}

// Listing is a seller's sale lot. QuantityKg decreases permanently only when a
// reservation is committed (contract deposit paid); pending offers hold
// quantity through Reservations instead. RegionID is derived from the seller's
// location at creation time and never changes.
type Listing struct {
	ID                string
	SellerID          string
	Crop              string
	QuantityKg        float64
	Grade             QualityGrade
	AskingPriceKg     float64
	MinOrderKg        float64
	ReadyDate         time.Time
	Status            ListingStatus
	RegionID          string
	StorageLocation   string
	DeliveryAvailable bool
	Organic           bool
	// Cross-regional diversification flags set by the seller.
	PreferCrossRegional   bool
	AvoidLocalCompetition bool
	CreatedAt             time.Time
}
