package domain

import "time"

type PartyRole string

const (
	RoleSeller PartyRole = "seller"
	RoleBuyer  PartyRole = "buyer"
)

type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
)

// Party is a marketplace participant. Verification status gates participation
// and is mutated only by the external verification workflow.
type Party struct {
	ID           string
	Name         string
	Role         PartyRole
	RegionID     string
	Location     Point
	Verification VerificationStatus
	CreatedAt    time.Time
}
