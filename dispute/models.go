package dispute

import "time"

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
)

// Type classifies what the dispute is about.
type Type string

const (
	TypePayment        Type = "payment"
	TypeDeposit        Type = "deposit"
	TypePropertyDamage Type = "property_damage"
	TypeBreach         Type = "breach_of_contract"
	TypeOther          Type = "other"
)

// Outcome is the arbitrator's ruling. It determines how the held
// deposit is reallocated.
type Outcome string

const (
	OutcomeLandlordFavor Outcome = "landlord_favor"
	OutcomeTenantFavor   Outcome = "tenant_favor"
	OutcomeSplit         Outcome = "split"
)

// Record mirrors the disputes table. Resolution fields are write-once.
type Record struct {
	ID                string
	RentalID          string
	InitiatorID       string
	RespondentID      string
	Description       string
	EvidenceRef       string
	ClaimedAmount     int64
	Type              Type
	Status            Status
	Outcome           *Outcome
	ResolverID        *string
	ResolutionDetails *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ResolvedAt        *time.Time
}

// CreateParams enumerates the writes for a new dispute row.
type CreateParams struct {
	RentalID      string
	InitiatorID   string
	RespondentID  string
	Description   string
	EvidenceRef   string
	ClaimedAmount int64
	Type          Type
}

// ResolveParams carries the arbitrator's ruling.
type ResolveParams struct {
	DisputeID         string
	ResolverID        string
	Outcome           Outcome
	ResolutionDetails string
}
