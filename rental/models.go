package rental

import "time"

// Status is the lifecycle state of a rental. Transitions are
// one-directional: active -> deposit_release_pending -> ended.
type Status string

const (
	StatusActive                Status = "active"
	StatusDepositReleasePending Status = "deposit_release_pending"
	StatusEnded                 Status = "ended"
)

// RentPeriod is the fixed payment cadence. Months are modelled as
// 30-day periods throughout, matching the term arithmetic of the
// rental contract.
const RentPeriod = 30 * 24 * time.Hour

// Payment window policy: a payment is accepted when now falls within
// [due - EarlyPaymentWindow, due + LatePaymentGrace] of the current
// rent_paid_until. The tenant may prepay at most two periods ahead and
// has ten days of grace after the due date.
const (
	EarlyPaymentWindow = 2 * RentPeriod
	LatePaymentGrace   = 10 * 24 * time.Hour
)

// Rental mirrors the rentals table. Rent and deposit amounts are
// copied from the property at creation; later catalog edits never
// affect an active rental.
type Rental struct {
	ID              string
	PropertyID      int64
	TenantID        string
	LandlordID      string
	MonthlyRent     int64
	SecurityDeposit int64
	StartDate       time.Time
	EndDate         time.Time
	RentPaidUntil   time.Time
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateParams enumerates the writes for a new rental row.
type CreateParams struct {
	ID              string
	PropertyID      int64
	TenantID        string
	LandlordID      string
	MonthlyRent     int64
	SecurityDeposit int64
	StartDate       time.Time
	EndDate         time.Time
	RentPaidUntil   time.Time
}
