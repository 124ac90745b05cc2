package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"rentflow/escrow"
	"rentflow/metrics"
	"rentflow/rental"
)

var (
	// ErrNotAdmin signals the caller cannot manage the arbitrator roster.
	ErrNotAdmin = errors.New("dispute: caller not admin")
	// ErrNotArbitrator signals the caller is not on the arbitrator roster.
	ErrNotArbitrator = errors.New("dispute: caller not arbitrator")
	// ErrNotParty signals the caller is neither tenant nor landlord of
	// the rental.
	ErrNotParty = errors.New("dispute: caller not party to rental")
	// ErrConflicted signals an arbitrator ruling on their own rental.
	ErrConflicted = errors.New("dispute: arbitrator is party to dispute")
	// ErrBadStatus signals an invalid status transition.
	ErrBadStatus = errors.New("dispute: invalid status transition")
	// ErrInvalidDispute signals malformed dispute fields.
	ErrInvalidDispute = errors.New("dispute: invalid dispute fields")
	// ErrRentalConcluded signals a dispute filed against an ended
	// rental, whose escrow has already been settled.
	ErrRentalConcluded = errors.New("dispute: rental already concluded")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the service.
type Repository interface {
	LockRental(ctx context.Context, tx pgx.Tx, rentalID string) (rental.Rental, error)
	MarkRentalEnded(ctx context.Context, tx pgx.Tx, rentalID, actorID string) error
	Insert(ctx context.Context, tx pgx.Tx, p CreateParams) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, disputeID string) (Record, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, disputeID string, from, to Status) error
	Resolve(ctx context.Context, tx pgx.Tx, p ResolveParams) (Record, error)
	AppendEvent(ctx context.Context, tx pgx.Tx, disputeID, eventType, actorID string, payload map[string]any) error
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error

	AddArbitrator(ctx context.Context, userID string) error
	RemoveArbitrator(ctx context.Context, userID string) error
	IsArbitrator(ctx context.Context, userID string) (bool, error)
	Get(ctx context.Context, disputeID string) (Record, error)
	ListByRental(ctx context.Context, rentalID string) ([]Record, error)
}

// Funds is the slice of the escrow ledger arbitration uses.
type Funds interface {
	Held(ctx context.Context, tx pgx.Tx, caller escrow.Caller, rentalID string, bucket escrow.Bucket) (int64, error)
	Withdraw(ctx context.Context, tx pgx.Tx, caller escrow.Caller, rentalID string, bucket escrow.Bucket, payeeID string) (int64, error)
	WithdrawUpTo(ctx context.Context, tx pgx.Tx, caller escrow.Caller, rentalID string, bucket escrow.Bucket, payeeID string, limit int64) (int64, error)
}

// Service runs arbitration. The roster of arbitrators is managed by a
// single admin user fixed at startup; rulings reallocate the held
// deposit and conclude the rental in one transaction.
type Service struct {
	pool    TxBeginner
	repo    Repository
	funds   Funds
	adminID string
}

func NewService(pool TxBeginner, repo Repository, funds Funds, adminID string) *Service {
	return &Service{
		pool:    pool,
		repo:    repo,
		funds:   funds,
		adminID: adminID,
	}
}

// AddArbitrator grants arbitration rights. Admin only.
func (s *Service) AddArbitrator(ctx context.Context, callerID, userID string) error {
	if callerID != s.adminID {
		return ErrNotAdmin
	}
	return s.repo.AddArbitrator(ctx, userID)
}

// RemoveArbitrator revokes arbitration rights. Admin only.
func (s *Service) RemoveArbitrator(ctx context.Context, callerID, userID string) error {
	if callerID != s.adminID {
		return ErrNotAdmin
	}
	return s.repo.RemoveArbitrator(ctx, userID)
}

// IsArbitrator reports roster membership.
func (s *Service) IsArbitrator(ctx context.Context, userID string) (bool, error) {
	return s.repo.IsArbitrator(ctx, userID)
}

// Create files a dispute. Only the rental's tenant or landlord may
// file; the respondent is always the other party.
func (s *Service) Create(ctx context.Context, callerID, rentalID string, dtype Type, description, evidenceRef string, claimedAmount int64) (Record, error) {
	if strings.TrimSpace(description) == "" {
		return Record{}, fmt.Errorf("%w: empty description", ErrInvalidDispute)
	}
	if claimedAmount < 0 {
		return Record{}, fmt.Errorf("%w: negative claimed amount", ErrInvalidDispute)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ren, err := s.repo.LockRental(ctx, tx, rentalID)
	if err != nil {
		return Record{}, err
	}
	var respondent string
	switch callerID {
	case ren.TenantID:
		respondent = ren.LandlordID
	case ren.LandlordID:
		respondent = ren.TenantID
	default:
		return Record{}, ErrNotParty
	}
	if ren.Status == rental.StatusEnded {
		return Record{}, ErrRentalConcluded
	}

	rec, err := s.repo.Insert(ctx, tx, CreateParams{
		RentalID:      rentalID,
		InitiatorID:   callerID,
		RespondentID:  respondent,
		Description:   description,
		EvidenceRef:   evidenceRef,
		ClaimedAmount: claimedAmount,
		Type:          dtype,
	})
	if err != nil {
		return Record{}, err
	}

	payload := map[string]any{
		"dispute_id":   rec.ID,
		"rental_id":    rentalID,
		"initiator_id": callerID,
		"dispute_type": string(dtype),
	}
	if err := s.repo.AppendEvent(ctx, tx, rec.ID, "DISPUTE_FILED", callerID, payload); err != nil {
		return Record{}, err
	}
	if err := s.repo.Enqueue(ctx, tx, "dispute.filed", payload); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit tx: %w", err)
	}
	return rec, nil
}

// StartReview moves a pending dispute under review. Arbitrators only.
func (s *Service) StartReview(ctx context.Context, callerID, disputeID string) error {
	ok, err := s.repo.IsArbitrator(ctx, callerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotArbitrator
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return err
	}
	if rec.Status != StatusPending {
		return ErrBadStatus
	}
	if err := s.repo.UpdateStatus(ctx, tx, disputeID, StatusPending, StatusUnderReview); err != nil {
		return err
	}

	payload := map[string]any{"dispute_id": disputeID}
	if err := s.repo.AppendEvent(ctx, tx, disputeID, "DISPUTE_UNDER_REVIEW", callerID, payload); err != nil {
		return err
	}
	if err := s.repo.Enqueue(ctx, tx, "dispute.under_review", payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dispute: commit tx: %w", err)
	}
	return nil
}

// Resolve records the ruling and reallocates the held deposit: the
// whole deposit to the tenant on tenant_favor, up to the claimed
// amount to the landlord on landlord_favor, an even split otherwise.
// Whatever the outcome the deposit bucket drains to zero and the
// rental concludes.
func (s *Service) Resolve(ctx context.Context, callerID, disputeID string, outcome Outcome, details string) (Record, error) {
	ok, err := s.repo.IsArbitrator(ctx, callerID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotArbitrator
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status == StatusResolved {
		return Record{}, ErrAlreadyResolved
	}
	if callerID == rec.InitiatorID || callerID == rec.RespondentID {
		return Record{}, ErrConflicted
	}

	ren, err := s.repo.LockRental(ctx, tx, rec.RentalID)
	if err != nil {
		return Record{}, err
	}

	resolved, err := s.repo.Resolve(ctx, tx, ResolveParams{
		DisputeID:         disputeID,
		ResolverID:        callerID,
		Outcome:           outcome,
		ResolutionDetails: details,
	})
	if err != nil {
		return Record{}, err
	}

	toLandlord, toTenant, err := s.reallocateDeposit(ctx, tx, ren, rec.ClaimedAmount, outcome)
	if err != nil {
		return Record{}, err
	}

	if err := s.repo.MarkRentalEnded(ctx, tx, rec.RentalID, callerID); err != nil {
		return Record{}, err
	}

	payload := map[string]any{
		"dispute_id":  disputeID,
		"rental_id":   rec.RentalID,
		"outcome":     string(outcome),
		"to_landlord": toLandlord,
		"to_tenant":   toTenant,
	}
	if err := s.repo.AppendEvent(ctx, tx, disputeID, "DISPUTE_RESOLVED", callerID, payload); err != nil {
		return Record{}, err
	}
	if err := s.repo.Enqueue(ctx, tx, "dispute.resolved", payload); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit tx: %w", err)
	}
	if toLandlord > 0 {
		metrics.EscrowPayoutsTotal.WithLabelValues(string(escrow.BucketDeposit)).Inc()
	}
	if toTenant > 0 {
		metrics.EscrowPayoutsTotal.WithLabelValues(string(escrow.BucketDeposit)).Inc()
	}
	return resolved, nil
}

func (s *Service) reallocateDeposit(ctx context.Context, tx pgx.Tx, ren rental.Rental, claimed int64, outcome Outcome) (toLandlord, toTenant int64, err error) {
	held, err := s.funds.Held(ctx, tx, escrow.CallerArbitration, ren.ID, escrow.BucketDeposit)
	if err != nil {
		return 0, 0, err
	}
	if held == 0 {
		return 0, 0, nil
	}

	var landlordShare int64
	switch outcome {
	case OutcomeTenantFavor:
		landlordShare = 0
	case OutcomeLandlordFavor:
		landlordShare = claimed
		if landlordShare > held {
			landlordShare = held
		}
	case OutcomeSplit:
		landlordShare = held / 2
	default:
		return 0, 0, fmt.Errorf("%w: unknown outcome %q", ErrInvalidDispute, outcome)
	}

	if landlordShare > 0 {
		toLandlord, err = s.funds.WithdrawUpTo(ctx, tx, escrow.CallerArbitration, ren.ID, escrow.BucketDeposit, ren.LandlordID, landlordShare)
		if err != nil {
			return 0, 0, err
		}
	}
	if held-toLandlord > 0 {
		toTenant, err = s.funds.Withdraw(ctx, tx, escrow.CallerArbitration, ren.ID, escrow.BucketDeposit, ren.TenantID)
		if err != nil {
			return 0, 0, err
		}
	}
	return toLandlord, toTenant, nil
}

// Get fetches a dispute by id.
func (s *Service) Get(ctx context.Context, disputeID string) (Record, error) {
	return s.repo.Get(ctx, disputeID)
}

// ListByRental returns a rental's disputes, newest first.
func (s *Service) ListByRental(ctx context.Context, rentalID string) ([]Record, error) {
	return s.repo.ListByRental(ctx, rentalID)
}
