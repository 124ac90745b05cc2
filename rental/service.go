package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"rentflow/escrow"
	"rentflow/listing"
	"rentflow/metrics"
)

var (
	// ErrNotTenant signals the caller is not the rental's tenant.
	ErrNotTenant = errors.New("rental: caller not tenant")
	// ErrNotLandlord signals the caller is not the rental's landlord.
	ErrNotLandlord = errors.New("rental: caller not landlord")
	// ErrInvalidState signals the rental is not in a state that permits
	// the operation.
	ErrInvalidState = errors.New("rental: invalid state for operation")
	// ErrIncorrectPayment signals the paid amount does not match what
	// is owed. Payments are exact, never partial.
	ErrIncorrectPayment = errors.New("rental: payment amount does not match amount due")
	// ErrOutOfWindow signals a rent payment outside the accepted
	// window around the due date.
	ErrOutOfWindow = errors.New("rental: payment outside allowed window")
	// ErrTermNotEnded signals a deposit release requested before the
	// agreed end date.
	ErrTermNotEnded = errors.New("rental: term has not ended")
	// ErrNothingToWithdraw signals no rent is currently held.
	ErrNothingToWithdraw = errors.New("rental: no rent held in escrow")
	// ErrSelfRental signals an owner attempting to rent their own
	// property.
	ErrSelfRental = errors.New("rental: owner cannot rent own property")
	// ErrDuplicateRequest signals an idempotency key that was already
	// consumed by an earlier request.
	ErrDuplicateRequest = errors.New("rental: request already processed")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the engine.
type Repository interface {
	ReserveIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error
	LockProperty(ctx context.Context, tx pgx.Tx, propertyID int64) (listing.ForRental, error)
	MarkPropertyOccupied(ctx context.Context, tx pgx.Tx, propertyID int64) error
	Insert(ctx context.Context, tx pgx.Tx, p CreateParams) (Rental, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, rentalID string) (Rental, error)
	AdvanceRentPaidUntil(ctx context.Context, tx pgx.Tx, rentalID string, until time.Time) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, rentalID string, from, to Status) error
	AppendEvent(ctx context.Context, tx pgx.Tx, rentalID, eventType, actorID string, payload map[string]any) error
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error

	Get(ctx context.Context, rentalID string) (Rental, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Rental, error)
	ListByLandlord(ctx context.Context, landlordID string) ([]Rental, error)
}

// Funds is the slice of the escrow ledger the engine uses.
type Funds interface {
	Credit(ctx context.Context, tx pgx.Tx, caller escrow.Caller, rentalID string, bucket escrow.Bucket, amount int64) error
	Withdraw(ctx context.Context, tx pgx.Tx, caller escrow.Caller, rentalID string, bucket escrow.Bucket, payeeID string) (int64, error)
}

// Service is the rental engine. Every mutating operation runs as one
// transaction covering the rental row, the property row, escrow
// movements, the timeline, and the outbox.
type Service struct {
	pool  TxBeginner
	repo  Repository
	funds Funds
	now   func() time.Time
	newID func() string
}

func NewService(pool TxBeginner, repo Repository, funds Funds) *Service {
	return &Service{
		pool:  pool,
		repo:  repo,
		funds: funds,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Create starts a rental: the tenant pays first month's rent plus the
// security deposit in one exact amount, the property snapshot is
// copied onto the rental, and the property becomes unavailable. A
// non-empty key is reserved in the same transaction, so a client retry
// of a request that already committed fails with ErrDuplicateRequest
// instead of double-charging.
func (s *Service) Create(ctx context.Context, tenantID string, propertyID int64, paid int64, key string) (Rental, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Rental{}, fmt.Errorf("rental: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if key != "" {
		if err := s.repo.ReserveIdempotencyKey(ctx, tx, key); err != nil {
			return Rental{}, err
		}
	}

	prop, err := s.repo.LockProperty(ctx, tx, propertyID)
	if err != nil {
		return Rental{}, err
	}
	if prop.OwnerID == tenantID {
		return Rental{}, ErrSelfRental
	}
	if !prop.IsAvailable {
		return Rental{}, listing.ErrNotAvailable
	}
	if paid != prop.MonthlyRent+prop.SecurityDeposit {
		return Rental{}, fmt.Errorf("%w: expected %d", ErrIncorrectPayment, prop.MonthlyRent+prop.SecurityDeposit)
	}

	if err := s.repo.MarkPropertyOccupied(ctx, tx, propertyID); err != nil {
		return Rental{}, err
	}

	start := s.now().UTC()
	rec, err := s.repo.Insert(ctx, tx, CreateParams{
		ID:              s.newID(),
		PropertyID:      propertyID,
		TenantID:        tenantID,
		LandlordID:      prop.OwnerID,
		MonthlyRent:     prop.MonthlyRent,
		SecurityDeposit: prop.SecurityDeposit,
		StartDate:       start,
		EndDate:         start.Add(time.Duration(prop.MinRentalMonths) * RentPeriod),
		RentPaidUntil:   start.Add(RentPeriod),
	})
	if err != nil {
		return Rental{}, err
	}

	if err := s.funds.Credit(ctx, tx, escrow.CallerRentalEngine, rec.ID, escrow.BucketRent, prop.MonthlyRent); err != nil {
		return Rental{}, err
	}
	if err := s.funds.Credit(ctx, tx, escrow.CallerRentalEngine, rec.ID, escrow.BucketDeposit, prop.SecurityDeposit); err != nil {
		return Rental{}, err
	}

	payload := map[string]any{
		"rental_id":   rec.ID,
		"property_id": propertyID,
		"tenant_id":   tenantID,
		"landlord_id": prop.OwnerID,
		"amount":      paid,
	}
	if err := s.repo.AppendEvent(ctx, tx, rec.ID, "RENTAL_CREATED", tenantID, payload); err != nil {
		return Rental{}, err
	}
	if err := s.repo.Enqueue(ctx, tx, "rental.created", payload); err != nil {
		return Rental{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Rental{}, fmt.Errorf("rental: commit tx: %w", err)
	}
	metrics.RentPaymentsTotal.Inc()
	return rec, nil
}

// PayRent accepts one exact monthly payment and advances the paid-until
// marker by a full period. Prepayment is capped at two periods ahead;
// late payment has a grace window after the due date.
func (s *Service) PayRent(ctx context.Context, tenantID, rentalID string, paid int64, key string) (Rental, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Rental{}, fmt.Errorf("rental: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if key != "" {
		if err := s.repo.ReserveIdempotencyKey(ctx, tx, key); err != nil {
			return Rental{}, err
		}
	}

	rec, err := s.repo.GetForUpdate(ctx, tx, rentalID)
	if err != nil {
		return Rental{}, err
	}
	if rec.TenantID != tenantID {
		return Rental{}, ErrNotTenant
	}
	if rec.Status != StatusActive {
		return Rental{}, ErrInvalidState
	}
	if paid != rec.MonthlyRent {
		return Rental{}, fmt.Errorf("%w: expected %d", ErrIncorrectPayment, rec.MonthlyRent)
	}

	now := s.now().UTC()
	due := rec.RentPaidUntil
	if now.Before(due.Add(-EarlyPaymentWindow)) || now.After(due.Add(LatePaymentGrace)) {
		return Rental{}, ErrOutOfWindow
	}

	until := due.Add(RentPeriod)
	if err := s.repo.AdvanceRentPaidUntil(ctx, tx, rentalID, until); err != nil {
		return Rental{}, err
	}
	if err := s.funds.Credit(ctx, tx, escrow.CallerRentalEngine, rentalID, escrow.BucketRent, paid); err != nil {
		return Rental{}, err
	}

	payload := map[string]any{
		"rental_id":       rentalID,
		"amount":          paid,
		"rent_paid_until": until,
	}
	if err := s.repo.AppendEvent(ctx, tx, rentalID, "RENT_PAID", tenantID, payload); err != nil {
		return Rental{}, err
	}
	if err := s.repo.Enqueue(ctx, tx, "rental.rent_paid", payload); err != nil {
		return Rental{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Rental{}, fmt.Errorf("rental: commit tx: %w", err)
	}
	metrics.RentPaymentsTotal.Inc()
	rec.RentPaidUntil = until
	return rec, nil
}

// WithdrawRent releases all accumulated rent to the landlord. Allowed
// in any rental state; rent already earned stays withdrawable after
// the rental ends.
func (s *Service) WithdrawRent(ctx context.Context, landlordID, rentalID string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("rental: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, rentalID)
	if err != nil {
		return 0, err
	}
	if rec.LandlordID != landlordID {
		return 0, ErrNotLandlord
	}

	released, err := s.funds.Withdraw(ctx, tx, escrow.CallerRentalEngine, rentalID, escrow.BucketRent, landlordID)
	if err != nil {
		if errors.Is(err, escrow.ErrNothingHeld) {
			return 0, ErrNothingToWithdraw
		}
		return 0, err
	}

	payload := map[string]any{"rental_id": rentalID, "amount": released}
	if err := s.repo.AppendEvent(ctx, tx, rentalID, "RENT_WITHDRAWN", landlordID, payload); err != nil {
		return 0, err
	}
	if err := s.repo.Enqueue(ctx, tx, "rental.rent_withdrawn", payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("rental: commit tx: %w", err)
	}
	metrics.EscrowPayoutsTotal.WithLabelValues(string(escrow.BucketRent)).Inc()
	return released, nil
}

// RequestDepositRelease is the tenant's half of the two-phase deposit
// handshake, allowed once the agreed term has elapsed.
func (s *Service) RequestDepositRelease(ctx context.Context, tenantID, rentalID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("rental: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, rentalID)
	if err != nil {
		return err
	}
	if rec.TenantID != tenantID {
		return ErrNotTenant
	}
	if rec.Status != StatusActive {
		return ErrInvalidState
	}
	if s.now().UTC().Before(rec.EndDate) {
		return ErrTermNotEnded
	}

	if err := s.repo.UpdateStatus(ctx, tx, rentalID, StatusActive, StatusDepositReleasePending); err != nil {
		return err
	}

	payload := map[string]any{"rental_id": rentalID}
	if err := s.repo.AppendEvent(ctx, tx, rentalID, "DEPOSIT_RELEASE_REQUESTED", tenantID, payload); err != nil {
		return err
	}
	if err := s.repo.Enqueue(ctx, tx, "rental.deposit_release_requested", payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("rental: commit tx: %w", err)
	}
	return nil
}

// ApproveDepositRelease is the landlord's half of the handshake: the
// full deposit goes back to the tenant and the rental ends. The
// property stays unavailable until the owner relists it.
func (s *Service) ApproveDepositRelease(ctx context.Context, landlordID, rentalID string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("rental: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, rentalID)
	if err != nil {
		return 0, err
	}
	if rec.LandlordID != landlordID {
		return 0, ErrNotLandlord
	}
	if rec.Status != StatusDepositReleasePending {
		return 0, ErrInvalidState
	}

	released, err := s.funds.Withdraw(ctx, tx, escrow.CallerRentalEngine, rentalID, escrow.BucketDeposit, rec.TenantID)
	if err != nil && !errors.Is(err, escrow.ErrNothingHeld) {
		return 0, err
	}

	if err := s.repo.UpdateStatus(ctx, tx, rentalID, StatusDepositReleasePending, StatusEnded); err != nil {
		return 0, err
	}

	payload := map[string]any{"rental_id": rentalID, "amount": released}
	if err := s.repo.AppendEvent(ctx, tx, rentalID, "DEPOSIT_RELEASED", landlordID, payload); err != nil {
		return 0, err
	}
	if err := s.repo.Enqueue(ctx, tx, "rental.ended", payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("rental: commit tx: %w", err)
	}
	if released > 0 {
		metrics.EscrowPayoutsTotal.WithLabelValues(string(escrow.BucketDeposit)).Inc()
	}
	return released, nil
}

// Get fetches a rental by id.
func (s *Service) Get(ctx context.Context, rentalID string) (Rental, error) {
	return s.repo.Get(ctx, rentalID)
}

// ListByTenant returns the caller's rentals as tenant, newest first.
func (s *Service) ListByTenant(ctx context.Context, tenantID string) ([]Rental, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

// ListByLandlord returns the caller's rentals as landlord, newest
// first.
func (s *Service) ListByLandlord(ctx context.Context, landlordID string) ([]Rental, error) {
	return s.repo.ListByLandlord(ctx, landlordID)
}
