package rental

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"rentflow/escrow"
	"rentflow/listing"
	"rentflow/metrics"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, funds *fakeFunds, now time.Time) (*Service, *fakePool) {
	pool := &fakePool{}
	svc := NewService(pool, repo, funds)
	svc.now = func() time.Time { return now }
	svc.newID = func() string { return "rental-1" }
	return svc, pool
}

func activeRental() Rental {
	return Rental{
		ID:              "rental-1",
		PropertyID:      7,
		TenantID:        "tenant-1",
		LandlordID:      "landlord-1",
		MonthlyRent:     100,
		SecurityDeposit: 200,
		StartDate:       testStart,
		EndDate:         testStart.Add(3 * RentPeriod),
		RentPaidUntil:   testStart.Add(RentPeriod),
		Status:          StatusActive,
	}
}

func TestCreate_Success(t *testing.T) {
	repo := &fakeRepo{prop: listing.ForRental{
		ID: 7, OwnerID: "landlord-1", MonthlyRent: 100, SecurityDeposit: 200,
		MinRentalMonths: 3, IsAvailable: true,
	}}
	funds := &fakeFunds{}
	svc, pool := newTestService(repo, funds, testStart)

	rec, err := svc.Create(context.Background(), "tenant-1", 7, 300, "create-key-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(repo.keys) != 1 || repo.keys[0] != "create-key-1" {
		t.Errorf("reserved keys = %v, want [create-key-1]", repo.keys)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if !repo.occupied {
		t.Errorf("expected property marked occupied")
	}
	if repo.inserted == nil {
		t.Fatalf("expected rental insert")
	}
	if got := repo.inserted.RentPaidUntil; !got.Equal(testStart.Add(RentPeriod)) {
		t.Errorf("rent_paid_until = %v, want %v", got, testStart.Add(RentPeriod))
	}
	if got := repo.inserted.EndDate; !got.Equal(testStart.Add(3 * RentPeriod)) {
		t.Errorf("end_date = %v, want %v", got, testStart.Add(3*RentPeriod))
	}
	if rec.LandlordID != "landlord-1" {
		t.Errorf("landlord = %q", rec.LandlordID)
	}
	if len(funds.credits) != 2 ||
		funds.credits[0] != (credit{escrow.BucketRent, 100}) ||
		funds.credits[1] != (credit{escrow.BucketDeposit, 200}) {
		t.Errorf("unexpected credits: %+v", funds.credits)
	}
}

func TestCreate_RejectsIncorrectPayment(t *testing.T) {
	repo := &fakeRepo{prop: listing.ForRental{
		ID: 7, OwnerID: "landlord-1", MonthlyRent: 100, SecurityDeposit: 200, IsAvailable: true,
	}}
	svc, pool := newTestService(repo, &fakeFunds{}, testStart)

	_, err := svc.Create(context.Background(), "tenant-1", 7, 250, "")
	if !errors.Is(err, ErrIncorrectPayment) {
		t.Fatalf("expected ErrIncorrectPayment, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback")
	}
	if repo.occupied || repo.inserted != nil {
		t.Errorf("expected no writes on rejection")
	}
}

func TestCreate_RejectsOwnProperty(t *testing.T) {
	repo := &fakeRepo{prop: listing.ForRental{
		ID: 7, OwnerID: "tenant-1", MonthlyRent: 100, SecurityDeposit: 200, IsAvailable: true,
	}}
	svc, _ := newTestService(repo, &fakeFunds{}, testStart)

	if _, err := svc.Create(context.Background(), "tenant-1", 7, 300, ""); !errors.Is(err, ErrSelfRental) {
		t.Fatalf("expected ErrSelfRental, got %v", err)
	}
}

func TestCreate_RejectsUnavailable(t *testing.T) {
	repo := &fakeRepo{prop: listing.ForRental{
		ID: 7, OwnerID: "landlord-1", MonthlyRent: 100, SecurityDeposit: 200, IsAvailable: false,
	}}
	svc, _ := newTestService(repo, &fakeFunds{}, testStart)

	if _, err := svc.Create(context.Background(), "tenant-1", 7, 300, ""); !errors.Is(err, listing.ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}
}

func TestCreate_DuplicateRequestKey(t *testing.T) {
	repo := &fakeRepo{
		prop: listing.ForRental{
			ID: 7, OwnerID: "landlord-1", MonthlyRent: 100, SecurityDeposit: 200,
			MinRentalMonths: 3, IsAvailable: true,
		},
		reserveErr: ErrDuplicateRequest,
	}
	svc, pool := newTestService(repo, &fakeFunds{}, testStart)

	if _, err := svc.Create(context.Background(), "tenant-1", 7, 300, "retried-key"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback")
	}
	if repo.occupied || repo.inserted != nil {
		t.Errorf("expected no writes on replayed request")
	}
}

func TestPayRent_DuplicateRequestKey(t *testing.T) {
	repo := &fakeRepo{rec: activeRental(), reserveErr: ErrDuplicateRequest}
	funds := &fakeFunds{}
	svc, pool := newTestService(repo, funds, testStart)

	if _, err := svc.PayRent(context.Background(), "tenant-1", "rental-1", 100, "pay-key"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback")
	}
	if len(funds.credits) != 0 || repo.advanced != nil {
		t.Errorf("expected no credit or advance on replayed payment")
	}
}

func TestPayRent_Window(t *testing.T) {
	due := testStart.Add(RentPeriod)
	cases := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{"right after creation", testStart, nil},
		{"at early limit", due.Add(-EarlyPaymentWindow), nil},
		{"just before early limit", due.Add(-EarlyPaymentWindow - time.Minute), ErrOutOfWindow},
		{"on due date", due, nil},
		{"inside grace", due.Add(LatePaymentGrace - time.Hour), nil},
		{"past grace", due.Add(LatePaymentGrace + time.Minute), ErrOutOfWindow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeRepo{rec: activeRental()}
			svc, _ := newTestService(repo, &fakeFunds{}, tc.now)

			rec, err := svc.PayRent(context.Background(), "tenant-1", "rental-1", 100, "")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr == nil && !rec.RentPaidUntil.Equal(due.Add(RentPeriod)) {
				t.Errorf("rent_paid_until = %v, want %v", rec.RentPaidUntil, due.Add(RentPeriod))
			}
		})
	}
}

func TestPayRent_RejectsWrongCallerAmountAndState(t *testing.T) {
	ended := activeRental()
	ended.Status = StatusEnded

	cases := []struct {
		name    string
		rec     Rental
		tenant  string
		amount  int64
		wantErr error
	}{
		{"wrong tenant", activeRental(), "landlord-1", 100, ErrNotTenant},
		{"partial payment", activeRental(), "tenant-1", 50, ErrIncorrectPayment},
		{"overpayment", activeRental(), "tenant-1", 150, ErrIncorrectPayment},
		{"ended rental", ended, "tenant-1", 100, ErrInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeRepo{rec: tc.rec}
			svc, pool := newTestService(repo, &fakeFunds{}, testStart)

			if _, err := svc.PayRent(context.Background(), tc.tenant, "rental-1", tc.amount, ""); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if pool.tx.committed {
				t.Errorf("expected rollback")
			}
		})
	}
}

func TestWithdrawRent(t *testing.T) {
	rentPayouts := metrics.EscrowPayoutsTotal.WithLabelValues(string(escrow.BucketRent))
	before := testutil.ToFloat64(rentPayouts)

	repo := &fakeRepo{rec: activeRental()}
	funds := &fakeFunds{withdrawAmount: 300}
	svc, pool := newTestService(repo, funds, testStart)

	released, err := svc.WithdrawRent(context.Background(), "landlord-1", "rental-1")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if released != 300 {
		t.Errorf("released = %d, want 300", released)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if got := testutil.ToFloat64(rentPayouts); got != before+1 {
		t.Errorf("rent payout counter = %v, want %v", got, before+1)
	}

	repo = &fakeRepo{rec: activeRental()}
	svc, _ = newTestService(repo, &fakeFunds{withdrawErr: escrow.ErrNothingHeld}, testStart)
	if _, err := svc.WithdrawRent(context.Background(), "landlord-1", "rental-1"); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}

	repo = &fakeRepo{rec: activeRental()}
	svc, _ = newTestService(repo, &fakeFunds{}, testStart)
	if _, err := svc.WithdrawRent(context.Background(), "tenant-1", "rental-1"); !errors.Is(err, ErrNotLandlord) {
		t.Fatalf("expected ErrNotLandlord, got %v", err)
	}

	// Rejected withdrawals roll back and must not count as payouts.
	if got := testutil.ToFloat64(rentPayouts); got != before+1 {
		t.Errorf("rent payout counter = %v after failed withdrawals, want %v", got, before+1)
	}
}

func TestRequestDepositRelease(t *testing.T) {
	rec := activeRental()

	repo := &fakeRepo{rec: rec}
	svc, _ := newTestService(repo, &fakeFunds{}, rec.EndDate.Add(-time.Hour))
	if err := svc.RequestDepositRelease(context.Background(), "tenant-1", "rental-1"); !errors.Is(err, ErrTermNotEnded) {
		t.Fatalf("expected ErrTermNotEnded, got %v", err)
	}

	repo = &fakeRepo{rec: rec}
	svc, pool := newTestService(repo, &fakeFunds{}, rec.EndDate)
	if err := svc.RequestDepositRelease(context.Background(), "tenant-1", "rental-1"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if repo.statusTo == nil || *repo.statusTo != StatusDepositReleasePending {
		t.Errorf("expected transition to deposit_release_pending, got %v", repo.statusTo)
	}

	repo = &fakeRepo{rec: rec}
	svc, _ = newTestService(repo, &fakeFunds{}, rec.EndDate)
	if err := svc.RequestDepositRelease(context.Background(), "landlord-1", "rental-1"); !errors.Is(err, ErrNotTenant) {
		t.Fatalf("expected ErrNotTenant, got %v", err)
	}
}

func TestApproveDepositRelease(t *testing.T) {
	pending := activeRental()
	pending.Status = StatusDepositReleasePending

	repo := &fakeRepo{rec: pending}
	funds := &fakeFunds{withdrawAmount: 200}
	svc, pool := newTestService(repo, funds, pending.EndDate)

	released, err := svc.ApproveDepositRelease(context.Background(), "landlord-1", "rental-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if released != 200 {
		t.Errorf("released = %d, want 200", released)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if repo.statusTo == nil || *repo.statusTo != StatusEnded {
		t.Errorf("expected transition to ended, got %v", repo.statusTo)
	}
	if funds.withdrawPayee != "tenant-1" {
		t.Errorf("deposit paid to %q, want tenant", funds.withdrawPayee)
	}

	repo = &fakeRepo{rec: activeRental()}
	svc, _ = newTestService(repo, &fakeFunds{}, pending.EndDate)
	if _, err := svc.ApproveDepositRelease(context.Background(), "landlord-1", "rental-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState without tenant request, got %v", err)
	}
}

type credit struct {
	bucket escrow.Bucket
	amount int64
}

type fakeFunds struct {
	credits        []credit
	withdrawAmount int64
	withdrawErr    error
	withdrawPayee  string
}

func (f *fakeFunds) Credit(ctx context.Context, tx pgx.Tx, caller escrow.Caller, rentalID string, bucket escrow.Bucket, amount int64) error {
	f.credits = append(f.credits, credit{bucket, amount})
	return nil
}

func (f *fakeFunds) Withdraw(ctx context.Context, tx pgx.Tx, caller escrow.Caller, rentalID string, bucket escrow.Bucket, payeeID string) (int64, error) {
	if f.withdrawErr != nil {
		return 0, f.withdrawErr
	}
	f.withdrawPayee = payeeID
	return f.withdrawAmount, nil
}

type fakeRepo struct {
	prop       listing.ForRental
	propErr    error
	rec        Rental
	getErr     error
	reserveErr error

	keys     []string
	occupied bool
	inserted *CreateParams
	advanced *time.Time
	statusTo *Status
	events   []string
	topics   []string
}

func (f *fakeRepo) ReserveIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeRepo) LockProperty(ctx context.Context, tx pgx.Tx, propertyID int64) (listing.ForRental, error) {
	return f.prop, f.propErr
}

func (f *fakeRepo) MarkPropertyOccupied(ctx context.Context, tx pgx.Tx, propertyID int64) error {
	f.occupied = true
	return nil
}

func (f *fakeRepo) Insert(ctx context.Context, tx pgx.Tx, p CreateParams) (Rental, error) {
	f.inserted = &p
	return Rental{
		ID:              "rental-1",
		PropertyID:      p.PropertyID,
		TenantID:        p.TenantID,
		LandlordID:      p.LandlordID,
		MonthlyRent:     p.MonthlyRent,
		SecurityDeposit: p.SecurityDeposit,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		RentPaidUntil:   p.RentPaidUntil,
		Status:          StatusActive,
	}, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, rentalID string) (Rental, error) {
	if f.getErr != nil {
		return Rental{}, f.getErr
	}
	return f.rec, nil
}

func (f *fakeRepo) AdvanceRentPaidUntil(ctx context.Context, tx pgx.Tx, rentalID string, until time.Time) error {
	f.advanced = &until
	return nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, rentalID string, from, to Status) error {
	if f.rec.Status != from {
		return ErrInvalidState
	}
	f.statusTo = &to
	return nil
}

func (f *fakeRepo) AppendEvent(ctx context.Context, tx pgx.Tx, rentalID, eventType, actorID string, payload map[string]any) error {
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeRepo) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, rentalID string) (Rental, error) {
	if f.getErr != nil {
		return Rental{}, f.getErr
	}
	return f.rec, nil
}

func (f *fakeRepo) ListByTenant(ctx context.Context, tenantID string) ([]Rental, error) {
	return []Rental{f.rec}, nil
}

func (f *fakeRepo) ListByLandlord(ctx context.Context, landlordID string) ([]Rental, error) {
	return []Rental{f.rec}, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	panic("not implemented")
}
