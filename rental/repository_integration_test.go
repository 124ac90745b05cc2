package rental

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"rentflow/escrow"
)

// TestRentalLifecycle_Integration connects to a real PostgreSQL via
// DATABASE_URL and drives a full lifecycle: create, prepay two periods,
// reject a third prepayment, withdraw rent, two-phase deposit release.
func TestRentalLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"users", "properties", "rentals", "escrow_balances", "timeline_events", "outbox", "idempotency"} {
		if !tableExists(ctx, t, pool, table) {
			t.Skip("database schema missing; run migrations: migrate -path migrations -database \"$DATABASE_URL\" up")
		}
	}

	var tenantID, landlordID string
	var propertyID int64

	nano := time.Now().UnixNano()
	if err := pool.QueryRow(ctx, `
INSERT INTO users (email, display_name, password_hash) VALUES ($1, 'Tessa Tenant', 'x') RETURNING id
`, fmt.Sprintf("tenant+%d@example.com", nano)).Scan(&tenantID); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	if err := pool.QueryRow(ctx, `
INSERT INTO users (email, display_name, password_hash) VALUES ($1, 'Lars Landlord', 'x') RETURNING id
`, fmt.Sprintf("landlord+%d@example.com", nano)).Scan(&landlordID); err != nil {
		t.Fatalf("seed landlord: %v", err)
	}
	if err := pool.QueryRow(ctx, `
INSERT INTO properties (owner_id, location, monthly_rent, security_deposit, min_rental_months, available_from)
VALUES ($1, '12 Canal Street', 100, 200, 2, now()) RETURNING id
`, landlordID).Scan(&propertyID); err != nil {
		t.Fatalf("seed property: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM escrow_payouts WHERE rental_id IN (SELECT id FROM rentals WHERE property_id = $1)`, propertyID)
		pool.Exec(ctx2, `DELETE FROM escrow_balances WHERE rental_id IN (SELECT id FROM rentals WHERE property_id = $1)`, propertyID)
		pool.Exec(ctx2, `DELETE FROM timeline_events WHERE entity_kind = 'rental' AND entity_id IN (SELECT id::text FROM rentals WHERE property_id = $1)`, propertyID)
		pool.Exec(ctx2, `DELETE FROM rentals WHERE property_id = $1`, propertyID)
		pool.Exec(ctx2, `DELETE FROM timeline_events WHERE entity_kind = 'property' AND entity_id = $1::text`, propertyID)
		pool.Exec(ctx2, `DELETE FROM properties WHERE id = $1`, propertyID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, tenantID, landlordID)
		pool.Exec(ctx2, `DELETE FROM idempotency WHERE key LIKE $1`, fmt.Sprintf("it-%d-%%", nano))
	})

	ledger := escrow.NewLedger(pool)
	if err := ledger.Grant(escrow.CallerRentalEngine); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ledger.Seal()
	svc := NewService(pool, NewRepository(pool), ledger)

	createKey := fmt.Sprintf("it-%d-create", nano)
	rec, err := svc.Create(ctx, tenantID, propertyID, 300, createKey)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Status != StatusActive {
		t.Fatalf("status = %s, want active", rec.Status)
	}

	// A client retry with the same key must not open a second rental.
	if _, err := svc.Create(ctx, tenantID, propertyID, 300, createKey); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest on replayed create, got %v", err)
	}

	var available bool
	if err := pool.QueryRow(ctx, `SELECT is_available FROM properties WHERE id = $1`, propertyID).Scan(&available); err != nil {
		t.Fatalf("read property: %v", err)
	}
	if available {
		t.Errorf("property still available after rental created")
	}

	// Renting an occupied property must fail.
	if _, err := svc.Create(ctx, tenantID, propertyID, 300, ""); err == nil {
		t.Errorf("expected second create to fail on occupied property")
	}

	// Two back-to-back prepayments stay within the early window.
	payKey := fmt.Sprintf("it-%d-pay2", nano)
	if _, err := svc.PayRent(ctx, tenantID, rec.ID, 100, payKey); err != nil {
		t.Fatalf("pay period 2: %v", err)
	}
	if _, err := svc.PayRent(ctx, tenantID, rec.ID, 100, payKey); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest on replayed payment, got %v", err)
	}
	after, err := svc.PayRent(ctx, tenantID, rec.ID, 100, fmt.Sprintf("it-%d-pay3", nano))
	if err != nil {
		t.Fatalf("pay period 3: %v", err)
	}
	want := rec.StartDate.Add(3 * RentPeriod)
	if !after.RentPaidUntil.Equal(want) {
		t.Errorf("rent_paid_until = %v, want %v", after.RentPaidUntil, want)
	}

	// A third prepayment is more than two periods early.
	if _, err := svc.PayRent(ctx, tenantID, rec.ID, 100, ""); !errors.Is(err, ErrOutOfWindow) {
		t.Fatalf("expected ErrOutOfWindow, got %v", err)
	}

	held, err := ledger.Balance(ctx, rec.ID, escrow.BucketRent)
	if err != nil {
		t.Fatalf("rent balance: %v", err)
	}
	if held != 300 {
		t.Errorf("rent held = %d, want 300", held)
	}

	released, err := svc.WithdrawRent(ctx, landlordID, rec.ID)
	if err != nil {
		t.Fatalf("withdraw rent: %v", err)
	}
	if released != 300 {
		t.Errorf("withdrew %d, want 300", released)
	}
	if _, err := svc.WithdrawRent(ctx, landlordID, rec.ID); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}

	// The term has not elapsed yet.
	if err := svc.RequestDepositRelease(ctx, tenantID, rec.ID); !errors.Is(err, ErrTermNotEnded) {
		t.Fatalf("expected ErrTermNotEnded, got %v", err)
	}

	// Age the rental past its end date, then run the handshake.
	if _, err := pool.Exec(ctx, `UPDATE rentals SET end_date = now() - interval '1 hour' WHERE id = $1`, rec.ID); err != nil {
		t.Fatalf("age rental: %v", err)
	}
	if err := svc.RequestDepositRelease(ctx, tenantID, rec.ID); err != nil {
		t.Fatalf("request release: %v", err)
	}
	if _, err := svc.ApproveDepositRelease(ctx, tenantID, rec.ID); !errors.Is(err, ErrNotLandlord) {
		t.Fatalf("expected ErrNotLandlord on tenant approval, got %v", err)
	}
	deposit, err := svc.ApproveDepositRelease(ctx, landlordID, rec.ID)
	if err != nil {
		t.Fatalf("approve release: %v", err)
	}
	if deposit != 200 {
		t.Errorf("deposit released = %d, want 200", deposit)
	}

	final, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != StatusEnded {
		t.Errorf("status = %s, want ended", final.Status)
	}

	left, err := ledger.Balance(ctx, rec.ID, escrow.BucketDeposit)
	if err != nil {
		t.Fatalf("deposit balance: %v", err)
	}
	if left != 0 {
		t.Errorf("deposit held = %d, want 0", left)
	}

	// Ending a rental does not resurface the property.
	if err := pool.QueryRow(ctx, `SELECT is_available FROM properties WHERE id = $1`, propertyID).Scan(&available); err != nil {
		t.Fatalf("read property: %v", err)
	}
	if available {
		t.Errorf("property available after rental ended; relisting is the owner's call")
	}

	// Timeline sequence is dense and monotonic per entity.
	rows, err := pool.Query(ctx, `
SELECT seq FROM timeline_events WHERE entity_kind = 'rental' AND entity_id = $1 ORDER BY seq
`, rec.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	defer rows.Close()
	next := int64(1)
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			t.Fatalf("scan seq: %v", err)
		}
		if seq != next {
			t.Errorf("timeline seq = %d, want %d", seq, next)
		}
		next++
	}
	if next == 1 {
		t.Errorf("no timeline events recorded")
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, name).Scan(&exists); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
