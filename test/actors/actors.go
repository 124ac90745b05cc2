// Package actors drives the rental platform through its real services
// under concurrency. Every actor tolerates the domain rejections it is
// designed to provoke and fails only on unexpected errors.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentflow/dispute"
	"rentflow/listing"
	"rentflow/rental"
)

// Landlord keeps listing fresh properties so the market never dries
// up, and occasionally unlists one that was never rented.
func Landlord(ctx context.Context, svc *listing.Service, landlordID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		prop, err := svc.List(ctx, landlordID, listing.Fields{
			Location:        fmt.Sprintf("%d Stress Avenue", rand.Intn(10_000)),
			MonthlyRent:     int64(50 + rand.Intn(200)),
			SecurityDeposit: int64(100 + rand.Intn(400)),
			MinRentalMonths: 1 + rand.Intn(3),
		})
		if err != nil {
			return fmt.Errorf("landlord list: %w", err)
		}
		if rand.Intn(5) == 0 {
			if err := svc.Unlist(ctx, landlordID, prop.ID); err != nil &&
				!errors.Is(err, listing.ErrNotListed) {
				return fmt.Errorf("landlord unlist: %w", err)
			}
		}
		time.Sleep(time.Duration(40+rand.Intn(80)) * time.Millisecond)
	}
}

// Tenant rents whatever is on the market. Losing the race for a
// property is expected.
func Tenant(ctx context.Context, pool *pgxpool.Pool, svc *rental.Service, tenantID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var propID int64
		var rent, deposit int64
		err := pool.QueryRow(ctx, `
SELECT id, monthly_rent, security_deposit FROM properties
WHERE is_listed AND is_available AND owner_id <> $1
ORDER BY random() LIMIT 1
`, tenantID).Scan(&propID, &rent, &deposit)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) && ctx.Err() == nil {
				return fmt.Errorf("tenant browse: %w", err)
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if _, err := svc.Create(ctx, tenantID, propID, rent+deposit, uuid.NewString()); err != nil &&
			!errors.Is(err, listing.ErrNotAvailable) && !errors.Is(err, listing.ErrNotFound) {
			return fmt.Errorf("tenant rent: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// Payer pays rent on the tenant's rentals until the prepayment window
// shuts, then moves on.
func Payer(ctx context.Context, pool *pgxpool.Pool, svc *rental.Service, tenantID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		id, rent, err := randomRental(ctx, pool, `tenant_id = $1 AND status = 'active'`, tenantID)
		if err != nil {
			return fmt.Errorf("payer pick: %w", err)
		}
		if id != "" {
			if _, err := svc.PayRent(ctx, tenantID, id, rent, uuid.NewString()); err != nil &&
				!errors.Is(err, rental.ErrOutOfWindow) &&
				!errors.Is(err, rental.ErrInvalidState) &&
				!errors.Is(err, rental.ErrNotFound) {
				return fmt.Errorf("payer pay: %w", err)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(50)) * time.Millisecond)
	}
}

// Withdrawer sweeps accumulated rent to the landlord.
func Withdrawer(ctx context.Context, pool *pgxpool.Pool, svc *rental.Service, landlordID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		id, _, err := randomRental(ctx, pool, `landlord_id = $1`, landlordID)
		if err != nil {
			return fmt.Errorf("withdrawer pick: %w", err)
		}
		if id != "" {
			if _, err := svc.WithdrawRent(ctx, landlordID, id); err != nil &&
				!errors.Is(err, rental.ErrNothingToWithdraw) &&
				!errors.Is(err, rental.ErrNotFound) {
				return fmt.Errorf("withdrawer sweep: %w", err)
			}
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Disputer files disputes on live rentals and has the arbitrator rule
// on pending ones, draining deposits and concluding rentals.
func Disputer(ctx context.Context, pool *pgxpool.Pool, svc *dispute.Service, tenantID, arbitratorID string, stop <-chan struct{}) error {
	outcomes := []dispute.Outcome{dispute.OutcomeTenantFavor, dispute.OutcomeLandlordFavor, dispute.OutcomeSplit}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, rent, err := randomRental(ctx, pool, `tenant_id = $1 AND status <> 'ended'`, tenantID)
		if err != nil {
			return fmt.Errorf("disputer pick: %w", err)
		}
		if id != "" && rand.Intn(4) == 0 {
			if _, err := svc.Create(ctx, tenantID, id, dispute.TypeDeposit, "stress filing", "", rent); err != nil &&
				!errors.Is(err, dispute.ErrRentalConcluded) &&
				!errors.Is(err, rental.ErrNotFound) {
				return fmt.Errorf("disputer file: %w", err)
			}
		}

		var dispID string
		err = pool.QueryRow(ctx, `
SELECT id FROM disputes WHERE status <> 'resolved' ORDER BY random() LIMIT 1
`).Scan(&dispID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("disputer pick dispute: %w", err)
		}
		if dispID != "" {
			outcome := outcomes[rand.Intn(len(outcomes))]
			if _, err := svc.Resolve(ctx, arbitratorID, dispID, outcome, "stress ruling"); err != nil &&
				!errors.Is(err, dispute.ErrAlreadyResolved) &&
				!errors.Is(err, dispute.ErrNotFound) {
				return fmt.Errorf("disputer resolve: %w", err)
			}
		}
		time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	}
}

func randomRental(ctx context.Context, pool *pgxpool.Pool, where string, args ...any) (string, int64, error) {
	var id string
	var rent int64
	err := pool.QueryRow(ctx,
		`SELECT id, monthly_rent FROM rentals WHERE `+where+` ORDER BY random() LIMIT 1`, args...).
		Scan(&id, &rent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, nil
		}
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, err
	}
	return id, rent, nil
}
