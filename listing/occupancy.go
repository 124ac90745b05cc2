package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotAvailable signals the property cannot be rented.
var ErrNotAvailable = errors.New("listing: property not available")

// ForRental is the snapshot the rental engine copies at creation time.
// Later catalog edits never reach an active rental.
type ForRental struct {
	ID              int64
	OwnerID         string
	MonthlyRent     int64
	SecurityDeposit int64
	MinRentalMonths int
	IsAvailable     bool
}

// LockForRental loads and row-locks a property inside the rental
// engine's transaction.
func LockForRental(ctx context.Context, tx pgx.Tx, propertyID int64) (ForRental, error) {
	const q = `
SELECT id, owner_id, monthly_rent, security_deposit, min_rental_months, is_available
FROM properties
WHERE id = $1
FOR UPDATE
`
	var p ForRental
	err := tx.QueryRow(ctx, q, propertyID).
		Scan(&p.ID, &p.OwnerID, &p.MonthlyRent, &p.SecurityDeposit, &p.MinRentalMonths, &p.IsAvailable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ForRental{}, ErrNotFound
		}
		return ForRental{}, fmt.Errorf("listing: lock property: %w", err)
	}
	return p, nil
}

// MarkOccupied flips availability off. Called only by the rental
// engine, inside the same transaction that creates the rental and
// credits escrow, so no observer ever sees one without the other.
func MarkOccupied(ctx context.Context, tx pgx.Tx, propertyID int64) error {
	tag, err := tx.Exec(ctx, `
UPDATE properties
SET is_available = false, updated_at = get_tx_timestamp()
WHERE id = $1 AND is_available
`, propertyID)
	if err != nil {
		return fmt.Errorf("listing: mark occupied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAvailable
	}
	return nil
}
