package rental

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rentflow/outbox"
)

// LockForArbitration loads and row-locks a rental inside the dispute
// service's transaction.
func LockForArbitration(ctx context.Context, tx pgx.Tx, rentalID string) (Rental, error) {
	rec, err := scanRental(tx.QueryRow(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE id = $1 FOR UPDATE`, rentalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rental{}, ErrNotFound
		}
		return Rental{}, fmt.Errorf("rental: lock for arbitration: %w", err)
	}
	return rec, nil
}

// MarkEnded force-ends a rental whose deposit was drained by a dispute
// resolution, recording the transition on the rental's own timeline.
// Ending an already ended rental is a no-op.
func MarkEnded(ctx context.Context, tx pgx.Tx, rentalID, actorID string) error {
	tag, err := tx.Exec(ctx, `
UPDATE rentals SET status = 'ended', updated_at = get_tx_timestamp()
WHERE id = $1
  AND status <> 'ended'
  AND rental_validate_transition(status, 'ended'::rental_status)
`, rentalID)
	if err != nil {
		return fmt.Errorf("rental: mark ended: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	payload := map[string]any{"rental_id": rentalID, "reason": "dispute_resolution"}
	if err := outbox.AppendEvent(ctx, tx, outbox.EntityRental, rentalID, "RENTAL_ENDED", actorID, payload); err != nil {
		return err
	}
	return outbox.Enqueue(ctx, tx, "rental.ended", payload)
}
