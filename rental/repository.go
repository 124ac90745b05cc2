package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentflow/listing"
	"rentflow/outbox"
)

// ErrNotFound signals an unknown rental id.
var ErrNotFound = errors.New("rental: not found")

const rentalColumns = `id, property_id, tenant_id, landlord_id, monthly_rent, security_deposit,
       start_date, end_date, rent_paid_until, status, created_at, updated_at`

// PGRepository is the postgres implementation of the rental data layer.
// Mutating methods operate inside a caller-owned transaction so the
// engine can compose them with property locks and escrow movements.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ReserveIdempotencyKey claims the key inside the active transaction.
// A key already claimed by a committed request fails with
// ErrDuplicateRequest; a concurrent claim blocks until the first
// transaction settles.
func (r *PGRepository) ReserveIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if _, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("rental: reserve idempotency key: %w", err)
	}
	return nil
}

func (r *PGRepository) LockProperty(ctx context.Context, tx pgx.Tx, propertyID int64) (listing.ForRental, error) {
	return listing.LockForRental(ctx, tx, propertyID)
}

func (r *PGRepository) MarkPropertyOccupied(ctx context.Context, tx pgx.Tx, propertyID int64) error {
	return listing.MarkOccupied(ctx, tx, propertyID)
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, p CreateParams) (Rental, error) {
	insertSQL := `
INSERT INTO rentals (id, property_id, tenant_id, landlord_id, monthly_rent, security_deposit,
                     start_date, end_date, rent_paid_until)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + rentalColumns

	rec, err := scanRental(tx.QueryRow(ctx, insertSQL,
		p.ID, p.PropertyID, p.TenantID, p.LandlordID, p.MonthlyRent, p.SecurityDeposit,
		p.StartDate, p.EndDate, p.RentPaidUntil,
	))
	if err != nil {
		return Rental{}, fmt.Errorf("rental: insert: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, rentalID string) (Rental, error) {
	rec, err := scanRental(tx.QueryRow(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE id = $1 FOR UPDATE`, rentalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rental{}, ErrNotFound
		}
		return Rental{}, fmt.Errorf("rental: lock rental: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) AdvanceRentPaidUntil(ctx context.Context, tx pgx.Tx, rentalID string, until time.Time) error {
	tag, err := tx.Exec(ctx, `
UPDATE rentals SET rent_paid_until = $2, updated_at = get_tx_timestamp()
WHERE id = $1
`, rentalID, until)
	if err != nil {
		return fmt.Errorf("rental: advance rent_paid_until: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions the rental guarded by the database-side
// transition predicate. Zero rows means the row moved out from under
// us, so the caller's state check no longer holds.
func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, rentalID string, from, to Status) error {
	tag, err := tx.Exec(ctx, `
UPDATE rentals SET status = $3::rental_status, updated_at = get_tx_timestamp()
WHERE id = $1
  AND status = $2::rental_status
  AND rental_validate_transition($2::rental_status, $3::rental_status)
`, rentalID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("rental: update status %s -> %s: %w", from, to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *PGRepository) AppendEvent(ctx context.Context, tx pgx.Tx, rentalID, eventType, actorID string, payload map[string]any) error {
	return outbox.AppendEvent(ctx, tx, outbox.EntityRental, rentalID, eventType, actorID, payload)
}

func (r *PGRepository) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	return outbox.Enqueue(ctx, tx, topic, payload)
}

// Get fetches a rental by id outside any transaction.
func (r *PGRepository) Get(ctx context.Context, rentalID string) (Rental, error) {
	rec, err := scanRental(r.pool.QueryRow(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE id = $1`, rentalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rental{}, ErrNotFound
		}
		return Rental{}, fmt.Errorf("rental: get: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) ListByTenant(ctx context.Context, tenantID string) ([]Rental, error) {
	return r.query(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
}

func (r *PGRepository) ListByLandlord(ctx context.Context, landlordID string) ([]Rental, error) {
	return r.query(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE landlord_id = $1 ORDER BY created_at DESC`, landlordID)
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]Rental, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("rental: query: %w", err)
	}
	defer rows.Close()

	out := make([]Rental, 0, 4)
	for rows.Next() {
		rec, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("rental: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rental: iterate: %w", err)
	}
	return out, nil
}

func scanRental(row pgx.Row) (Rental, error) {
	var rec Rental
	var status string
	err := row.Scan(
		&rec.ID, &rec.PropertyID, &rec.TenantID, &rec.LandlordID,
		&rec.MonthlyRent, &rec.SecurityDeposit,
		&rec.StartDate, &rec.EndDate, &rec.RentPaidUntil,
		&status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return Rental{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}
