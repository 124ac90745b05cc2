package maintenance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentflow/outbox"
)

var (
	// ErrNotFound signals an unknown request id.
	ErrNotFound = errors.New("maintenance: not found")
	// ErrForbidden signals the caller has no role on the rental that
	// permits the operation.
	ErrForbidden = errors.New("maintenance: forbidden")
	// ErrBadStatus signals an invalid status transition.
	ErrBadStatus = errors.New("maintenance: invalid status transition")
	// ErrRentalNotActive signals a request filed outside an active
	// rental.
	ErrRentalNotActive = errors.New("maintenance: rental not active")
)

const requestColumns = `m.id, m.rental_id, m.tenant_id, m.description, m.photos_ref,
       m.priority, m.status, m.resolution, m.estimated_cost, m.actual_cost,
       m.created_at, m.updated_at, m.completed_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create files a request. The tenant check rides on the insert's
// subquery so a non-tenant caller simply inserts nothing.
func (r *Repository) Create(ctx context.Context, tenantID, rentalID, description, photosRef string, priority Priority) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("maintenance: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertSQL := `
INSERT INTO maintenance_requests (rental_id, tenant_id, description, photos_ref, priority)
SELECT r.id, r.tenant_id, $3, $4, $5::maintenance_priority
FROM rentals r
WHERE r.id = $1 AND r.tenant_id = $2 AND r.status = 'active'
RETURNING ` + requestColumnsUnqualified

	rec, err := scanRequest(tx.QueryRow(ctx, insertSQL, rentalID, tenantID, description, photosRef, string(priority)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, r.classifyCreate(ctx, rentalID, tenantID)
		}
		return Record{}, fmt.Errorf("maintenance: create: %w", err)
	}

	payload := map[string]any{
		"request_id": rec.ID,
		"rental_id":  rentalID,
		"priority":   string(priority),
	}
	if err := outbox.AppendEvent(ctx, tx, outbox.EntityMaintenance, rec.ID, "MAINTENANCE_FILED", tenantID, payload); err != nil {
		return Record{}, err
	}
	if err := outbox.Enqueue(ctx, tx, "maintenance.filed", payload); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("maintenance: commit: %w", err)
	}
	return rec, nil
}

func (r *Repository) classifyCreate(ctx context.Context, rentalID, tenantID string) error {
	var realTenant string
	var status string
	err := r.pool.QueryRow(ctx, `SELECT tenant_id::text, status::text FROM rentals WHERE id = $1`, rentalID).
		Scan(&realTenant, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("maintenance: create fetch: %w", err)
	}
	if realTenant != tenantID {
		return ErrForbidden
	}
	return ErrRentalNotActive
}

// UpdateStatus moves a request along its lifecycle. Landlord only; the
// resolution note and estimated cost are recorded with the approval.
func (r *Repository) UpdateStatus(ctx context.Context, landlordID, requestID string, to Status, resolution string, estimatedCost int64) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("maintenance: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := r.lockWithRoles(ctx, tx, requestID)
	if err != nil {
		return Record{}, err
	}
	if rec.landlordID != landlordID {
		return Record{}, ErrForbidden
	}
	if to == StatusCompleted || !validTransition(rec.Status, to) {
		return Record{}, ErrBadStatus
	}

	updateSQL := `
UPDATE maintenance_requests m
SET status = $2::maintenance_status,
    resolution = $3,
    estimated_cost = $4,
    updated_at = get_tx_timestamp()
WHERE m.id = $1
RETURNING ` + requestColumns

	updated, err := scanRequest(tx.QueryRow(ctx, updateSQL, requestID, string(to), resolution, estimatedCost))
	if err != nil {
		return Record{}, fmt.Errorf("maintenance: update status: %w", err)
	}

	payload := map[string]any{"request_id": requestID, "status": string(to)}
	if err := outbox.AppendEvent(ctx, tx, outbox.EntityMaintenance, requestID, "MAINTENANCE_STATUS_CHANGED", landlordID, payload); err != nil {
		return Record{}, err
	}
	if err := outbox.Enqueue(ctx, tx, "maintenance.status_changed", payload); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("maintenance: commit: %w", err)
	}
	return updated, nil
}

// Complete closes an in-progress request with the actual cost.
// Landlord only.
func (r *Repository) Complete(ctx context.Context, landlordID, requestID string, actualCost int64) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("maintenance: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := r.lockWithRoles(ctx, tx, requestID)
	if err != nil {
		return Record{}, err
	}
	if rec.landlordID != landlordID {
		return Record{}, ErrForbidden
	}
	if !validTransition(rec.Status, StatusCompleted) {
		return Record{}, ErrBadStatus
	}

	completeSQL := `
UPDATE maintenance_requests m
SET status = 'completed',
    actual_cost = $2,
    completed_at = get_tx_timestamp(),
    updated_at = get_tx_timestamp()
WHERE m.id = $1
RETURNING ` + requestColumns

	updated, err := scanRequest(tx.QueryRow(ctx, completeSQL, requestID, actualCost))
	if err != nil {
		return Record{}, fmt.Errorf("maintenance: complete: %w", err)
	}

	payload := map[string]any{"request_id": requestID, "actual_cost": actualCost}
	if err := outbox.AppendEvent(ctx, tx, outbox.EntityMaintenance, requestID, "MAINTENANCE_COMPLETED", landlordID, payload); err != nil {
		return Record{}, err
	}
	if err := outbox.Enqueue(ctx, tx, "maintenance.completed", payload); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("maintenance: commit: %w", err)
	}
	return updated, nil
}

type lockedRequest struct {
	Record
	landlordID string
}

func (r *Repository) lockWithRoles(ctx context.Context, tx pgx.Tx, requestID string) (lockedRequest, error) {
	lockSQL := `
SELECT ` + requestColumns + `, r.landlord_id::text
FROM maintenance_requests m
JOIN rentals r ON r.id = m.rental_id
WHERE m.id = $1
FOR UPDATE OF m
`
	var rec lockedRequest
	var priority, status string
	err := tx.QueryRow(ctx, lockSQL, requestID).Scan(
		&rec.ID, &rec.RentalID, &rec.TenantID, &rec.Description, &rec.PhotosRef,
		&priority, &status, &rec.Resolution, &rec.EstimatedCost, &rec.ActualCost,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt, &rec.landlordID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedRequest{}, ErrNotFound
		}
		return lockedRequest{}, fmt.Errorf("maintenance: lock request: %w", err)
	}
	rec.Priority = Priority(priority)
	rec.Status = Status(status)
	return rec, nil
}

// Get fetches a request by id.
func (r *Repository) Get(ctx context.Context, requestID string) (Record, error) {
	rec, err := scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM maintenance_requests m WHERE m.id = $1`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("maintenance: get: %w", err)
	}
	return rec, nil
}

// ListByRental returns a rental's requests, newest first.
func (r *Repository) ListByRental(ctx context.Context, rentalID string) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM maintenance_requests m WHERE m.rental_id = $1 ORDER BY m.created_at DESC`, rentalID)
	if err != nil {
		return nil, fmt.Errorf("maintenance: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("maintenance: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("maintenance: iterate: %w", err)
	}
	return out, nil
}

const requestColumnsUnqualified = `id, rental_id, tenant_id, description, photos_ref,
       priority, status, resolution, estimated_cost, actual_cost,
       created_at, updated_at, completed_at`

func scanRequest(row pgx.Row) (Record, error) {
	var rec Record
	var priority, status string
	err := row.Scan(
		&rec.ID, &rec.RentalID, &rec.TenantID, &rec.Description, &rec.PhotosRef,
		&priority, &status, &rec.Resolution, &rec.EstimatedCost, &rec.ActualCost,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Priority = Priority(priority)
	rec.Status = Status(status)
	return rec, nil
}
