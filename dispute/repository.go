package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentflow/outbox"
	"rentflow/rental"
)

var (
	// ErrNotFound signals an unknown dispute id.
	ErrNotFound = errors.New("dispute: not found")
	// ErrAlreadyResolved signals a second ruling on a resolved dispute.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
	// ErrAlreadyArbitrator signals a duplicate arbitrator grant.
	ErrAlreadyArbitrator = errors.New("dispute: user already an arbitrator")
)

const disputeColumns = `id, rental_id, initiator_id, respondent_id, description, evidence_ref,
       claimed_amount, dispute_type, status, outcome, resolver_id, resolution_details,
       created_at, updated_at, resolved_at`

// PGRepository is the postgres implementation of the dispute data
// layer. Mutating methods run inside a caller-owned transaction so a
// ruling, its fund movements, and the rental transition commit as one.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) LockRental(ctx context.Context, tx pgx.Tx, rentalID string) (rental.Rental, error) {
	return rental.LockForArbitration(ctx, tx, rentalID)
}

func (r *PGRepository) MarkRentalEnded(ctx context.Context, tx pgx.Tx, rentalID, actorID string) error {
	return rental.MarkEnded(ctx, tx, rentalID, actorID)
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, p CreateParams) (Record, error) {
	insertSQL := `
INSERT INTO disputes (rental_id, initiator_id, respondent_id, description, evidence_ref,
                      claimed_amount, dispute_type)
VALUES ($1, $2, $3, $4, $5, $6, $7::dispute_type)
RETURNING ` + disputeColumns

	rec, err := scanDispute(tx.QueryRow(ctx, insertSQL,
		p.RentalID, p.InitiatorID, p.RespondentID, p.Description, p.EvidenceRef,
		p.ClaimedAmount, string(p.Type),
	))
	if err != nil {
		return Record{}, fmt.Errorf("dispute: insert: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, disputeID string) (Record, error) {
	rec, err := scanDispute(tx.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: lock dispute: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, disputeID string, from, to Status) error {
	tag, err := tx.Exec(ctx, `
UPDATE disputes SET status = $3::dispute_status, updated_at = get_tx_timestamp()
WHERE id = $1 AND status = $2::dispute_status
`, disputeID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("dispute: update status %s -> %s: %w", from, to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBadStatus
	}
	return nil
}

// Resolve writes the ruling. Resolution fields are write-once; the
// status guard makes a second ruling fail rather than overwrite.
func (r *PGRepository) Resolve(ctx context.Context, tx pgx.Tx, p ResolveParams) (Record, error) {
	resolveSQL := `
UPDATE disputes
SET status = 'resolved',
    outcome = $2::dispute_outcome,
    resolver_id = $3,
    resolution_details = $4,
    resolved_at = get_tx_timestamp(),
    updated_at = get_tx_timestamp()
WHERE id = $1 AND status <> 'resolved'
RETURNING ` + disputeColumns

	rec, err := scanDispute(tx.QueryRow(ctx, resolveSQL,
		p.DisputeID, string(p.Outcome), p.ResolverID, p.ResolutionDetails,
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	var status string
	if err := tx.QueryRow(ctx, `SELECT status::text FROM disputes WHERE id = $1`, p.DisputeID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: resolve fetch: %w", err)
	}
	if Status(status) == StatusResolved {
		return Record{}, ErrAlreadyResolved
	}
	return Record{}, ErrNotFound
}

func (r *PGRepository) AppendEvent(ctx context.Context, tx pgx.Tx, disputeID, eventType, actorID string, payload map[string]any) error {
	return outbox.AppendEvent(ctx, tx, outbox.EntityDispute, disputeID, eventType, actorID, payload)
}

func (r *PGRepository) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	return outbox.Enqueue(ctx, tx, topic, payload)
}

func (r *PGRepository) AddArbitrator(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO arbitrators (user_id) VALUES ($1)`, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyArbitrator
		}
		return fmt.Errorf("dispute: add arbitrator: %w", err)
	}
	return nil
}

func (r *PGRepository) RemoveArbitrator(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM arbitrators WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("dispute: remove arbitrator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotArbitrator
	}
	return nil
}

func (r *PGRepository) IsArbitrator(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM arbitrators WHERE user_id = $1)`, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("dispute: check arbitrator: %w", err)
	}
	return ok, nil
}

// Get fetches a dispute by id outside any transaction.
func (r *PGRepository) Get(ctx context.Context, disputeID string) (Record, error) {
	rec, err := scanDispute(r.pool.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) ListByRental(ctx context.Context, rentalID string) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE rental_id = $1 ORDER BY created_at DESC`, rentalID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		rec, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func scanDispute(row pgx.Row) (Record, error) {
	var rec Record
	var dtype, status string
	var outcome, resolver, details *string
	err := row.Scan(
		&rec.ID, &rec.RentalID, &rec.InitiatorID, &rec.RespondentID,
		&rec.Description, &rec.EvidenceRef, &rec.ClaimedAmount,
		&dtype, &status, &outcome, &resolver, &details,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Type = Type(dtype)
	rec.Status = Status(status)
	if outcome != nil {
		o := Outcome(*outcome)
		rec.Outcome = &o
	}
	rec.ResolverID = resolver
	rec.ResolutionDetails = details
	return rec, nil
}
