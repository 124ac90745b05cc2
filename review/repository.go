package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrRentalNotFound signals an unknown rental id.
	ErrRentalNotFound = errors.New("review: rental not found")
	// ErrNotParty signals the reviewer was not part of the rental.
	ErrNotParty = errors.New("review: reviewer not party to rental")
	// ErrRentalNotConcluded signals a review before the rental ended.
	ErrRentalNotConcluded = errors.New("review: rental not concluded")
	// ErrDuplicateReview signals a second review for the same rental by
	// the same reviewer.
	ErrDuplicateReview = errors.New("review: already reviewed")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertPropertyReview records a tenant's review of the property they
// rented. Eligibility rides on the insert's subquery: the reviewer
// must be the tenant of an ended rental.
func (r *Repository) InsertPropertyReview(ctx context.Context, reviewerID, rentalID string, rating int, comment string) (PropertyReview, error) {
	const insertSQL = `
INSERT INTO property_reviews (property_id, rental_id, reviewer_id, rating, comment)
SELECT r.property_id, r.id, r.tenant_id, $3, $4
FROM rentals r
WHERE r.id = $1 AND r.tenant_id = $2 AND r.status = 'ended'
RETURNING id, property_id, rental_id, reviewer_id, rating, comment, created_at
`
	var rec PropertyReview
	err := r.pool.QueryRow(ctx, insertSQL, rentalID, reviewerID, rating, comment).Scan(
		&rec.ID, &rec.PropertyID, &rec.RentalID, &rec.ReviewerID, &rec.Rating, &rec.Comment, &rec.CreatedAt,
	)
	if err != nil {
		return PropertyReview{}, r.classify(ctx, err, rentalID, reviewerID, true)
	}
	return rec, nil
}

// InsertUserReview records one party's review of the other. The
// subject and review type are derived from the reviewer's role, never
// supplied by the caller.
func (r *Repository) InsertUserReview(ctx context.Context, reviewerID, rentalID string, rating int, comment string) (UserReview, error) {
	const insertSQL = `
INSERT INTO user_reviews (subject_id, rental_id, reviewer_id, review_type, rating, comment)
SELECT CASE WHEN r.tenant_id = $2 THEN r.landlord_id ELSE r.tenant_id END,
       r.id, $2,
       CASE WHEN r.tenant_id = $2 THEN 'landlord_review'::user_review_type
            ELSE 'tenant_review'::user_review_type END,
       $3, $4
FROM rentals r
WHERE r.id = $1 AND $2 IN (r.tenant_id, r.landlord_id) AND r.status = 'ended'
RETURNING id, subject_id, rental_id, reviewer_id, review_type::text, rating, comment, created_at
`
	var rec UserReview
	var rtype string
	err := r.pool.QueryRow(ctx, insertSQL, rentalID, reviewerID, rating, comment).Scan(
		&rec.ID, &rec.SubjectID, &rec.RentalID, &rec.ReviewerID, &rtype, &rec.Rating, &rec.Comment, &rec.CreatedAt,
	)
	if err != nil {
		return UserReview{}, r.classify(ctx, err, rentalID, reviewerID, false)
	}
	rec.Type = UserReviewType(rtype)
	return rec, nil
}

// classify turns an empty insert into the precise rejection reason.
func (r *Repository) classify(ctx context.Context, cause error, rentalID, reviewerID string, tenantOnly bool) error {
	var pgErr *pgconn.PgError
	if errors.As(cause, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateReview
	}
	if !errors.Is(cause, pgx.ErrNoRows) {
		return fmt.Errorf("review: insert: %w", cause)
	}

	var tenantID, landlordID, status string
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id::text, landlord_id::text, status::text FROM rentals WHERE id = $1`, rentalID).
		Scan(&tenantID, &landlordID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRentalNotFound
		}
		return fmt.Errorf("review: classify: %w", err)
	}
	if reviewerID != tenantID && (tenantOnly || reviewerID != landlordID) {
		return ErrNotParty
	}
	return ErrRentalNotConcluded
}

// PropertySummary aggregates a property's ratings.
func (r *Repository) PropertySummary(ctx context.Context, propertyID int64) (RatingSummary, error) {
	var s RatingSummary
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM property_reviews WHERE property_id = $1
`, propertyID).Scan(&s.Average, &s.Count)
	if err != nil {
		return RatingSummary{}, fmt.Errorf("review: property summary: %w", err)
	}
	return s, nil
}

// UserSummary aggregates the ratings a user has received.
func (r *Repository) UserSummary(ctx context.Context, userID string) (RatingSummary, error) {
	var s RatingSummary
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM user_reviews WHERE subject_id = $1
`, userID).Scan(&s.Average, &s.Count)
	if err != nil {
		return RatingSummary{}, fmt.Errorf("review: user summary: %w", err)
	}
	return s, nil
}

// ListByProperty returns a property's reviews, newest first.
func (r *Repository) ListByProperty(ctx context.Context, propertyID int64) ([]PropertyReview, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, property_id, rental_id, reviewer_id, rating, comment, created_at
FROM property_reviews WHERE property_id = $1 ORDER BY created_at DESC
`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("review: list by property: %w", err)
	}
	defer rows.Close()

	out := make([]PropertyReview, 0, 4)
	for rows.Next() {
		var rec PropertyReview
		if err := rows.Scan(&rec.ID, &rec.PropertyID, &rec.RentalID, &rec.ReviewerID, &rec.Rating, &rec.Comment, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("review: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("review: iterate: %w", err)
	}
	return out, nil
}

// ListForUser returns the reviews a user has received, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]UserReview, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, subject_id, rental_id, reviewer_id, review_type::text, rating, comment, created_at
FROM user_reviews WHERE subject_id = $1 ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("review: list for user: %w", err)
	}
	defer rows.Close()

	out := make([]UserReview, 0, 4)
	for rows.Next() {
		var rec UserReview
		var rtype string
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.RentalID, &rec.ReviewerID, &rtype, &rec.Rating, &rec.Comment, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("review: scan: %w", err)
		}
		rec.Type = UserReviewType(rtype)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("review: iterate: %w", err)
	}
	return out, nil
}
