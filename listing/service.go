package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentflow/outbox"
)

var (
	// ErrNotFound signals an unknown property id.
	ErrNotFound = errors.New("listing: property not found")
	// ErrNotOwner signals the caller is not the recorded owner.
	ErrNotOwner = errors.New("listing: caller not owner")
	// ErrNotListed signals the property has been unlisted.
	ErrNotListed = errors.New("listing: property not listed")
	// ErrInvalidFields signals malformed listing attributes.
	ErrInvalidFields = errors.New("listing: invalid property fields")
)

// Service owns property records. Availability is never mutated here;
// only the rental engine flips it, inside its own transactions.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a catalog service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func validateFields(f Fields) error {
	if strings.TrimSpace(f.Location) == "" {
		return fmt.Errorf("%w: empty location", ErrInvalidFields)
	}
	if f.MonthlyRent <= 0 {
		return fmt.Errorf("%w: rent must be positive", ErrInvalidFields)
	}
	if f.SecurityDeposit <= 0 {
		return fmt.Errorf("%w: deposit must be positive", ErrInvalidFields)
	}
	if f.MinRentalMonths <= 0 {
		return fmt.Errorf("%w: minimum rental period must be positive", ErrInvalidFields)
	}
	return nil
}

const propertyColumns = `id, owner_id, location, monthly_rent, security_deposit, bedrooms, bathrooms,
       area_sq_meters, available_from, min_rental_months, metadata_ref, is_listed, is_available,
       created_at, updated_at`

// List creates a new property owned by the caller, listed and
// available.
func (s *Service) List(ctx context.Context, ownerID string, f Fields) (Property, error) {
	if err := validateFields(f); err != nil {
		return Property{}, err
	}
	if f.AvailableFrom.IsZero() {
		f.AvailableFrom = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Property{}, fmt.Errorf("listing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertSQL := `
INSERT INTO properties (owner_id, location, monthly_rent, security_deposit, bedrooms, bathrooms,
                        area_sq_meters, available_from, min_rental_months, metadata_ref)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + propertyColumns

	prop, err := scanProperty(tx.QueryRow(ctx, insertSQL,
		ownerID, f.Location, f.MonthlyRent, f.SecurityDeposit, f.Bedrooms, f.Bathrooms,
		f.AreaSqMeters, f.AvailableFrom, f.MinRentalMonths, f.MetadataRef,
	))
	if err != nil {
		return Property{}, fmt.Errorf("listing: insert: %w", err)
	}

	payload := map[string]any{
		"property_id": prop.ID,
		"owner_id":    prop.OwnerID,
		"location":    prop.Location,
	}
	if err := outbox.AppendEvent(ctx, tx, outbox.EntityProperty, idStr(prop.ID), "PROPERTY_LISTED", ownerID, payload); err != nil {
		return Property{}, err
	}
	if err := outbox.Enqueue(ctx, tx, "property.listed", payload); err != nil {
		return Property{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Property{}, fmt.Errorf("listing: commit: %w", err)
	}
	return prop, nil
}

// Update overwrites mutable fields of a listed property. Ownership
// never changes.
func (s *Service) Update(ctx context.Context, callerID string, propertyID int64, f Fields) (Property, error) {
	if err := validateFields(f); err != nil {
		return Property{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Property{}, fmt.Errorf("listing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var ownerID string
	var isListed bool
	err = tx.QueryRow(ctx, `SELECT owner_id, is_listed FROM properties WHERE id = $1 FOR UPDATE`, propertyID).
		Scan(&ownerID, &isListed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Property{}, ErrNotFound
		}
		return Property{}, fmt.Errorf("listing: load property: %w", err)
	}
	if ownerID != callerID {
		return Property{}, ErrNotOwner
	}
	if !isListed {
		return Property{}, ErrNotListed
	}

	updateSQL := `
UPDATE properties
SET location = $2, monthly_rent = $3, security_deposit = $4, bedrooms = $5, bathrooms = $6,
    area_sq_meters = $7, available_from = $8, min_rental_months = $9, metadata_ref = $10,
    updated_at = get_tx_timestamp()
WHERE id = $1
RETURNING ` + propertyColumns

	prop, err := scanProperty(tx.QueryRow(ctx, updateSQL,
		propertyID, f.Location, f.MonthlyRent, f.SecurityDeposit, f.Bedrooms, f.Bathrooms,
		f.AreaSqMeters, f.AvailableFrom, f.MinRentalMonths, f.MetadataRef,
	))
	if err != nil {
		return Property{}, fmt.Errorf("listing: update: %w", err)
	}

	payload := map[string]any{"property_id": prop.ID}
	if err := outbox.AppendEvent(ctx, tx, outbox.EntityProperty, idStr(prop.ID), "PROPERTY_UPDATED", callerID, payload); err != nil {
		return Property{}, err
	}
	if err := outbox.Enqueue(ctx, tx, "property.updated", payload); err != nil {
		return Property{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Property{}, fmt.Errorf("listing: commit: %w", err)
	}
	return prop, nil
}

// Unlist removes the property from the catalog. Unlisting twice fails
// with ErrNotListed.
func (s *Service) Unlist(ctx context.Context, callerID string, propertyID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("listing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var ownerID string
	var isListed bool
	err = tx.QueryRow(ctx, `SELECT owner_id, is_listed FROM properties WHERE id = $1 FOR UPDATE`, propertyID).
		Scan(&ownerID, &isListed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("listing: load property: %w", err)
	}
	if ownerID != callerID {
		return ErrNotOwner
	}
	if !isListed {
		return ErrNotListed
	}

	if _, err := tx.Exec(ctx, `
UPDATE properties
SET is_listed = false, is_available = false, updated_at = get_tx_timestamp()
WHERE id = $1
`, propertyID); err != nil {
		return fmt.Errorf("listing: unlist: %w", err)
	}

	payload := map[string]any{"property_id": propertyID}
	if err := outbox.AppendEvent(ctx, tx, outbox.EntityProperty, idStr(propertyID), "PROPERTY_UNLISTED", callerID, payload); err != nil {
		return err
	}
	if err := outbox.Enqueue(ctx, tx, "property.unlisted", payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("listing: commit: %w", err)
	}
	return nil
}

// Get fetches a property by id.
func (s *Service) Get(ctx context.Context, propertyID int64) (Property, error) {
	prop, err := scanProperty(s.pool.QueryRow(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1`, propertyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Property{}, ErrNotFound
		}
		return Property{}, fmt.Errorf("listing: get: %w", err)
	}
	return prop, nil
}

// ListAvailable returns listed, available properties, newest first.
func (s *Service) ListAvailable(ctx context.Context, limit, offset int) ([]Property, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.query(ctx,
		`SELECT `+propertyColumns+` FROM properties
         WHERE is_listed AND is_available
         ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
}

// ListByOwner returns all properties recorded for an owner.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Property, error) {
	return s.query(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE owner_id = $1 ORDER BY id DESC`, ownerID)
}

func (s *Service) query(ctx context.Context, sql string, args ...any) ([]Property, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing: query: %w", err)
	}
	defer rows.Close()

	out := make([]Property, 0, 8)
	for rows.Next() {
		prop, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("listing: scan: %w", err)
		}
		out = append(out, prop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing: iterate: %w", err)
	}
	return out, nil
}

func scanProperty(row pgx.Row) (Property, error) {
	var p Property
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Location, &p.MonthlyRent, &p.SecurityDeposit,
		&p.Bedrooms, &p.Bathrooms, &p.AreaSqMeters, &p.AvailableFrom,
		&p.MinRentalMonths, &p.MetadataRef, &p.IsListed, &p.IsAvailable,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Property{}, err
	}
	return p, nil
}

func idStr(id int64) string {
	return fmt.Sprintf("%d", id)
}
