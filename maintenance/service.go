package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest signals malformed request fields.
var ErrInvalidRequest = errors.New("maintenance: invalid request fields")

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Create files a maintenance request on the caller's active rental.
func (s *Service) Create(ctx context.Context, tenantID, rentalID, description, photosRef string, priority Priority) (Record, error) {
	if strings.TrimSpace(description) == "" {
		return Record{}, fmt.Errorf("%w: empty description", ErrInvalidRequest)
	}
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityEmergency:
	case "":
		priority = PriorityMedium
	default:
		return Record{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, priority)
	}
	return s.repo.Create(ctx, tenantID, rentalID, description, photosRef, priority)
}

// UpdateStatus lets the landlord approve, reject, or start work on a
// request. Completion goes through Complete.
func (s *Service) UpdateStatus(ctx context.Context, landlordID, requestID string, to Status, resolution string, estimatedCost int64) (Record, error) {
	if estimatedCost < 0 {
		return Record{}, fmt.Errorf("%w: negative estimated cost", ErrInvalidRequest)
	}
	return s.repo.UpdateStatus(ctx, landlordID, requestID, to, resolution, estimatedCost)
}

// Complete closes an in-progress request, recording the actual cost.
func (s *Service) Complete(ctx context.Context, landlordID, requestID string, actualCost int64) (Record, error) {
	if actualCost < 0 {
		return Record{}, fmt.Errorf("%w: negative actual cost", ErrInvalidRequest)
	}
	return s.repo.Complete(ctx, landlordID, requestID, actualCost)
}

// Get fetches a request by id.
func (s *Service) Get(ctx context.Context, requestID string) (Record, error) {
	return s.repo.Get(ctx, requestID)
}

// ListByRental returns a rental's requests, newest first.
func (s *Service) ListByRental(ctx context.Context, rentalID string) ([]Record, error) {
	return s.repo.ListByRental(ctx, rentalID)
}
