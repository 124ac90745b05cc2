package review

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidRating signals a rating outside 1..5.
var ErrInvalidRating = errors.New("review: rating must be between 1 and 5")

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func checkRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	return nil
}

// ReviewProperty records the tenant's review of a property after the
// rental concluded. One review per rental.
func (s *Service) ReviewProperty(ctx context.Context, reviewerID, rentalID string, rating int, comment string) (PropertyReview, error) {
	if err := checkRating(rating); err != nil {
		return PropertyReview{}, err
	}
	return s.repo.InsertPropertyReview(ctx, reviewerID, rentalID, rating, comment)
}

// ReviewCounterparty records one rental party's review of the other
// after the rental concluded. One review per rental per reviewer.
func (s *Service) ReviewCounterparty(ctx context.Context, reviewerID, rentalID string, rating int, comment string) (UserReview, error) {
	if err := checkRating(rating); err != nil {
		return UserReview{}, err
	}
	return s.repo.InsertUserReview(ctx, reviewerID, rentalID, rating, comment)
}

// PropertySummary aggregates a property's ratings.
func (s *Service) PropertySummary(ctx context.Context, propertyID int64) (RatingSummary, error) {
	return s.repo.PropertySummary(ctx, propertyID)
}

// UserSummary aggregates the ratings a user has received.
func (s *Service) UserSummary(ctx context.Context, userID string) (RatingSummary, error) {
	return s.repo.UserSummary(ctx, userID)
}

// ListByProperty returns a property's reviews, newest first.
func (s *Service) ListByProperty(ctx context.Context, propertyID int64) ([]PropertyReview, error) {
	return s.repo.ListByProperty(ctx, propertyID)
}

// ListForUser returns the reviews a user has received, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]UserReview, error) {
	return s.repo.ListForUser(ctx, userID)
}
