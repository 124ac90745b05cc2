package review

import "time"

// UserReviewType says which side of the rental is being reviewed.
type UserReviewType string

const (
	// TypeLandlordReview is a tenant reviewing their landlord.
	TypeLandlordReview UserReviewType = "landlord_review"
	// TypeTenantReview is a landlord reviewing their tenant.
	TypeTenantReview UserReviewType = "tenant_review"
)

// PropertyReview is a tenant's review of a property they rented.
type PropertyReview struct {
	ID         string
	PropertyID int64
	RentalID   string
	ReviewerID string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// UserReview is one rental party's review of the other.
type UserReview struct {
	ID         string
	SubjectID  string
	RentalID   string
	ReviewerID string
	Type       UserReviewType
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// RatingSummary aggregates reviews for a property or user.
type RatingSummary struct {
	Average float64
	Count   int
}
