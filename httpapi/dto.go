package httpapi

import (
	"time"

	"rentflow/dispute"
	"rentflow/identity"
	"rentflow/listing"
	"rentflow/maintenance"
	"rentflow/rental"
	"rentflow/review"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
}

type userResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	RegisteredAt time.Time `json:"registered_at"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		RegisteredAt: u.RegisteredAt,
	}
}

type propertyRequest struct {
	Location        string    `json:"location" validate:"required"`
	MonthlyRent     int64     `json:"monthly_rent" validate:"required,gt=0"`
	SecurityDeposit int64     `json:"security_deposit" validate:"required,gt=0"`
	Bedrooms        int       `json:"bedrooms" validate:"gte=0"`
	Bathrooms       int       `json:"bathrooms" validate:"gte=0"`
	AreaSqMeters    int       `json:"area_sq_meters" validate:"gte=0"`
	AvailableFrom   time.Time `json:"available_from"`
	MinRentalMonths int       `json:"min_rental_months" validate:"required,gt=0"`
	MetadataRef     string    `json:"metadata_ref"`
}

func (r propertyRequest) fields() listing.Fields {
	return listing.Fields{
		Location:        r.Location,
		MonthlyRent:     r.MonthlyRent,
		SecurityDeposit: r.SecurityDeposit,
		Bedrooms:        r.Bedrooms,
		Bathrooms:       r.Bathrooms,
		AreaSqMeters:    r.AreaSqMeters,
		AvailableFrom:   r.AvailableFrom,
		MinRentalMonths: r.MinRentalMonths,
		MetadataRef:     r.MetadataRef,
	}
}

type propertyResponse struct {
	ID              int64     `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Location        string    `json:"location"`
	MonthlyRent     int64     `json:"monthly_rent"`
	SecurityDeposit int64     `json:"security_deposit"`
	Bedrooms        int       `json:"bedrooms"`
	Bathrooms       int       `json:"bathrooms"`
	AreaSqMeters    int       `json:"area_sq_meters"`
	AvailableFrom   time.Time `json:"available_from"`
	MinRentalMonths int       `json:"min_rental_months"`
	MetadataRef     string    `json:"metadata_ref,omitempty"`
	IsListed        bool      `json:"is_listed"`
	IsAvailable     bool      `json:"is_available"`
	CreatedAt       time.Time `json:"created_at"`
}

func toPropertyResponse(p listing.Property) propertyResponse {
	return propertyResponse{
		ID:              p.ID,
		OwnerID:         p.OwnerID,
		Location:        p.Location,
		MonthlyRent:     p.MonthlyRent,
		SecurityDeposit: p.SecurityDeposit,
		Bedrooms:        p.Bedrooms,
		Bathrooms:       p.Bathrooms,
		AreaSqMeters:    p.AreaSqMeters,
		AvailableFrom:   p.AvailableFrom,
		MinRentalMonths: p.MinRentalMonths,
		MetadataRef:     p.MetadataRef,
		IsListed:        p.IsListed,
		IsAvailable:     p.IsAvailable,
		CreatedAt:       p.CreatedAt,
	}
}

func toPropertyResponses(props []listing.Property) []propertyResponse {
	out := make([]propertyResponse, 0, len(props))
	for _, p := range props {
		out = append(out, toPropertyResponse(p))
	}
	return out
}

type createRentalRequest struct {
	PropertyID int64 `json:"property_id" validate:"required,gt=0"`
	Amount     int64 `json:"amount" validate:"required,gt=0"`
}

type payRentRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type rentalResponse struct {
	ID              string    `json:"id"`
	PropertyID      int64     `json:"property_id"`
	TenantID        string    `json:"tenant_id"`
	LandlordID      string    `json:"landlord_id"`
	MonthlyRent     int64     `json:"monthly_rent"`
	SecurityDeposit int64     `json:"security_deposit"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	RentPaidUntil   time.Time `json:"rent_paid_until"`
	Status          string    `json:"status"`
}

func toRentalResponse(r rental.Rental) rentalResponse {
	return rentalResponse{
		ID:              r.ID,
		PropertyID:      r.PropertyID,
		TenantID:        r.TenantID,
		LandlordID:      r.LandlordID,
		MonthlyRent:     r.MonthlyRent,
		SecurityDeposit: r.SecurityDeposit,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		RentPaidUntil:   r.RentPaidUntil,
		Status:          string(r.Status),
	}
}

func toRentalResponses(recs []rental.Rental) []rentalResponse {
	out := make([]rentalResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toRentalResponse(r))
	}
	return out
}

type createDisputeRequest struct {
	RentalID      string `json:"rental_id" validate:"required,uuid"`
	Type          string `json:"type" validate:"required,oneof=payment deposit property_damage breach_of_contract other"`
	Description   string `json:"description" validate:"required"`
	EvidenceRef   string `json:"evidence_ref"`
	ClaimedAmount int64  `json:"claimed_amount" validate:"gte=0"`
}

type resolveDisputeRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=landlord_favor tenant_favor split"`
	Details string `json:"details" validate:"required"`
}

type arbitratorRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type disputeResponse struct {
	ID                string     `json:"id"`
	RentalID          string     `json:"rental_id"`
	InitiatorID       string     `json:"initiator_id"`
	RespondentID      string     `json:"respondent_id"`
	Description       string     `json:"description"`
	EvidenceRef       string     `json:"evidence_ref,omitempty"`
	ClaimedAmount     int64      `json:"claimed_amount"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	Outcome           *string    `json:"outcome,omitempty"`
	ResolverID        *string    `json:"resolver_id,omitempty"`
	ResolutionDetails *string    `json:"resolution_details,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

func toDisputeResponse(d dispute.Record) disputeResponse {
	resp := disputeResponse{
		ID:                d.ID,
		RentalID:          d.RentalID,
		InitiatorID:       d.InitiatorID,
		RespondentID:      d.RespondentID,
		Description:       d.Description,
		EvidenceRef:       d.EvidenceRef,
		ClaimedAmount:     d.ClaimedAmount,
		Type:              string(d.Type),
		Status:            string(d.Status),
		ResolverID:        d.ResolverID,
		ResolutionDetails: d.ResolutionDetails,
		CreatedAt:         d.CreatedAt,
		ResolvedAt:        d.ResolvedAt,
	}
	if d.Outcome != nil {
		outcome := string(*d.Outcome)
		resp.Outcome = &outcome
	}
	return resp
}

func toDisputeResponses(recs []dispute.Record) []disputeResponse {
	out := make([]disputeResponse, 0, len(recs))
	for _, d := range recs {
		out = append(out, toDisputeResponse(d))
	}
	return out
}

type createMaintenanceRequest struct {
	RentalID    string `json:"rental_id" validate:"required,uuid"`
	Description string `json:"description" validate:"required"`
	PhotosRef   string `json:"photos_ref"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high emergency"`
}

type updateMaintenanceStatusRequest struct {
	Status        string `json:"status" validate:"required,oneof=approved rejected in_progress"`
	Resolution    string `json:"resolution"`
	EstimatedCost int64  `json:"estimated_cost" validate:"gte=0"`
}

type completeMaintenanceRequest struct {
	ActualCost int64 `json:"actual_cost" validate:"gte=0"`
}

type maintenanceResponse struct {
	ID            string     `json:"id"`
	RentalID      string     `json:"rental_id"`
	TenantID      string     `json:"tenant_id"`
	Description   string     `json:"description"`
	PhotosRef     string     `json:"photos_ref,omitempty"`
	Priority      string     `json:"priority"`
	Status        string     `json:"status"`
	Resolution    string     `json:"resolution,omitempty"`
	EstimatedCost int64      `json:"estimated_cost"`
	ActualCost    int64      `json:"actual_cost"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toMaintenanceResponse(m maintenance.Record) maintenanceResponse {
	return maintenanceResponse{
		ID:            m.ID,
		RentalID:      m.RentalID,
		TenantID:      m.TenantID,
		Description:   m.Description,
		PhotosRef:     m.PhotosRef,
		Priority:      string(m.Priority),
		Status:        string(m.Status),
		Resolution:    m.Resolution,
		EstimatedCost: m.EstimatedCost,
		ActualCost:    m.ActualCost,
		CreatedAt:     m.CreatedAt,
		CompletedAt:   m.CompletedAt,
	}
}

func toMaintenanceResponses(recs []maintenance.Record) []maintenanceResponse {
	out := make([]maintenanceResponse, 0, len(recs))
	for _, m := range recs {
		out = append(out, toMaintenanceResponse(m))
	}
	return out
}

type reviewRequest struct {
	RentalID string `json:"rental_id" validate:"required,uuid"`
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comment  string `json:"comment"`
}

type propertyReviewResponse struct {
	ID         string    `json:"id"`
	PropertyID int64     `json:"property_id"`
	RentalID   string    `json:"rental_id"`
	ReviewerID string    `json:"reviewer_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toPropertyReviewResponse(r review.PropertyReview) propertyReviewResponse {
	return propertyReviewResponse{
		ID:         r.ID,
		PropertyID: r.PropertyID,
		RentalID:   r.RentalID,
		ReviewerID: r.ReviewerID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
}

type userReviewResponse struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	RentalID   string    `json:"rental_id"`
	ReviewerID string    `json:"reviewer_id"`
	Type       string    `json:"type"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserReviewResponse(r review.UserReview) userReviewResponse {
	return userReviewResponse{
		ID:         r.ID,
		SubjectID:  r.SubjectID,
		RentalID:   r.RentalID,
		ReviewerID: r.ReviewerID,
		Type:       string(r.Type),
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
}

type ratingResponse struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type escrowResponse struct {
	RentalID string `json:"rental_id"`
	Rent     int64  `json:"rent"`
	Deposit  int64  `json:"deposit"`
}

type amountResponse struct {
	Amount int64 `json:"amount"`
}
