package listing

import "time"

// Property mirrors the properties table. Identifiers are assigned by a
// sequence so successful listings always receive increasing ids.
type Property struct {
	ID              int64
	OwnerID         string
	Location        string
	MonthlyRent     int64
	SecurityDeposit int64
	Bedrooms        int
	Bathrooms       int
	AreaSqMeters    int
	AvailableFrom   time.Time
	MinRentalMonths int
	MetadataRef     string
	IsListed        bool
	IsAvailable     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Fields enumerates the owner-supplied attributes of a listing. The
// owner is taken from the authenticated caller, never from the body.
type Fields struct {
	Location        string
	MonthlyRent     int64
	SecurityDeposit int64
	Bedrooms        int
	Bathrooms       int
	AreaSqMeters    int
	AvailableFrom   time.Time
	MinRentalMonths int
	MetadataRef     string
}
