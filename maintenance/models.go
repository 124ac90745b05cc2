package maintenance

import "time"

// Status represents the lifecycle of a maintenance request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Priority is set by the tenant when filing.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

// Record mirrors the maintenance_requests table.
type Record struct {
	ID            string
	RentalID      string
	TenantID      string
	Description   string
	PhotosRef     string
	Priority      Priority
	Status        Status
	Resolution    string
	EstimatedCost int64
	ActualCost    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected},
	StatusApproved:   {StatusInProgress},
	StatusInProgress: {StatusCompleted},
}

func validTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
