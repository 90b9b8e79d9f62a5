package model

import "time"

type Status string

const (
	StatusDraft      Status = "draft"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Active reports whether a booking in this status still occupies its staff member's time.
func (s Status) Active() bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusInProgress:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// ActiveStatuses is the set used in SQL filters and the exclusion constraint.
func ActiveStatuses() []string {
	return []string{string(StatusDraft), string(StatusConfirmed), string(StatusInProgress)}
}

type Appointment struct {
	ID             string
	ServiceID      string
	StaffID        string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	Notes          string
	StartTime      time.Time
	EndTime        time.Time
	Status         Status
	CancelledAt    *time.Time
	CancelReason   string
	CompletedAt    *time.Time
	FollowupCount  int
	NextFollowupAt *time.Time
	// Prices are in the business currency; PromoCodeID is empty without a promo.
	PromoCodeID    string
	Price          float64
	DiscountAmount float64
	FinalPrice     float64
	CreatedAt      time.Time
}
