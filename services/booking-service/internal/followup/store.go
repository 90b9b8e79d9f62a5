package followup

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
)

// Candidate is a completed appointment whose next follow-up may be due.
type Candidate struct {
	Appointment model.Appointment
	ServiceName string
	BranchName  string
}

// Store is the persistence the worker runs on. Each appointment is handled
// in its own transaction so one failure never rolls back another's progress.
type Store interface {
	// DueIDs lists completed appointments whose next follow-up is at or before now.
	DueIDs(ctx context.Context, now time.Time, startAfter time.Duration, maxCount, limit int) ([]string, error)
	// WithCandidate locks the appointment and runs fn in a transaction that
	// commits when fn returns nil. fn is not called when another worker holds
	// the row or its follow-ups are finished.
	WithCandidate(ctx context.Context, appointmentID string, fn func(ctx context.Context, tx Tx, c Candidate) error) error
}

type Tx interface {
	// HasNewerBooking reports whether the same customer booked again after since.
	HasNewerBooking(ctx context.Context, appt model.Appointment, since time.Time) (bool, error)
	MarkFollowup(ctx context.Context, appointmentID string, count int, next *time.Time, done bool) error
	RecordEvent(ctx context.Context, evt outbox.Event) error
}
