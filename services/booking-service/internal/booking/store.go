package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/promo"
)

// Store persists appointments. Implementations must return active bookings
// only from ListActive, and WithStaffLock must serialise all callers for the
// same staff member for the lifetime of fn, committing only when fn returns nil.
type Store interface {
	ListActive(ctx context.Context, staffID string, from, to time.Time) ([]model.Appointment, error)
	Get(ctx context.Context, appointmentID string) (model.Appointment, error)
	WithStaffLock(ctx context.Context, staffID string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside a staff lock.
type Tx interface {
	ListActive(ctx context.Context, staffID string, from, to time.Time) ([]model.Appointment, error)
	Create(ctx context.Context, appt *model.Appointment) error
	GetForUpdate(ctx context.Context, appointmentID string) (model.Appointment, error)
	UpdateStatus(ctx context.Context, appt model.Appointment) error
	RecordEvent(ctx context.Context, evt outbox.Event) error

	// LockPromo loads a promo code by its normalised code and holds it for
	// the rest of the transaction; ErrNotFound when no such code exists.
	LockPromo(ctx context.Context, code string) (promo.Code, error)
	// CustomerPromoUses counts non-cancelled bookings with the promo by the
	// customer matched on email or phone.
	CustomerPromoUses(ctx context.Context, promoID, email, phone string) (int, error)
	RecordPromoUse(ctx context.Context, promoID string) error
}

// Catalog resolves services and staff; both return ErrNotFound when unknown.
type Catalog interface {
	GetService(ctx context.Context, serviceID string) (model.Service, error)
	GetStaff(ctx context.Context, staffID string) (model.Staff, error)
}

// Recorder receives engine outcomes for metrics. Outcome values are
// "booked", "conflict", "invalid" and "error".
type Recorder interface {
	SlotsListed(n int)
	BookingAttempt(outcome string)
	StatusTransition(from, to model.Status)
}

type nopRecorder struct{}

func (nopRecorder) SlotsListed(int)                             {}
func (nopRecorder) BookingAttempt(string)                       {}
func (nopRecorder) StatusTransition(model.Status, model.Status) {}
