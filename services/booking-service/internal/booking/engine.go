package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/promo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine answers availability queries and commits bookings. It holds no
// mutable state; all serialisation happens in the Store.
type Engine struct {
	store    Store
	catalog  Catalog
	loc      *time.Location
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	tracer   trace.Tracer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

func NewEngine(store Store, catalog Catalog, loc *time.Location, logger *slog.Logger, opts ...Option) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		catalog:  catalog,
		loc:      loc,
		logger:   logger,
		recorder: nopRecorder{},
		now:      time.Now,
		tracer:   otelx.Tracer("booking-service/booking"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Today is the current civil date in the business timezone.
func (e *Engine) Today() availability.Date {
	return availability.DateOf(e.now().In(e.loc))
}

type BookingRequest struct {
	ServiceID     string
	StaffID       string
	Start         time.Time
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Notes         string
	PromoCode     string
}

// ListAvailableSlots returns the free slots for days consecutive dates
// starting at from. Dates without free slots are absent from the map.
func (e *Engine) ListAvailableSlots(ctx context.Context, serviceID, staffID string, from availability.Date, days int) (map[availability.Date][]availability.CandidateSlot, error) {
	if days < 1 {
		return nil, fmt.Errorf("%w: days must be at least 1", ErrInvalidInput)
	}
	svc, staff, err := e.resolve(ctx, serviceID, staffID)
	if err != nil {
		return nil, err
	}

	q := e.query(svc, staff)
	windowStart := from.At(0, e.loc).Add(-availability.HoursToDuration(svc.Preparation))
	windowEnd := from.AddDays(days).At(0, e.loc).Add(availability.HoursToDuration(svc.Cleanup))
	q.Bookings, err = e.store.ListActive(ctx, staffID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	out := availability.GenerateSlotsForRange(from, days, q)
	total := 0
	for _, slots := range out {
		total += len(slots)
	}
	e.recorder.SlotsListed(total)
	return out, nil
}

// CheckSlot reports whether start is a currently free slot. A start that has
// already passed is reported as unavailable; an off-grid start is invalid input.
func (e *Engine) CheckSlot(ctx context.Context, serviceID, staffID string, start time.Time) (bool, error) {
	svc, staff, err := e.resolve(ctx, serviceID, staffID)
	if err != nil {
		return false, err
	}
	q := e.query(svc, staff)
	slot, err := e.locateSlot(svc, q, start)
	if errors.Is(err, ErrSlotNoLongerAvailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	prep, cleanup := buffers(svc)
	bookings, err := e.store.ListActive(ctx, staffID, slot.UTCStart.Add(-prep), slot.End.Add(cleanup))
	if err != nil {
		return false, fmt.Errorf("list bookings: %w", err)
	}
	return !availability.HasConflict(staffID, slot.UTCStart, slot.End, prep, cleanup, bookings), nil
}

// BookSlot validates the request against the slot grid, then re-runs the
// conflict check and inserts the appointment inside the staff lock.
func (e *Engine) BookSlot(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "booking.BookSlot", trace.WithAttributes(
		attribute.String("booking.service_id", req.ServiceID),
		attribute.String("booking.staff_id", req.StaffID),
	))
	defer span.End()

	appt, err := e.bookSlot(ctx, req)
	e.recorder.BookingAttempt(outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Appointment{}, err
	}
	span.SetAttributes(attribute.String("booking.appointment_id", appt.ID))
	return appt, nil
}

func (e *Engine) bookSlot(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return model.Appointment{}, fmt.Errorf("%w: customer_name is required", ErrInvalidInput)
	}
	svc, staff, err := e.resolve(ctx, req.ServiceID, req.StaffID)
	if err != nil {
		return model.Appointment{}, err
	}
	slot, err := e.locateSlot(svc, e.query(svc, staff), req.Start)
	if err != nil {
		return model.Appointment{}, err
	}

	status := model.StatusConfirmed
	if svc.RequiresApproval {
		status = model.StatusDraft
	}
	appt := model.Appointment{
		ServiceID:     svc.ID,
		StaffID:       staff.ID,
		CustomerName:  req.CustomerName,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Notes:         req.Notes,
		StartTime:     slot.UTCStart,
		EndTime:       slot.End,
		Status:        status,
		Price:         svc.Price,
		FinalPrice:    svc.Price,
	}
	promoCode := promo.Normalize(req.PromoCode)

	prep, cleanup := buffers(svc)
	err = e.store.WithStaffLock(ctx, staff.ID, func(ctx context.Context, tx Tx) error {
		bookings, err := tx.ListActive(ctx, staff.ID, slot.UTCStart.Add(-prep), slot.End.Add(cleanup))
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
		if availability.HasConflict(staff.ID, slot.UTCStart, slot.End, prep, cleanup, bookings) {
			return fmt.Errorf("%w: %s at %s", ErrSlotNoLongerAvailable, staff.ID, slot.StartRFC3339())
		}
		if promoCode != "" {
			if err := e.applyPromo(ctx, tx, promoCode, staff, &appt); err != nil {
				return err
			}
		}
		if err := tx.Create(ctx, &appt); err != nil {
			return err
		}
		if appt.PromoCodeID != "" {
			if err := tx.RecordPromoUse(ctx, appt.PromoCodeID); err != nil {
				return fmt.Errorf("record promo use: %w", err)
			}
		}
		evt, err := bookedEvent(appt, e.loc.String())
		if err != nil {
			return err
		}
		return tx.RecordEvent(ctx, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}

	e.logger.InfoContext(ctx, "appointment booked",
		"appointment_id", appt.ID,
		"staff_id", appt.StaffID,
		"service_id", appt.ServiceID,
		"start_time", appt.StartTime,
		"status", appt.Status,
		"promo_code_id", appt.PromoCodeID,
	)
	return appt, nil
}

// applyPromo validates code for appt while holding the promo row, so usage
// limits hold across concurrent bookings.
func (e *Engine) applyPromo(ctx context.Context, tx Tx, code string, staff model.Staff, appt *model.Appointment) error {
	pc, err := tx.LockPromo(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, promo.ErrUnknown)
	}
	if err != nil {
		return fmt.Errorf("load promo: %w", err)
	}
	uses := 0
	if appt.CustomerEmail != "" || appt.CustomerPhone != "" {
		uses, err = tx.CustomerPromoUses(ctx, pc.ID, appt.CustomerEmail, appt.CustomerPhone)
		if err != nil {
			return fmt.Errorf("count promo uses: %w", err)
		}
	}
	d, err := pc.Apply(promo.Usage{
		Amount:       appt.Price,
		ServiceID:    appt.ServiceID,
		BranchID:     staff.BranchID,
		CustomerUses: uses,
		Today:        e.Today(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	appt.PromoCodeID = pc.ID
	appt.DiscountAmount = d.Amount
	appt.FinalPrice = d.FinalPrice
	return nil
}

var transitions = map[model.Status][]model.Status{
	model.StatusDraft:      {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed:  {model.StatusInProgress, model.StatusCancelled, model.StatusDraft},
	model.StatusInProgress: {model.StatusCompleted, model.StatusCancelled},
	model.StatusCancelled:  {model.StatusDraft},
}

func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves an appointment through its lifecycle. Reactivating a
// cancelled appointment re-checks conflicts under the staff lock.
func (e *Engine) Transition(ctx context.Context, appointmentID string, to model.Status, reason string) (model.Appointment, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return model.Appointment{}, fmt.Errorf("%w: appointment_id is required", ErrInvalidInput)
	}
	if !to.Valid() {
		return model.Appointment{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}

	ctx, span := e.tracer.Start(ctx, "booking.Transition", trace.WithAttributes(
		attribute.String("booking.appointment_id", appointmentID),
		attribute.String("booking.to", string(to)),
	))
	defer span.End()

	current, err := e.store.Get(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}

	var out model.Appointment
	var from model.Status
	err = e.store.WithStaffLock(ctx, current.StaffID, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		from = appt.Status
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		if !from.Active() && to.Active() {
			if err := e.recheck(ctx, tx, appt); err != nil {
				return err
			}
		}

		now := e.now().UTC()
		appt.Status = to
		switch to {
		case model.StatusCancelled:
			appt.CancelledAt = &now
			appt.CancelReason = reason
		case model.StatusCompleted:
			appt.CompletedAt = &now
		case model.StatusDraft:
			appt.CancelledAt = nil
			appt.CancelReason = ""
		}
		if err := tx.UpdateStatus(ctx, appt); err != nil {
			return err
		}
		evt, err := statusChangedEvent(appt, from, reason, now)
		if err != nil {
			return err
		}
		if err := tx.RecordEvent(ctx, evt); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Appointment{}, err
	}

	e.recorder.StatusTransition(from, to)
	e.logger.InfoContext(ctx, "appointment status changed",
		"appointment_id", out.ID,
		"from", from,
		"to", to,
	)
	return out, nil
}

func (e *Engine) recheck(ctx context.Context, tx Tx, appt model.Appointment) error {
	svc, err := e.catalog.GetService(ctx, appt.ServiceID)
	if err != nil {
		return fmt.Errorf("load service: %w", err)
	}
	prep, cleanup := buffers(svc)
	bookings, err := tx.ListActive(ctx, appt.StaffID, appt.StartTime.Add(-prep), appt.EndTime.Add(cleanup))
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	if availability.HasConflict(appt.StaffID, appt.StartTime, appt.EndTime, prep, cleanup, bookings) {
		return fmt.Errorf("%w: slot was rebooked while cancelled", ErrSlotNoLongerAvailable)
	}
	return nil
}

func (e *Engine) resolve(ctx context.Context, serviceID, staffID string) (model.Service, model.Staff, error) {
	if strings.TrimSpace(serviceID) == "" || strings.TrimSpace(staffID) == "" {
		return model.Service{}, model.Staff{}, fmt.Errorf("%w: service_id and staff_id are required", ErrInvalidInput)
	}

	svc, err := e.catalog.GetService(ctx, serviceID)
	if errors.Is(err, ErrNotFound) {
		return model.Service{}, model.Staff{}, fmt.Errorf("%w: unknown service %q", ErrInvalidInput, serviceID)
	}
	if err != nil {
		return model.Service{}, model.Staff{}, fmt.Errorf("load service: %w", err)
	}
	staff, err := e.catalog.GetStaff(ctx, staffID)
	if errors.Is(err, ErrNotFound) {
		return model.Service{}, model.Staff{}, fmt.Errorf("%w: unknown staff %q", ErrInvalidInput, staffID)
	}
	if err != nil {
		return model.Service{}, model.Staff{}, fmt.Errorf("load staff: %w", err)
	}

	switch {
	case !svc.Bookable:
		return svc, staff, fmt.Errorf("%w: service %q is not bookable", ErrInvalidInput, svc.ID)
	case !staff.Bookable:
		return svc, staff, fmt.Errorf("%w: staff %q is not bookable", ErrInvalidInput, staff.ID)
	case !svc.AllowsStaff(staff.ID):
		return svc, staff, fmt.Errorf("%w: staff %q does not perform service %q", ErrInvalidInput, staff.ID, svc.ID)
	case availability.HoursToMinutes(svc.Duration) <= 0:
		return svc, staff, fmt.Errorf("%w: service duration must be positive", ErrInvalidInput)
	case svc.Preparation < 0 || svc.Cleanup < 0:
		return svc, staff, fmt.Errorf("%w: service buffers must not be negative", ErrInvalidInput)
	}
	if err := validateHours(staff.Hours); err != nil {
		return svc, staff, err
	}
	return svc, staff, nil
}

func validateHours(h model.WorkingHours) error {
	if !h.AnyDay() {
		return nil
	}
	if h.StartHour < 0 || h.EndHour > 24 || h.StartHour >= h.EndHour {
		return fmt.Errorf("%w: working hours %.2f-%.2f", ErrInvalidInput, h.StartHour, h.EndHour)
	}
	return nil
}

func (e *Engine) query(svc model.Service, staff model.Staff) availability.Query {
	return availability.Query{
		StaffID:  staff.ID,
		Hours:    staff.Hours,
		Service:  svc,
		Location: e.loc,
		Now:      e.now(),
	}
}

// locateSlot maps start onto the generated slot grid, ignoring bookings.
func (e *Engine) locateSlot(svc model.Service, q availability.Query, start time.Time) (availability.CandidateSlot, error) {
	if start.IsZero() {
		return availability.CandidateSlot{}, fmt.Errorf("%w: start_time is required", ErrInvalidInput)
	}
	if !start.After(q.Now) {
		return availability.CandidateSlot{}, fmt.Errorf("%w: start %s has passed", ErrSlotNoLongerAvailable, start.UTC().Format(time.RFC3339))
	}
	today := availability.DateOf(q.Now.In(e.loc))
	if ahead := today.DaysBetween(availability.DateOf(start.In(e.loc))); ahead >= svc.AdvanceDays() {
		return availability.CandidateSlot{}, fmt.Errorf("%w: start is beyond the %d day booking window", ErrInvalidInput, svc.AdvanceDays())
	}
	slot, ok := availability.FindSlot(start, q)
	if !ok {
		return availability.CandidateSlot{}, fmt.Errorf("%w: %s is not a bookable slot start", ErrInvalidInput, start.In(e.loc).Format("2006-01-02 15:04"))
	}
	return slot, nil
}

func buffers(svc model.Service) (time.Duration, time.Duration) {
	return availability.HoursToDuration(svc.Preparation), availability.HoursToDuration(svc.Cleanup)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotNoLongerAvailable):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
