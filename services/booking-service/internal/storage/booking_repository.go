package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/promo"
)

const appointmentColumns = `
	id::text, service_id, staff_id, customer_name, customer_email, customer_phone, notes,
	start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), completed_at,
	followup_count, next_followup_at, COALESCE(promo_code_id::text, ''),
	price::float8, discount_amount::float8, final_price::float8, created_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BookingRepository is the Postgres booking.Store. Writes for one staff
// member are serialised with a transaction-scoped advisory lock; the
// appointments_staff_no_overlap exclusion constraint backs it up.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

var _ booking.Store = (*BookingRepository)(nil)

func (r *BookingRepository) ListActive(ctx context.Context, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return listActive(ctx, r.pool, staffID, from, to)
}

func (r *BookingRepository) Get(ctx context.Context, appointmentID string) (model.Appointment, error) {
	if _, err := uuid.Parse(appointmentID); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", booking.ErrNotFound, appointmentID)
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, appointmentID))
	if IsNotFound(err) {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", booking.ErrNotFound, appointmentID)
	}
	return appt, err
}

func (r *BookingRepository) WithStaffLock(ctx context.Context, staffID string, fn func(ctx context.Context, tx booking.Tx) error) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, staffID); err != nil {
			return fmt.Errorf("acquire staff lock: %w", err)
		}
		return fn(ctx, &bookingTx{tx: tx, outbox: r.outbox})
	})
	if IsConflict(err) {
		return fmt.Errorf("%w: %v", booking.ErrSlotNoLongerAvailable, err)
	}
	return err
}

type bookingTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *bookingTx) ListActive(ctx context.Context, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return listActive(ctx, t.tx, staffID, from, to)
}

func (t *bookingTx) Create(ctx context.Context, appt *model.Appointment) error {
	id := uuid.NewString()
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, service_id, staff_id, customer_name, customer_email, customer_phone, notes, start_time, end_time, status,
			 promo_code_id, price, discount_amount, final_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, '')::uuid, $12, $13, $14)
		RETURNING created_at
	`, id, appt.ServiceID, appt.StaffID, appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone, appt.Notes,
		appt.StartTime, appt.EndTime, string(appt.Status),
		appt.PromoCodeID, appt.Price, appt.DiscountAmount, appt.FinalPrice).Scan(&appt.CreatedAt)
	if err != nil {
		return err
	}
	appt.ID = id
	return nil
}

func (t *bookingTx) GetForUpdate(ctx context.Context, appointmentID string) (model.Appointment, error) {
	if _, err := uuid.Parse(appointmentID); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", booking.ErrNotFound, appointmentID)
	}
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, appointmentID))
	if IsNotFound(err) {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", booking.ErrNotFound, appointmentID)
	}
	return appt, err
}

func (t *bookingTx) UpdateStatus(ctx context.Context, appt model.Appointment) error {
	var reason *string
	if appt.CancelReason != "" {
		reason = &appt.CancelReason
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = $3,
			cancellation_reason = $4,
			completed_at = $5
		WHERE id = $1
	`, appt.ID, string(appt.Status), appt.CancelledAt, reason, appt.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %s", booking.ErrNotFound, appt.ID)
	}
	return nil
}

func (t *bookingTx) RecordEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Append(ctx, t.tx, evt)
}

func (t *bookingTx) LockPromo(ctx context.Context, code string) (promo.Code, error) {
	var c promo.Code
	var discountType string
	var validFrom, validTo *time.Time
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, code, name, discount_type, discount_value::float8, valid_from, valid_to,
			max_uses, current_uses, max_uses_per_customer, branch_ids, service_ids, is_active,
			minimum_amount::float8, maximum_discount::float8
		FROM promo_codes
		WHERE upper(code) = $1
		FOR UPDATE
	`, promo.Normalize(code)).Scan(
		&c.ID, &c.Code, &c.Name, &discountType, &c.Value, &validFrom, &validTo,
		&c.MaxUses, &c.CurrentUses, &c.MaxUsesPerCustomer, &c.BranchIDs, &c.ServiceIDs, &c.Active,
		&c.MinimumAmount, &c.MaximumDiscount,
	)
	if IsNotFound(err) {
		return promo.Code{}, fmt.Errorf("%w: promo %s", booking.ErrNotFound, code)
	}
	if err != nil {
		return promo.Code{}, err
	}
	c.Type = promo.DiscountType(discountType)
	if validFrom != nil {
		c.ValidFrom = availability.DateOf(validFrom.UTC())
	}
	if validTo != nil {
		c.ValidTo = availability.DateOf(validTo.UTC())
	}
	return c, nil
}

func (t *bookingTx) CustomerPromoUses(ctx context.Context, promoID, email, phone string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE promo_code_id = $1
			AND status <> 'cancelled'
			AND ((customer_email <> '' AND customer_email = $2)
				OR (customer_phone <> '' AND customer_phone = $3))
	`, promoID, email, phone).Scan(&n)
	return n, err
}

func (t *bookingTx) RecordPromoUse(ctx context.Context, promoID string) error {
	_, err := t.tx.Exec(ctx, `UPDATE promo_codes SET current_uses = current_uses + 1 WHERE id = $1`, promoID)
	return err
}

func listActive(ctx context.Context, q querier, staffID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE staff_id = $1
			AND status = ANY($2)
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, staffID, model.ActiveStatuses(), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.ServiceID,
		&appt.StaffID,
		&appt.CustomerName,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.Notes,
		&appt.StartTime,
		&appt.EndTime,
		&status,
		&appt.CancelledAt,
		&appt.CancelReason,
		&appt.CompletedAt,
		&appt.FollowupCount,
		&appt.NextFollowupAt,
		&appt.PromoCodeID,
		&appt.Price,
		&appt.DiscountAmount,
		&appt.FinalPrice,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	return appt, nil
}

// IsConflict reports an exclusion constraint violation (SQLSTATE 23P01).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
